// invite mints a bootstrap invite into the configured persistent invite store. The printed token
// verifies on any server sharing the same MASTER_SECRET.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"chat-credential-engine/internal/config"
	"chat-credential-engine/internal/db"
	inviterepo "chat-credential-engine/internal/invite/repository"
	inviteservice "chat-credential-engine/internal/invite/service"
)

func main() {
	inviter := flag.String("inviter", "", "Principal id recorded as the inviter (required)")
	hours := flag.Int("hours", 0, "Invite validity in hours (default INVITE_DEFAULT_EXPIRY_HOURS)")
	flag.Parse()

	if *inviter == "" {
		fmt.Fprintln(os.Stderr, "-inviter is required")
		os.Exit(2)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.MasterSecret == "" {
		log.Fatal("MASTER_SECRET is not set; invites must be signed with the server's secret")
	}
	if *hours <= 0 {
		*hours = cfg.InviteDefaultExpiryHours
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var repo inviterepo.Repository
	switch cfg.ResolvedInviteStore() {
	case config.InviteStorePostgres:
		conn, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer conn.Close()
		repo = inviterepo.NewPostgresRepository(conn)
	case config.InviteStoreMongo:
		mdb, err := db.OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			log.Fatalf("mongo: %v", err)
		}
		defer mdb.Client().Disconnect(context.Background())
		mrepo := inviterepo.NewMongoRepository(mdb)
		if err := mrepo.EnsureIndexes(ctx); err != nil {
			log.Fatalf("mongo indexes: %v", err)
		}
		repo = mrepo
	default:
		log.Fatal("no persistent invite store configured; set DATABASE_URL or INVITE_STORE=mongo")
	}

	svc, err := inviteservice.NewService(repo, []byte(cfg.MasterSecret))
	if err != nil {
		log.Fatalf("invite service: %v", err)
	}
	token, err := svc.Generate(ctx, *inviter, *hours)
	if err != nil {
		log.Fatalf("generate: %v", err)
	}
	fmt.Println(token)
}
