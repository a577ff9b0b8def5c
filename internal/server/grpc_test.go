package server

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"chat-credential-engine/internal/health"
)

func dialBuf(t *testing.T, lis *bufconn.Listener) healthpb.HealthClient {
	t.Helper()
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func waitStatus(t *testing.T, client healthpb.HealthClient, service string, want healthpb.HealthCheckResponse_ServingStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
		if err == nil && resp.GetStatus() == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("service %q: status %v (err %v), want %v", service, resp.GetStatus(), err, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestGRPCHealth_FollowsChecker(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	s, hs := NewGRPCServer(nil)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	client := dialBuf(t, lis)
	waitStatus(t, client, "", healthpb.HealthCheckResponse_NOT_SERVING)

	healthy := make(chan bool, 1)
	healthy <- true
	state := true
	checker := health.NewChecker(time.Second)
	checker.Add("store", health.PingFunc(func(context.Context) error {
		select {
		case state = <-healthy:
		default:
		}
		if !state {
			return errors.New("down")
		}
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		WatchHealth(ctx, checker, hs, 20*time.Millisecond, nil)
		close(done)
	}()

	waitStatus(t, client, "", healthpb.HealthCheckResponse_SERVING)
	waitStatus(t, client, ServiceName, healthpb.HealthCheckResponse_SERVING)

	healthy <- false
	waitStatus(t, client, ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WatchHealth did not return after cancel")
	}
	waitStatus(t, client, "", healthpb.HealthCheckResponse_NOT_SERVING)
}

func TestGRPCHealth_UnknownService(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	s, _ := NewGRPCServer(nil)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	client := dialBuf(t, lis)
	if _, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "nope"}); err == nil {
		t.Error("unknown service should return an error")
	}
}
