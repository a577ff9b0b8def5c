package cache

import (
	"context"
	"os"
	"testing"
)

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), "not-a-redis-url")
	if err == nil {
		t.Fatal("Connect should fail for invalid url")
	}
}

func TestConnect_Live(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	rdb, err := Connect(context.Background(), url)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer rdb.Close()
	if err := (Pinger{Client: rdb}).Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
