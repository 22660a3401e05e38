package db

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestNewRedisClient(t *testing.T) {
	s := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), RedisConfig{Addr: s.Addr(), PoolSize: 2})
	if err != nil {
		t.Fatalf("expected connection, got %v", err)
	}
	defer client.Close()

	if _, err := NewRedisClient(context.Background(), RedisConfig{}); err == nil {
		t.Fatalf("expected error for empty address")
	}
}
