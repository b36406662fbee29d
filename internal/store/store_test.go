package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"larpcamp.org/internal/config"
	"larpcamp.org/internal/store/memstore"
	"larpcamp.org/internal/store/redisstore"
)

func TestOpenMemory(t *testing.T) {
	b, err := Open(context.Background(), config.StoreConfig{Driver: config.DriverMemory})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := b.(*memstore.Store); !ok {
		t.Fatalf("unexpected backend %T", b)
	}
}

func TestOpenRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	b, err := Open(context.Background(), config.StoreConfig{Driver: config.DriverRedis, RedisURL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer b.Close()
	if _, ok := b.(*redisstore.Store); !ok {
		t.Fatalf("unexpected backend %T", b)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), config.StoreConfig{Driver: "sqlite"}); err == nil {
		t.Fatal("expected error")
	}
}
