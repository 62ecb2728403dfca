package service

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisDeduper(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() {
		if cerr := client.Close(); cerr != nil {
			t.Logf("redis close: %v", cerr)
		}
	})

	deduper := NewRedisDeduper(client, time.Minute)
	ctx := context.Background()

	added, err := deduper.Add(ctx, "sales", "b1")
	if err != nil || !added {
		t.Fatalf("first Add = %v, %v; want true, nil", added, err)
	}
	added, err = deduper.Add(ctx, "sales", "b1")
	if err != nil || added {
		t.Fatalf("second Add = %v, %v; want false, nil", added, err)
	}

	expectedKey := dedupeKeyPrefix + ":sales:b1"
	if !m.Exists(expectedKey) {
		t.Fatalf("expected redis key %q to exist", expectedKey)
	}
	if ttl := m.TTL(expectedKey); ttl != time.Minute {
		t.Errorf("TTL = %v, want 1m", ttl)
	}

	if err := deduper.Remove(ctx, "sales", "b1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	added, err = deduper.Add(ctx, "sales", "b1")
	if err != nil || !added {
		t.Fatalf("Add after Remove = %v, %v; want true, nil", added, err)
	}
}

func TestMemoryDeduper_Expiry(t *testing.T) {
	deduper := NewMemoryDeduper(time.Minute)
	now := time.Unix(1000, 0)
	deduper.now = func() time.Time { return now }
	ctx := context.Background()

	if added, _ := deduper.Add(ctx, "sales", "b1"); !added {
		t.Fatal("first Add should record the key")
	}
	if added, _ := deduper.Add(ctx, "sales", "b1"); added {
		t.Fatal("second Add should be a duplicate")
	}
	if added, _ := deduper.Add(ctx, "other", "b1"); !added {
		t.Fatal("keys are scoped per board")
	}

	now = now.Add(2 * time.Minute)
	if added, _ := deduper.Add(ctx, "sales", "b1"); !added {
		t.Fatal("expired key should be recorded again")
	}
}
