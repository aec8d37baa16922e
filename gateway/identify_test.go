package gateway

import (
	"context"
	"testing"
	"time"
)

func TestIdentifierWait(t *testing.T) {
	id := NewIdentifier(DefaultIdentifyCommand("token"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := id.Wait(ctx); err != nil {
		t.Fatal("first Wait should not block past the context:", err)
	}
}

func TestShard(t *testing.T) {
	cmd := DefaultIdentifyCommand("token")
	cmd.SetShard(2, 8)

	if cmd.Shard.ShardID() != 2 {
		t.Fatalf("expected shard id 2, got %d", cmd.Shard.ShardID())
	}
	if cmd.Shard.NumShards() != 8 {
		t.Fatalf("expected 8 shards, got %d", cmd.Shard.NumShards())
	}
}
