package redisstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTTLExpiry_GetMissesExpired(t *testing.T) {
	rc, mr := newMini(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	if err := rc.Set(ctx, "ttl-key", []byte("v"), 2*time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := rc.Get(ctx, "ttl-key")
	if err != nil || string(got) != "v" {
		t.Fatalf("pre expiry got=%q err=%v", got, err)
	}

	mr.FastForward(3 * time.Second)

	if _, err := rc.Get(ctx, "ttl-key"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ttl-key to be absent after expiry; err=%v", err)
	}
}
