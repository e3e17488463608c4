package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"shoplab/api/internal/cart"
	"shoplab/api/internal/participant"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://"+s.Addr(), time.Hour)
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	store, err := NewRedisStore("redis://"+s.Addr(), time.Hour)
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()

	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	state := State{
		ParticipantID: "abc123456789",
		Condition:     participant.ConditionExperiment,
		FromPrevious:  true,
		Cart: []cart.Line{
			{ProductID: "001", Quantity: 2, Color: "red"},
			{ProductID: "002", Quantity: 1, Size: "M"},
		},
	}

	if err := store.Save(ctx, "sid-1", state); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Load(ctx, "sid-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.ParticipantID != state.ParticipantID || got.Condition != state.Condition || !got.FromPrevious {
		t.Fatalf("state mismatch: %+v", got)
	}
	if len(got.Cart) != 2 || got.Cart[0].Color != "red" || got.Cart[1].Size != "M" {
		t.Fatalf("cart mismatch: %+v", got.Cart)
	}
}

func TestLoadMissingSession(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	_, err := store.Load(context.Background(), "no-such-session")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionExpiry(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()
	store, err := NewRedisStore("redis://"+s.Addr(), time.Minute)
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Save(ctx, "sid-1", State{ParticipantID: "abc123456789"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	s.FastForward(2 * time.Minute)

	_, err = store.Load(ctx, "sid-1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestDeleteClearsState(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	if err := store.Save(ctx, "sid-1", State{ParticipantID: "abc123456789"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Delete(ctx, "sid-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Load(ctx, "sid-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	// Deleting a missing session is not an error.
	if err := store.Delete(ctx, "never-existed"); err != nil {
		t.Fatalf("Delete of missing session failed: %v", err)
	}
}

func TestSessionIsolation(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	if err := store.Save(ctx, "sid-1", State{ParticipantID: "aaa111111111"}); err != nil {
		t.Fatalf("Save sid-1 failed: %v", err)
	}
	if err := store.Save(ctx, "sid-2", State{ParticipantID: "bbb222222222"}); err != nil {
		t.Fatalf("Save sid-2 failed: %v", err)
	}

	if err := store.Delete(ctx, "sid-1"); err != nil {
		t.Fatalf("Delete sid-1 failed: %v", err)
	}

	got, err := store.Load(ctx, "sid-2")
	if err != nil {
		t.Fatalf("Load sid-2 failed: %v", err)
	}
	if got.ParticipantID != "bbb222222222" {
		t.Fatalf("expected sid-2 untouched, got %+v", got)
	}
}
