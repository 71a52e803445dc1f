package stores

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newAttemptStore(t *testing.T) (*AttemptStore, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewAttemptStore(rdb, "sla"), func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func TestAttemptSaveGetDelete(t *testing.T) {
	store, cleanup := newAttemptStore(t)
	defer cleanup()
	ctx := context.Background()

	record := &AttemptRecord{
		AccountID:   "acct-1",
		Username:    "dana",
		Step:        1,
		ChallengeID: "chal-1",
		ExpiresAt:   time.Now().Add(time.Minute).UnixMilli(),
	}
	if err := store.Save(ctx, "tok-1", record, time.Minute); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := store.Get(ctx, "tok-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if *got != *record {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, record)
	}

	existed, err := store.Delete(ctx, "tok-1")
	if err != nil || !existed {
		t.Fatalf("delete = %v, %v; want true, nil", existed, err)
	}
	if _, err := store.Get(ctx, "tok-1"); !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("expected ErrAttemptNotFound, got %v", err)
	}

	existed, err = store.Delete(ctx, "tok-1")
	if err != nil || existed {
		t.Fatalf("repeat delete = %v, %v; want false, nil", existed, err)
	}
}

func TestAttemptLazyExpiryReturnsStaleRecord(t *testing.T) {
	store, cleanup := newAttemptStore(t)
	defer cleanup()
	ctx := context.Background()

	record := &AttemptRecord{
		AccountID: "acct-1",
		Username:  "dana",
		Step:      1,
		ExpiresAt: time.Now().Add(30 * time.Millisecond).UnixMilli(),
	}
	if err := store.Save(ctx, "tok-1", record, time.Minute); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	time.Sleep(60 * time.Millisecond)

	got, err := store.Get(ctx, "tok-1")
	if !errors.Is(err, ErrAttemptExpired) {
		t.Fatalf("expected ErrAttemptExpired, got %v", err)
	}
	if got == nil || got.AccountID != "acct-1" {
		t.Fatalf("stale record not returned for audit context: %+v", got)
	}

	// Expiry deletes the record.
	if _, err := store.Get(ctx, "tok-1"); !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("expected ErrAttemptNotFound after lazy delete, got %v", err)
	}
}

func TestAttemptAdvance(t *testing.T) {
	store, cleanup := newAttemptStore(t)
	defer cleanup()
	ctx := context.Background()

	record := &AttemptRecord{
		AccountID: "acct-1",
		Username:  "dana",
		Step:      1,
		ExpiresAt: time.Now().Add(time.Minute).UnixMilli(),
	}
	if err := store.Save(ctx, "tok-1", record, time.Minute); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	updated, err := store.Advance(ctx, "tok-1", 1, time.Minute, func(r *AttemptRecord) {
		r.Step = 2
		r.ChallengeID = "chal-9"
	})
	if err != nil {
		t.Fatalf("advance failed: %v", err)
	}
	if updated.Step != 2 || updated.ChallengeID != "chal-9" {
		t.Fatalf("advance did not apply mutation: %+v", updated)
	}

	got, err := store.Get(ctx, "tok-1")
	if err != nil {
		t.Fatalf("get after advance failed: %v", err)
	}
	if got.Step != 2 || got.ChallengeID != "chal-9" {
		t.Fatalf("advance not persisted: %+v", got)
	}
}

func TestAttemptAdvanceStepMismatch(t *testing.T) {
	store, cleanup := newAttemptStore(t)
	defer cleanup()
	ctx := context.Background()

	record := &AttemptRecord{
		AccountID: "acct-1",
		Step:      2,
		ExpiresAt: time.Now().Add(time.Minute).UnixMilli(),
	}
	if err := store.Save(ctx, "tok-1", record, time.Minute); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	_, err := store.Advance(ctx, "tok-1", 1, time.Minute, func(r *AttemptRecord) {
		r.Step = 2
	})
	if !errors.Is(err, ErrAttemptStep) {
		t.Fatalf("expected ErrAttemptStep, got %v", err)
	}
}

func TestAttemptAdvanceMissingAndExpired(t *testing.T) {
	store, cleanup := newAttemptStore(t)
	defer cleanup()
	ctx := context.Background()

	_, err := store.Advance(ctx, "missing", 1, time.Minute, func(*AttemptRecord) {})
	if !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("expected ErrAttemptNotFound, got %v", err)
	}

	record := &AttemptRecord{
		AccountID: "acct-1",
		Step:      1,
		ExpiresAt: time.Now().Add(-time.Second).UnixMilli(),
	}
	if err := store.Save(ctx, "tok-1", record, time.Minute); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	_, err = store.Advance(ctx, "tok-1", 1, time.Minute, func(*AttemptRecord) {})
	if !errors.Is(err, ErrAttemptExpired) {
		t.Fatalf("expected ErrAttemptExpired, got %v", err)
	}
}

func TestAttemptCodecRejectsCorruptData(t *testing.T) {
	if _, err := decodeAttemptRecord(nil); err == nil {
		t.Fatal("decode accepted empty data")
	}
	if _, err := decodeAttemptRecord([]byte{99, 1}); err == nil {
		t.Fatal("decode accepted unknown version")
	}

	encoded, err := encodeAttemptRecord(&AttemptRecord{AccountID: "acct-1", Step: 1})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if _, err := decodeAttemptRecord(encoded[:len(encoded)-3]); err == nil {
		t.Fatal("decode accepted truncated data")
	}
}
