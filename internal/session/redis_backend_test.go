package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/drlike/asthmabot/internal/schema"
	"github.com/redis/go-redis/v9"
)

func setupMiniredis(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()

	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	store := NewRedisStoreFromClient(client, "test:", ttl)

	t.Cleanup(func() {
		_ = store.Close()
	})

	return mr, store
}

func TestRedisStore_PutAndGet(t *testing.T) {
	_, store := setupMiniredis(t, 0)
	ctx := context.Background()

	update := &Update{
		State:   statePtr(StateCollecting),
		History: []string{"사용자: 아이가 쌕쌕거려요", "챗봇: 밤에 더 심해지나요?"},
		ExtractedData: schema.ExtractedData{
			schema.FieldWheeze: "Y",
		},
	}
	if err := store.Put(ctx, "user-1", update); err != nil {
		t.Fatalf("put: %v", err)
	}

	sess, err := store.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess.State != StateCollecting {
		t.Errorf("state = %q, want COLLECTING", sess.State)
	}
	if len(sess.History) != 2 {
		t.Errorf("history length = %d, want 2", len(sess.History))
	}
	if got := sess.ExtractedData[schema.FieldWheeze]; got != "Y" {
		t.Errorf("wheeze = %v, want Y", got)
	}
}

func TestRedisStore_GetMissing(t *testing.T) {
	_, store := setupMiniredis(t, 0)

	_, err := store.Get(context.Background(), "nobody")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRedisStore_PutMergesAcrossWrites(t *testing.T) {
	_, store := setupMiniredis(t, 0)
	ctx := context.Background()

	if err := store.Put(ctx, "user-1", &Update{
		ExtractedData: schema.ExtractedData{schema.FieldWheeze: "Y"},
	}); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if err := store.Put(ctx, "user-1", &Update{
		State:         statePtr(StateConfirmAnalysis),
		ExtractedData: schema.ExtractedData{schema.FieldFever: "N"},
	}); err != nil {
		t.Fatalf("second put: %v", err)
	}

	sess, err := store.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess.State != StateConfirmAnalysis {
		t.Errorf("state = %q, want CONFIRM_ANALYSIS", sess.State)
	}
	if got := sess.ExtractedData[schema.FieldWheeze]; got != "Y" {
		t.Errorf("wheeze = %v, want Y (earlier write must survive merge)", got)
	}
	if got := sess.ExtractedData[schema.FieldFever]; got != "N" {
		t.Errorf("fever = %v, want N", got)
	}
}

func TestRedisStore_Delete(t *testing.T) {
	_, store := setupMiniredis(t, 0)
	ctx := context.Background()

	if err := store.Delete(ctx, "ghost"); err != nil {
		t.Fatalf("delete absent: %v", err)
	}

	if err := store.Put(ctx, "user-1", WithState(StateCollecting)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Delete(ctx, "user-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "user-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}
}

func TestRedisStore_IdleTTL(t *testing.T) {
	mr, store := setupMiniredis(t, 10*time.Minute)
	ctx := context.Background()

	if err := store.Put(ctx, "user-1", WithState(StateCollecting)); err != nil {
		t.Fatalf("put: %v", err)
	}

	mr.FastForward(11 * time.Minute)

	if _, err := store.Get(ctx, "user-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after TTL, got %v", err)
	}
}

func TestRedisStore_PutRefreshesTTL(t *testing.T) {
	mr, store := setupMiniredis(t, 10*time.Minute)
	ctx := context.Background()

	if err := store.Put(ctx, "user-1", WithState(StateCollecting)); err != nil {
		t.Fatalf("put: %v", err)
	}

	mr.FastForward(8 * time.Minute)
	if err := store.Put(ctx, "user-1", &Update{
		History: []string{"사용자: 기침도 해요"},
	}); err != nil {
		t.Fatalf("refresh put: %v", err)
	}

	mr.FastForward(8 * time.Minute)
	if _, err := store.Get(ctx, "user-1"); err != nil {
		t.Fatalf("session expired despite refresh: %v", err)
	}
}

func TestRedisStore_ClosedOperations(t *testing.T) {
	_, store := setupMiniredis(t, 0)
	ctx := context.Background()

	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := store.Get(ctx, "x"); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Get after close: %v", err)
	}
	if err := store.Put(ctx, "x", nil); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Put after close: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}
