package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"carechat/internal/models"
)

type fakeStore struct {
	data    map[string]string
	setErr  error
	getErr  error
	delErr  error
	lastTTL time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}}
}

func (f *fakeStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.lastTTL = ttl
	f.data[key] = string(value.([]byte))
	return nil
}

func (f *fakeStore) Get(ctx context.Context, key string) (string, error) {
	if f.getErr != nil {
		return "", f.getErr
	}
	v, ok := f.data[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return v, nil
}

func (f *fakeStore) Del(ctx context.Context, keys ...string) error {
	if f.delErr != nil {
		return f.delErr
	}
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func sampleMessages() []models.Message {
	return []models.Message{
		{ID: "m-1", ThreadID: "t-1", Role: models.RoleUser, Content: "question"},
		{ID: "m-2", ThreadID: "t-1", Role: models.RoleAssistant, Content: "answer"},
	}
}

func TestHistoryRoundTrip(t *testing.T) {
	store := newFakeStore()
	h := NewHistory(store, nil)
	ctx := context.Background()

	h.Cache(ctx, "t-1", sampleMessages())
	if store.lastTTL != historyTTL {
		t.Fatalf("expected %v ttl, got %v", historyTTL, store.lastTTL)
	}

	msgs, ok := h.Load(ctx, "t-1")
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if len(msgs) != 2 || msgs[0].ID != "m-1" || msgs[1].Role != models.RoleAssistant {
		t.Fatalf("round trip lost content: %#v", msgs)
	}
}

func TestHistoryMiss(t *testing.T) {
	h := NewHistory(newFakeStore(), nil)

	if _, ok := h.Load(context.Background(), "never-cached"); ok {
		t.Fatalf("expected cache miss")
	}
}

func TestHistoryInvalidate(t *testing.T) {
	store := newFakeStore()
	h := NewHistory(store, nil)
	ctx := context.Background()

	h.Cache(ctx, "t-1", sampleMessages())
	h.Invalidate(ctx, "t-1")

	if _, ok := h.Load(ctx, "t-1"); ok {
		t.Fatalf("expected miss after invalidation")
	}
	if len(store.data) != 0 {
		t.Fatalf("key must be deleted, store holds %#v", store.data)
	}
}

func TestHistoryNilClient(t *testing.T) {
	h := NewHistory(nil, nil)
	ctx := context.Background()

	// every method is a no-op without a backing store
	h.Cache(ctx, "t-1", sampleMessages())
	h.Invalidate(ctx, "t-1")
	if _, ok := h.Load(ctx, "t-1"); ok {
		t.Fatalf("nil client must never report a hit")
	}

	var nilHistory *History
	nilHistory.Cache(ctx, "t-1", nil)
	nilHistory.Invalidate(ctx, "t-1")
	if _, ok := nilHistory.Load(ctx, "t-1"); ok {
		t.Fatalf("nil history must never report a hit")
	}
}

func TestHistoryStoreFailuresDegrade(t *testing.T) {
	store := newFakeStore()
	h := NewHistory(store, nil)
	ctx := context.Background()

	store.setErr = fmt.Errorf("connection refused")
	h.Cache(ctx, "t-1", sampleMessages())
	store.setErr = nil
	if _, ok := h.Load(ctx, "t-1"); ok {
		t.Fatalf("failed write must not leave a cached value")
	}

	h.Cache(ctx, "t-1", sampleMessages())
	store.getErr = fmt.Errorf("connection refused")
	if _, ok := h.Load(ctx, "t-1"); ok {
		t.Fatalf("read failure must degrade to a miss")
	}
	store.getErr = nil

	store.delErr = fmt.Errorf("connection refused")
	h.Invalidate(ctx, "t-1")
}

func TestHistoryCorruptPayload(t *testing.T) {
	store := newFakeStore()
	h := NewHistory(store, nil)
	ctx := context.Background()

	store.data[historyKey("t-1")] = "{not json"
	if _, ok := h.Load(ctx, "t-1"); ok {
		t.Fatalf("corrupt payload must degrade to a miss")
	}
}

func TestHistoryEmptyThreadID(t *testing.T) {
	store := newFakeStore()
	h := NewHistory(store, nil)
	ctx := context.Background()

	h.Cache(ctx, "", sampleMessages())
	if len(store.data) != 0 {
		t.Fatalf("empty thread id must not be cached")
	}
	if _, ok := h.Load(ctx, ""); ok {
		t.Fatalf("empty thread id must miss")
	}
}
