package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"carechat/internal/models"
)

const historyTTL = 30 * time.Minute

// Store is the key-value surface History needs. *Client satisfies it; tests
// substitute an in-memory map.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// History caches a thread's message list in redis so repeated reads of an
// active conversation skip the database. The cache is advisory: every
// method tolerates a nil client and every failure is logged, never
// returned, so a redis outage degrades to plain database reads.
type History struct {
	client Store
	logger *zap.Logger
}

func NewHistory(client Store, logger *zap.Logger) *History {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &History{client: client, logger: logger}
}

func historyKey(threadID string) string {
	return fmt.Sprintf("chat:history:%s", threadID)
}

// Cache stores the full message list for a thread.
func (h *History) Cache(ctx context.Context, threadID string, msgs []models.Message) {
	if h == nil || h.client == nil || threadID == "" {
		return
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		h.logger.Warn("history cache marshal failed", zap.Error(err))
		return
	}
	if err := h.client.Set(ctx, historyKey(threadID), data, historyTTL); err != nil {
		h.logger.Warn("history cache write failed", zap.String("thread_id", threadID), zap.Error(err))
	}
}

// Load returns the cached message list and whether the cache had it.
func (h *History) Load(ctx context.Context, threadID string) ([]models.Message, bool) {
	if h == nil || h.client == nil || threadID == "" {
		return nil, false
	}
	raw, err := h.client.Get(ctx, historyKey(threadID))
	if err != nil {
		if err != ErrCacheMiss {
			h.logger.Warn("history cache read failed", zap.String("thread_id", threadID), zap.Error(err))
		}
		return nil, false
	}
	var msgs []models.Message
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		h.logger.Warn("history cache decode failed", zap.String("thread_id", threadID), zap.Error(err))
		return nil, false
	}
	return msgs, true
}

// Invalidate drops the cached list after a write to the thread.
func (h *History) Invalidate(ctx context.Context, threadID string) {
	if h == nil || h.client == nil || threadID == "" {
		return
	}
	if err := h.client.Del(ctx, historyKey(threadID)); err != nil && err != ErrCacheMiss {
		h.logger.Warn("history cache invalidate failed", zap.String("thread_id", threadID), zap.Error(err))
	}
}
