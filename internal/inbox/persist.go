package inbox

import (
	"context"
	"encoding/json"
	"errors"
	gosync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/store"
)

// writeTimeout bounds a single cache write.
const writeTimeout = 5 * time.Second

// persister writes versioned snapshots of the inbox to the durable cache.
// A snapshot older than the last one written is discarded, so concurrent
// mutations can never leave a stale list behind.
type persister struct {
	cache store.Cache
	key   string
	delay time.Duration
	log   *zap.Logger

	writeMu gosync.Mutex
	written uint64

	mu       gosync.Mutex
	pending  []model.Notification
	pendingV uint64
	timer    *time.Timer
	closed   bool
}

func newPersister(cache store.Cache, key string, delay time.Duration, log *zap.Logger) *persister {
	return &persister{cache: cache, key: key, delay: delay, log: log}
}

// save persists snap at version v, immediately or after the debounce delay.
func (p *persister) save(v uint64, snap []model.Notification) {
	if p.cache == nil {
		return
	}
	if p.delay <= 0 {
		p.write(v, snap)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	if v > p.pendingV {
		p.pending = snap
		p.pendingV = v
	}
	if p.timer == nil {
		p.timer = time.AfterFunc(p.delay, p.flush)
	}
}

// flush writes the pending snapshot, if any.
func (p *persister) flush() {
	p.mu.Lock()
	snap, v := p.pending, p.pendingV
	p.pending = nil
	p.timer = nil
	p.mu.Unlock()

	if snap != nil {
		p.write(v, snap)
	}
}

func (p *persister) write(v uint64, snap []model.Notification) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if v <= p.written {
		return
	}

	data, err := json.Marshal(snap)
	if err != nil {
		p.log.Warn("encoding inbox snapshot", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := p.cache.Set(ctx, p.key, data); err != nil {
		// The cache is best-effort; the next mutation retries.
		p.log.Warn("writing inbox cache", zap.String("key", p.key), zap.Error(err))
		return
	}
	p.written = v
}

// close stops the debounce timer and writes whatever is pending.
func (p *persister) close() {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.closed = true
	snap, v := p.pending, p.pendingV
	p.pending = nil
	p.mu.Unlock()

	if snap != nil {
		p.write(v, snap)
	}
}

// load reads and decodes the cached list. Missing, unreadable and corrupt
// content all yield an empty list.
func (p *persister) load(ctx context.Context) []model.Notification {
	if p.cache == nil {
		return nil
	}

	data, err := p.cache.Get(ctx, p.key)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		p.log.Warn("reading inbox cache", zap.String("key", p.key), zap.Error(err))
		return nil
	}

	var items []model.Notification
	if err := json.Unmarshal(data, &items); err != nil {
		p.log.Warn("discarding corrupt inbox cache", zap.String("key", p.key), zap.Error(err))
		return nil
	}
	return items
}
