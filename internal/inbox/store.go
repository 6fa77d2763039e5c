// Package inbox holds the ordered, id-unique notification collection and
// reconciles fetched pages, pushed events and local actions into it.
package inbox

import (
	"context"
	gosync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/obs"
	"github.com/nhle/taskboard/internal/store"
)

// Config controls paging and persistence of a Store.
type Config struct {
	// PageSize is the number of records the server returns per page.
	PageSize int

	// CacheKey is the durable cache key; see store.NotificationsKey.
	CacheKey string

	// CacheDebounce coalesces cache writes; zero writes on every mutation.
	CacheDebounce time.Duration
}

// Store is the single source of truth for the notification list. The list
// is kept newest-first: pushed records are prepended and fetched pages are
// appended in server order. All methods are safe for concurrent use.
type Store struct {
	mu      gosync.Mutex
	items   []model.Notification
	cursor  Cursor
	version uint64
	loadGen uint64

	pageSize int
	persist  *persister
	log      *zap.Logger
	metrics  *obs.Metrics
	now      func() time.Time
	changes  chan struct{}
}

// New creates an empty Store backed by cache. A nil cache disables
// persistence.
func New(cfg Config, cache store.Cache, log *zap.Logger, metrics *obs.Metrics) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = obs.NopMetrics()
	}
	return &Store{
		pageSize: cfg.PageSize,
		persist:  newPersister(cache, cfg.CacheKey, cfg.CacheDebounce, log),
		log:      log,
		metrics:  metrics,
		now:      time.Now,
		changes:  make(chan struct{}, 1),
	}
}

// Restore loads the last persisted list so a restart can render without
// waiting on the network. Corrupt cache content leaves the store empty.
func (s *Store) Restore(ctx context.Context) int {
	items := s.persist.load(ctx)

	s.mu.Lock()
	s.items = s.items[:0]
	index := make(map[string]int, len(items))
	now := s.now()
	for _, n := range items {
		if n.NotificationID == "" {
			continue
		}
		n.Normalize(now)
		if i, ok := index[n.NotificationID]; ok {
			s.items[i] = n
			continue
		}
		index[n.NotificationID] = len(s.items)
		s.items = append(s.items, n)
	}
	s.cursor = Cursor{Offset: len(s.items), TotalCount: len(s.items)}
	s.loadGen++
	count := len(s.items)
	s.observeLocked()
	s.mu.Unlock()

	s.signal()
	return count
}

// Close flushes any debounced cache write.
func (s *Store) Close() {
	s.persist.close()
}

// Changes returns a channel that receives a value after mutations. Bursts
// collapse into one pending signal.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

// ReplaceAll replaces the collection with a full server fetch and resets
// the cursor to the first page. A load-more still in flight is abandoned;
// its page will be refused by AppendPage.
func (s *Store) ReplaceAll(list []model.Notification, total int) {
	s.mutate(func() bool {
		prev := s.indexLocked()
		old := s.items

		now := s.now()
		next := make([]model.Notification, 0, len(list))
		index := make(map[string]int, len(list))
		for _, n := range list {
			if n.NotificationID == "" {
				continue
			}
			rec := n
			if j, ok := prev[n.NotificationID]; ok {
				rec = old[j]
				mergeFetched(&rec, n)
			}
			rec.Normalize(now)
			if i, ok := index[n.NotificationID]; ok {
				next[i] = rec
				continue
			}
			index[n.NotificationID] = len(next)
			next = append(next, rec)
		}

		s.items = next
		s.loadGen++
		s.cursor = Cursor{TotalCount: len(next)}
		s.cursor.advance(len(list), s.pageSize, total)
		return true
	})
}

// AppendPage merges the page fetched for l: known ids are updated in place
// and new ids are appended at the tail in the order received. It reports
// false, leaving the store untouched, when a ReplaceAll happened after l
// was issued.
func (s *Store) AppendPage(l Load, list []model.Notification, total int) bool {
	applied := false
	s.mutate(func() bool {
		if l.gen != s.loadGen {
			return false
		}
		applied = true
		index := s.indexLocked()
		now := s.now()
		for _, n := range list {
			if n.NotificationID == "" {
				continue
			}
			if i, ok := index[n.NotificationID]; ok {
				mergeFetched(&s.items[i], n)
				s.items[i].Normalize(now)
				continue
			}
			n.Normalize(now)
			index[n.NotificationID] = len(s.items)
			s.items = append(s.items, n)
		}

		s.cursor.Loading = false
		s.cursor.advance(len(list), s.pageSize, total)
		if total <= 0 && len(s.items) > s.cursor.TotalCount {
			s.cursor.TotalCount = len(s.items)
		}
		return true
	})
	return applied
}

// UpsertFromRealtime merges a pushed record into the existing entry with
// the same id, or prepends it as the newest entry. hasReadState tells
// whether the payload carried isRead; without it local read state is kept.
func (s *Store) UpsertFromRealtime(n model.Notification, hasReadState bool) {
	if n.NotificationID == "" {
		return
	}
	s.mutate(func() bool {
		now := s.now()
		for i := range s.items {
			if s.items[i].NotificationID != n.NotificationID {
				continue
			}
			before := cloneNotification(s.items[i])
			mergeRealtime(&s.items[i], n, hasReadState)
			s.items[i].Normalize(now)
			return !sameNotification(before, s.items[i])
		}

		rec := n
		if !hasReadState {
			rec.IsRead = false
			rec.ReadAt = nil
		}
		rec.Normalize(now)
		s.items = append([]model.Notification{rec}, s.items...)

		// The server list grew at its head, so the next page starts one later.
		s.cursor.Offset++
		s.cursor.TotalCount++
		return true
	})
}

// PatchReadState merges read fields into the record with id. A nil readAt
// keeps an existing timestamp or stamps the current time. Unknown ids are
// ignored.
func (s *Store) PatchReadState(id string, isRead bool, readAt *time.Time) {
	s.mutate(func() bool {
		i := s.findLocked(id)
		if i < 0 {
			return false
		}
		before := cloneNotification(s.items[i])
		applyReadState(&s.items[i], isRead, readAt)
		s.items[i].Normalize(s.now())
		return !sameNotification(before, s.items[i])
	})
}

// MarkRead marks the record with id read at the given time unless it is
// absent or already read. It reports whether the record changed.
func (s *Store) MarkRead(id string, at time.Time) bool {
	changed := false
	s.mutate(func() bool {
		i := s.findLocked(id)
		if i < 0 || s.items[i].IsRead {
			return false
		}
		applyReadState(&s.items[i], true, &at)
		changed = true
		return true
	})
	return changed
}

// PatchResponse merges response fields into the record with id. It
// reports whether the id was found.
func (s *Store) PatchResponse(id string, patch ResponsePatch) bool {
	found := false
	s.mutate(func() bool {
		i := s.findLocked(id)
		if i < 0 {
			return false
		}
		found = true
		before := cloneNotification(s.items[i])
		patch.apply(&s.items[i])
		s.items[i].Normalize(s.now())
		return !sameNotification(before, s.items[i])
	})
	return found
}

// BeginLoad marks a load-more fetch as outstanding and returns the offset
// to fetch from. It returns false when one is already running or no
// further page is expected.
func (s *Store) BeginLoad() (Load, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursor.Loading || !s.cursor.HasMore {
		return Load{}, false
	}
	s.cursor.Loading = true
	return Load{Offset: s.cursor.Offset, gen: s.loadGen}, true
}

// EndLoad clears the loading flag after the fetch for l failed. A stale l
// leaves a newer load outstanding.
func (s *Store) EndLoad(l Load) {
	s.mu.Lock()
	if l.gen == s.loadGen {
		s.cursor.Loading = false
	}
	s.mu.Unlock()
}

// Get returns a copy of the record with id.
func (s *Store) Get(id string) (model.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.findLocked(id)
	if i < 0 {
		return model.Notification{}, false
	}
	return cloneNotification(s.items[i]), true
}

// List returns a copy of the collection in canonical order.
func (s *Store) List() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.items)
}

// Cursor returns the pagination state.
func (s *Store) Cursor() Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Len returns the number of records held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// UnreadCount returns the number of unread records.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unreadLocked()
}

// mutate runs fn under the lock and, when it reports a change, persists a
// versioned snapshot after the lock is released.
func (s *Store) mutate(fn func() bool) {
	s.mu.Lock()
	if !fn() {
		s.mu.Unlock()
		return
	}
	s.version++
	v := s.version
	snap := cloneAll(s.items)
	s.observeLocked()
	s.mu.Unlock()

	s.persist.save(v, snap)
	s.signal()
}

func (s *Store) signal() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func (s *Store) observeLocked() {
	s.metrics.InboxSize.Set(float64(len(s.items)))
	s.metrics.InboxUnread.Set(float64(s.unreadLocked()))
}

func (s *Store) unreadLocked() int {
	count := 0
	for _, n := range s.items {
		if !n.IsRead {
			count++
		}
	}
	return count
}

func (s *Store) findLocked(id string) int {
	for i := range s.items {
		if s.items[i].NotificationID == id {
			return i
		}
	}
	return -1
}

func (s *Store) indexLocked() map[string]int {
	index := make(map[string]int, len(s.items))
	for i, n := range s.items {
		index[n.NotificationID] = i
	}
	return index
}

func sameNotification(a, b model.Notification) bool {
	ra, rb := a.ReadAt, b.ReadAt
	a.ReadAt, b.ReadAt = nil, nil
	if a != b {
		return false
	}
	if ra == nil || rb == nil {
		return ra == rb
	}
	return ra.Equal(*rb)
}
