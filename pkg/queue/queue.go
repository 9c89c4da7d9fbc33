// Package queue tracks in-flight upstream fetches keyed by normalized URL.
//
// At most one entry exists per URL. A new direct (foreground) entry cancels
// every other direct entry; background prefetch entries are never cancelled
// by it.
package queue

import (
	"context"
	"net/url"
	"strings"
	"sync"
)

// Entry is one in-flight fetch.
type Entry struct {
	URL      string
	Cancel   context.CancelFunc
	IsDirect bool

	// Position is an informational ordering hint, nil when absent.
	Position *int
}

// Snapshot is a read-only view of an entry.
type Snapshot struct {
	URL      string `json:"url"`
	IsDirect bool   `json:"isDirect"`
	Position *int   `json:"sequencePosition,omitempty"`
}

// Queue holds the active entries. It is safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	entries []*Entry
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{}
}

// Contains reports whether an entry for url exists.
func (q *Queue) Contains(url string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.indexLocked(url) >= 0
}

// Add inserts an entry. If isDirect is set, every other direct entry is
// cancelled first. An existing entry for the same url is replaced.
func (q *Queue) Add(url string, cancel context.CancelFunc, isDirect bool, position *int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if i := q.indexLocked(url); i >= 0 {
		q.entries = append(q.entries[:i], q.entries[i+1:]...)
	}
	q.addLocked(url, cancel, isDirect, position)
}

// TryAdd inserts an entry only if none exists for url, and reports whether
// it did. Check and insert happen under one lock, so two concurrent callers
// for the same url never both succeed.
func (q *Queue) TryAdd(url string, cancel context.CancelFunc, isDirect bool, position *int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.indexLocked(url) >= 0 {
		return false
	}
	q.addLocked(url, cancel, isDirect, position)
	return true
}

// Remove deletes the entry for url. It is a no-op when absent.
func (q *Queue) Remove(url string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if i := q.indexLocked(url); i >= 0 {
		q.entries = append(q.entries[:i], q.entries[i+1:]...)
	}
}

// CancelMatching cancels every entry whose URL path starts with pathPrefix,
// or every entry when pathPrefix is empty. Direct entries are skipped when
// keepDirect is set. Entries stay in the queue; the owning fetch removes
// them when it settles. It returns the number of cancelled entries.
func (q *Queue) CancelMatching(pathPrefix string, keepDirect bool) int {
	q.mu.Lock()
	var cancels []context.CancelFunc
	for _, e := range q.entries {
		if keepDirect && e.IsDirect {
			continue
		}
		if pathPrefix != "" && !strings.HasPrefix(pathOf(e.URL), pathPrefix) {
			continue
		}
		cancels = append(cancels, e.Cancel)
	}
	q.mu.Unlock()

	for _, cancel := range cancels {
		if cancel != nil {
			cancel()
		}
	}
	return len(cancels)
}

// Len returns the number of active entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// List returns a snapshot of the active entries in insertion order.
func (q *Queue) List() []Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Snapshot, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, Snapshot{URL: e.URL, IsDirect: e.IsDirect, Position: e.Position})
	}
	return out
}

func (q *Queue) addLocked(url string, cancel context.CancelFunc, isDirect bool, position *int) {
	if isDirect {
		for _, e := range q.entries {
			if e.IsDirect && e.Cancel != nil {
				e.Cancel()
			}
		}
	}
	q.entries = append(q.entries, &Entry{
		URL:      url,
		Cancel:   cancel,
		IsDirect: isDirect,
		Position: position,
	})
}

func (q *Queue) indexLocked(url string) int {
	for i, e := range q.entries {
		if e.URL == url {
			return i
		}
	}
	return -1
}

// pathOf returns the path of a URL, or the URL itself if it has no
// parseable path.
func pathOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return raw
	}
	return u.Path
}
