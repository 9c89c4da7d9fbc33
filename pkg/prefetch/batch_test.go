package prefetch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/media-cache-proxy/pkg/audiocache"
	"github.com/Sternrassler/media-cache-proxy/pkg/broadcast"
)

// fakePrefetcher derives the outcome from the URL and tracks concurrency.
type fakePrefetcher struct {
	delay   time.Duration
	running atomic.Int32
	peak    atomic.Int32

	mu   sync.Mutex
	seen []string
}

func (f *fakePrefetcher) HandlePrefetch(ctx context.Context, msg audiocache.PrefetchRequest) broadcast.Event {
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.seen = append(f.seen, msg.URL)
	f.mu.Unlock()

	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return nil
	}

	ref := broadcast.Ref{CachedURL: msg.URL, OriginalURL: msg.URL}
	switch {
	case strings.Contains(msg.URL, "skip"):
		return broadcast.Skipped{Ref: ref}
	case strings.Contains(msg.URL, "fail"):
		return broadcast.PrefetchError{Ref: ref, Err: errors.New("503")}
	default:
		return broadcast.PrefetchCached{Ref: ref}
	}
}

func requests(urls ...string) []audiocache.PrefetchRequest {
	out := make([]audiocache.PrefetchRequest, len(urls))
	for i, u := range urls {
		pos := i
		out[i] = audiocache.PrefetchRequest{URL: u, FolderPosition: &pos}
	}
	return out
}

func TestNewBatchPrefetcher_Defaults(t *testing.T) {
	bp := NewBatchPrefetcher(&fakePrefetcher{}, Config{})

	if bp.config.MaxConcurrency != 4 {
		t.Errorf("MaxConcurrency = %d, want 4", bp.config.MaxConcurrency)
	}
	if bp.config.Timeout != 10*time.Minute {
		t.Errorf("Timeout = %v, want 10m", bp.config.Timeout)
	}
	if bp.config.BufferSize != 64 {
		t.Errorf("BufferSize = %d, want 64", bp.config.BufferSize)
	}
}

func TestPrefetchAll_Tally(t *testing.T) {
	f := &fakePrefetcher{delay: time.Millisecond}
	bp := NewBatchPrefetcher(f, Config{MaxConcurrency: 3})

	summary := bp.PrefetchAll(context.Background(), requests(
		"http://m/1.mp3", "http://m/2.mp3", "http://m/skip.mp3",
		"http://m/fail.mp3", "http://m/5.mp3",
	))

	if summary.Cached != 3 || summary.Skipped != 1 || summary.Failed != 1 || summary.Aborted != 0 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.Total() != 5 {
		t.Errorf("Total() = %d, want 5", summary.Total())
	}
}

func TestPrefetchAll_BoundedConcurrency(t *testing.T) {
	f := &fakePrefetcher{delay: 20 * time.Millisecond}
	bp := NewBatchPrefetcher(f, Config{MaxConcurrency: 2})

	urls := make([]string, 8)
	for i := range urls {
		urls[i] = "http://m/" + string(rune('a'+i)) + ".mp3"
	}
	bp.PrefetchAll(context.Background(), requests(urls...))

	if peak := f.peak.Load(); peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
	if len(f.seen) != len(urls) {
		t.Errorf("prefetched %d, want %d", len(f.seen), len(urls))
	}
}

func TestPrefetchAll_Cancelled(t *testing.T) {
	f := &fakePrefetcher{delay: time.Hour}
	bp := NewBatchPrefetcher(f, Config{MaxConcurrency: 1, BufferSize: 1})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	summary := bp.PrefetchAll(ctx, requests("http://m/1.mp3", "http://m/2.mp3", "http://m/3.mp3"))

	if summary.Aborted != 3 {
		t.Errorf("Aborted = %d, want 3 (summary %+v)", summary.Aborted, summary)
	}
}

func TestPrefetchAll_Empty(t *testing.T) {
	bp := NewBatchPrefetcher(&fakePrefetcher{}, DefaultConfig())
	if s := bp.PrefetchAll(context.Background(), nil); s.Total() != 0 {
		t.Errorf("Total() = %d, want 0", s.Total())
	}
}
