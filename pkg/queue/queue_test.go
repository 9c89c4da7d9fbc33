package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
)

type cancelSpy struct {
	calls atomic.Int32
}

func (s *cancelSpy) fn() context.CancelFunc {
	return func() { s.calls.Add(1) }
}

func (s *cancelSpy) cancelled() bool {
	return s.calls.Load() > 0
}

func intPtr(v int) *int { return &v }

func TestQueue_ContainsAddRemove(t *testing.T) {
	q := New()
	url := "https://media.example.com/a.mp3"

	if q.Contains(url) {
		t.Fatal("empty queue reports Contains")
	}

	q.Add(url, func() {}, false, nil)
	if !q.Contains(url) {
		t.Error("Contains() = false after Add")
	}

	q.Remove(url)
	if q.Contains(url) {
		t.Error("Contains() = true after Remove")
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0", q.Len())
	}
}

func TestQueue_RemoveIdempotent(t *testing.T) {
	q := New()
	q.Remove("https://media.example.com/never-added.mp3")

	q.Add("a", func() {}, false, nil)
	q.Remove("a")
	q.Remove("a")
	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0", q.Len())
	}
}

func TestQueue_DirectPreemptsDirect(t *testing.T) {
	q := New()
	direct1, prefetch1, direct2 := &cancelSpy{}, &cancelSpy{}, &cancelSpy{}

	q.Add("https://m/1.mp3", direct1.fn(), true, nil)
	q.Add("https://m/2.mp3", prefetch1.fn(), false, intPtr(2))
	q.Add("https://m/3.mp3", direct2.fn(), true, nil)

	if !direct1.cancelled() {
		t.Error("previous direct entry was not cancelled")
	}
	if prefetch1.cancelled() {
		t.Error("prefetch entry must not be cancelled by a direct add")
	}
	if direct2.cancelled() {
		t.Error("new direct entry cancelled itself")
	}
	// Cancellation does not remove; the fetch owner does.
	if q.Len() != 3 {
		t.Errorf("Len() = %d, want 3", q.Len())
	}
}

func TestQueue_PrefetchDoesNotPreempt(t *testing.T) {
	q := New()
	direct := &cancelSpy{}

	q.Add("https://m/1.mp3", direct.fn(), true, nil)
	q.Add("https://m/2.mp3", func() {}, false, nil)

	if direct.cancelled() {
		t.Error("prefetch add cancelled a direct entry")
	}
}

func TestQueue_TryAdd(t *testing.T) {
	q := New()
	if !q.TryAdd("a", func() {}, false, nil) {
		t.Fatal("first TryAdd failed")
	}
	if q.TryAdd("a", func() {}, true, nil) {
		t.Error("second TryAdd for the same url succeeded")
	}
}

func TestQueue_TryAdd_Concurrent(t *testing.T) {
	q := New()
	var wins atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if q.TryAdd("https://m/same.mp3", func() {}, false, nil) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("TryAdd succeeded %d times, want 1", wins.Load())
	}
}

func TestQueue_CancelMatching(t *testing.T) {
	tests := []struct {
		name       string
		prefix     string
		keepDirect bool
		want       []string
	}{
		{
			name:   "empty prefix cancels all",
			prefix: "",
			want:   []string{"folderA-1", "folderA-2", "folderB-1", "direct"},
		},
		{
			name:   "prefix filter",
			prefix: "/books/A/",
			want:   []string{"folderA-1", "folderA-2", "direct"},
		},
		{
			name:       "keep direct",
			prefix:     "",
			keepDirect: true,
			want:       []string{"folderA-1", "folderA-2", "folderB-1"},
		},
		{
			name:       "prefix and keep direct",
			prefix:     "/books/A/",
			keepDirect: true,
			want:       []string{"folderA-1", "folderA-2"},
		},
		{
			name:   "no match",
			prefix: "/podcasts/",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New()
			spies := map[string]*cancelSpy{
				"folderA-1": {}, "folderA-2": {}, "folderB-1": {}, "direct": {},
			}
			q.Add("https://m.example.com/books/A/1.mp3", spies["folderA-1"].fn(), false, intPtr(1))
			q.Add("https://m.example.com/books/A/2.mp3", spies["folderA-2"].fn(), false, intPtr(2))
			q.Add("https://m.example.com/books/B/1.mp3", spies["folderB-1"].fn(), false, nil)
			q.Add("https://m.example.com/books/A/0.mp3", spies["direct"].fn(), true, nil)

			n := q.CancelMatching(tt.prefix, tt.keepDirect)
			if n != len(tt.want) {
				t.Errorf("CancelMatching() = %d, want %d", n, len(tt.want))
			}

			wantSet := map[string]bool{}
			for _, name := range tt.want {
				wantSet[name] = true
			}
			for name, spy := range spies {
				if spy.cancelled() != wantSet[name] {
					t.Errorf("%s cancelled = %v, want %v", name, spy.cancelled(), wantSet[name])
				}
			}

			// Cancelled entries stay until their fetch removes them
			if q.Len() != 4 {
				t.Errorf("Len() = %d, want 4", q.Len())
			}
		})
	}
}

func TestQueue_List(t *testing.T) {
	q := New()
	q.Add("a", func() {}, true, nil)
	q.Add("b", func() {}, false, intPtr(4))

	list := q.List()
	if len(list) != 2 {
		t.Fatalf("List() len = %d, want 2", len(list))
	}
	if list[0].URL != "a" || !list[0].IsDirect {
		t.Errorf("list[0] = %+v", list[0])
	}
	if list[1].Position == nil || *list[1].Position != 4 {
		t.Errorf("list[1].Position = %v, want 4", list[1].Position)
	}
}
