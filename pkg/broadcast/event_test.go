package broadcast

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestToMessage(t *testing.T) {
	ref := Ref{CachedURL: "https://m/a.mp3", OriginalURL: "https://m/a.mp3?t=1"}

	tests := []struct {
		name      string
		event     Event
		wantKind  Kind
		wantError string
	}{
		{name: "actual cached", event: ActualCached{ref}, wantKind: KindActualCached},
		{name: "prefetch cached", event: PrefetchCached{ref}, wantKind: KindPrefetchCached},
		{name: "skipped", event: Skipped{ref}, wantKind: KindSkipped},
		{name: "deleted", event: Deleted{ref}, wantKind: KindDeleted},
		{
			name:      "prefetch error",
			event:     PrefetchError{Ref: ref, Err: errors.New("upstream status 503")},
			wantKind:  KindPrefetchError,
			wantError: "upstream status 503",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := ToMessage(tt.event)
			if msg.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", msg.Kind, tt.wantKind)
			}
			if msg.Data.CachedURL != ref.CachedURL || msg.Data.OriginalURL != ref.OriginalURL {
				t.Errorf("Data = %+v", msg.Data)
			}
			if msg.Data.Error != tt.wantError {
				t.Errorf("Error = %q, want %q", msg.Data.Error, tt.wantError)
			}
		})
	}
}

func TestMarshal_WireShape(t *testing.T) {
	data, err := Marshal(Skipped{Ref{CachedURL: "k", OriginalURL: "u"}})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if raw["kind"] != "Skipped" {
		t.Errorf("kind = %v, want Skipped", raw["kind"])
	}
	payload, ok := raw["data"].(map[string]any)
	if !ok {
		t.Fatalf("data = %T, want object", raw["data"])
	}
	if payload["cachedUrl"] != "k" || payload["originalUrl"] != "u" {
		t.Errorf("data = %v", payload)
	}
	if _, has := payload["error"]; has {
		t.Error("error field should be omitted for non-error events")
	}
}

func TestFromMessage(t *testing.T) {
	ev, err := FromMessage(Message{
		Kind: KindPrefetchError,
		Data: MessageData{CachedURL: "k", OriginalURL: "u", Error: "boom"},
	})
	if err != nil {
		t.Fatalf("FromMessage failed: %v", err)
	}
	pe, ok := ev.(PrefetchError)
	if !ok {
		t.Fatalf("event type = %T, want PrefetchError", ev)
	}
	if pe.Err == nil || pe.Err.Error() != "boom" {
		t.Errorf("Err = %v, want boom", pe.Err)
	}

	if _, err := FromMessage(Message{Kind: "Bogus"}); err == nil {
		t.Error("FromMessage should reject unknown kinds")
	}
}
