// Package broadcast defines the status events emitted by the cache
// controllers and the sinks that deliver them.
//
// Events are fire-and-forget: sinks must not block the caller and there is
// no retry or delivery guarantee.
package broadcast

import (
	"encoding/json"
	"fmt"
)

// Kind names an event variant on the wire.
type Kind string

const (
	KindActualCached   Kind = "ActualCached"
	KindPrefetchCached Kind = "PrefetchCached"
	KindSkipped        Kind = "Skipped"
	KindDeleted        Kind = "Deleted"
	KindPrefetchError  Kind = "PrefetchError"
)

// Event is one status notification. The concrete types below are the only
// implementations; consumers switch on them exhaustively.
type Event interface {
	Kind() Kind
	// Key is the normalized cache key the event refers to.
	Key() string
	// URL is the original resource URL.
	URL() string
	isEvent()
}

// Ref identifies the resource an event refers to.
type Ref struct {
	CachedURL   string
	OriginalURL string
}

func (r Ref) Key() string { return r.CachedURL }
func (r Ref) URL() string { return r.OriginalURL }
func (Ref) isEvent()      {}

// ActualCached reports that a direct (foreground) fetch was stored.
type ActualCached struct{ Ref }

// PrefetchCached reports that a background prefetch was stored.
type PrefetchCached struct{ Ref }

// Skipped reports a prefetch dropped because the key was already in flight.
type Skipped struct{ Ref }

// Deleted reports an entry removed by eviction.
type Deleted struct{ Ref }

// PrefetchError reports a failed background prefetch.
type PrefetchError struct {
	Ref
	Err error
}

func (ActualCached) Kind() Kind   { return KindActualCached }
func (PrefetchCached) Kind() Kind { return KindPrefetchCached }
func (Skipped) Kind() Kind        { return KindSkipped }
func (Deleted) Kind() Kind        { return KindDeleted }
func (PrefetchError) Kind() Kind  { return KindPrefetchError }

// Message is the wire form of an event.
type Message struct {
	Kind Kind        `json:"kind"`
	Data MessageData `json:"data"`
}

// MessageData carries the event payload.
type MessageData struct {
	CachedURL   string `json:"cachedUrl"`
	OriginalURL string `json:"originalUrl"`
	Error       string `json:"error,omitempty"`
}

// ToMessage converts an event to its wire form.
func ToMessage(ev Event) Message {
	msg := Message{
		Kind: ev.Kind(),
		Data: MessageData{CachedURL: ev.Key(), OriginalURL: ev.URL()},
	}
	if pe, ok := ev.(PrefetchError); ok && pe.Err != nil {
		msg.Data.Error = pe.Err.Error()
	}
	return msg
}

// Marshal encodes an event as JSON.
func Marshal(ev Event) ([]byte, error) {
	return json.Marshal(ToMessage(ev))
}

// FromMessage converts a wire message back to an event.
func FromMessage(msg Message) (Event, error) {
	ref := Ref{CachedURL: msg.Data.CachedURL, OriginalURL: msg.Data.OriginalURL}
	switch msg.Kind {
	case KindActualCached:
		return ActualCached{ref}, nil
	case KindPrefetchCached:
		return PrefetchCached{ref}, nil
	case KindSkipped:
		return Skipped{ref}, nil
	case KindDeleted:
		return Deleted{ref}, nil
	case KindPrefetchError:
		var err error
		if msg.Data.Error != "" {
			err = fmt.Errorf("%s", msg.Data.Error)
		}
		return PrefetchError{Ref: ref, Err: err}, nil
	default:
		return nil, fmt.Errorf("unknown event kind %q", msg.Kind)
	}
}
