package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/Sternrassler/media-cache-proxy/pkg/audiocache"
	"github.com/Sternrassler/media-cache-proxy/pkg/broadcast"
)

// maxControlBody bounds control request bodies.
const maxControlBody = 1 << 20

// AbortRequest is the body of POST /_cache/abort.
type AbortRequest struct {
	Prefix     string `json:"prefix"`
	KeepDirect bool   `json:"keepDirect"`
}

// NetworkFirstState is the body of the network-first toggle endpoints.
type NetworkFirstState struct {
	Enabled bool `json:"enabled"`
}

// handlePrefetch accepts one PrefetchRequest or an array of them. Arrays go
// through the batch prefetcher. The response is sent once the work is
// scheduled, not when it completes.
func (rt *Router) handlePrefetch(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxControlBody)).Decode(&raw); err != nil {
		http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}

	var reqs []audiocache.PrefetchRequest
	batch := bytes.HasPrefix(bytes.TrimSpace(raw), []byte("["))
	if batch {
		if err := json.Unmarshal(raw, &reqs); err != nil {
			http.Error(w, "invalid prefetch list: "+err.Error(), http.StatusBadRequest)
			return
		}
	} else {
		var single audiocache.PrefetchRequest
		if err := json.Unmarshal(raw, &single); err != nil {
			http.Error(w, "invalid prefetch request: "+err.Error(), http.StatusBadRequest)
			return
		}
		reqs = append(reqs, single)
	}

	for i := range reqs {
		if reqs[i].URL == "" {
			http.Error(w, "prefetch url is required", http.StatusBadRequest)
			return
		}
		target, err := rt.Resolve(reqs[i].URL)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		reqs[i].URL = target
	}

	if batch {
		rt.deps.Tasks.Go("batch prefetch", func(ctx context.Context) {
			rt.deps.Batch.PrefetchAll(ctx, reqs)
		})
	} else {
		rt.deps.Audio.Prefetch(reqs[0])
	}

	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": len(reqs)})
}

func (rt *Router) handleAbort(w http.ResponseWriter, r *http.Request) {
	var req AbortRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxControlBody)).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}

	n := rt.deps.Audio.Abort(req.Prefix, req.KeepDirect)
	writeJSON(w, http.StatusOK, map[string]int{"cancelled": n})
}

func (rt *Router) handleQueue(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rt.deps.Audio.Queue())
}

func (rt *Router) handleGetNetworkFirst(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, NetworkFirstState{Enabled: rt.deps.API.Enabled()})
}

func (rt *Router) handleSetNetworkFirst(w http.ResponseWriter, r *http.Request) {
	var state NetworkFirstState
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxControlBody)).Decode(&state); err != nil {
		http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}

	rt.deps.API.SetEnabled(state.Enabled)
	writeJSON(w, http.StatusOK, NetworkFirstState{Enabled: rt.deps.API.Enabled()})
}

// handleEvents streams status events as newline-delimited JSON until the
// client disconnects or the server shuts down.
func (rt *Router) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, unsubscribe := rt.deps.Hub.Subscribe(64)
	defer unsubscribe()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := json.NewEncoder(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case <-rt.deps.Tasks.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := enc.Encode(broadcast.ToMessage(ev)); err != nil {
				rt.logger.Debug().Err(err).Msg("Event stream closed")
				return
			}
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
