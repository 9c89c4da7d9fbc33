package audiocache

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/media-cache-proxy/pkg/broadcast"
	"github.com/Sternrassler/media-cache-proxy/pkg/cache"
	"github.com/Sternrassler/media-cache-proxy/pkg/client"
)

// fetchDirect downloads the full resource for a foreground request. The
// upstream response is returned as soon as its headers arrive; the body is
// teed into a buffer that is stored once the download completes, even if the
// caller stops reading.
func (c *Controller) fetchDirect(req *http.Request, store cache.Store, key string) *http.Response {
	ctx, cancel := context.WithCancel(c.tasks.Context())
	if !c.queue.TryAdd(key, cancel, true, sequencePosition(req)) {
		cancel()
		return c.passthrough(req, key)
	}

	// Release the entry unless the body hands it off, including on panic.
	handedOff := false
	defer func() {
		if !handedOff {
			c.queue.Remove(key)
			cancel()
		}
	}()

	logger := c.logger.With().Str("key", key).Str("fetch_id", uuid.NewString()).Logger()

	out := req.Clone(ctx)
	out.RequestURI = ""
	out.Header.Del("Range")

	resp, err := c.fetcher.Do(out)
	if err != nil {
		if client.IsAbort(err) {
			abortedTotal.WithLabelValues("direct").Inc()
			logger.Debug().Msg("Direct fetch aborted")
		} else {
			logger.Error().Err(err).Msg("Direct fetch failed")
		}
		requestsTotal.WithLabelValues("error").Inc()
		return client.ErrorResponse(err)
	}

	requestsTotal.WithLabelValues("fetched").Inc()
	handedOff = true

	if resp.StatusCode != http.StatusOK {
		// Only complete responses are cacheable.
		c.queue.Remove(key)
		logger.Warn().Int("status", resp.StatusCode).Msg("Upstream returned non-cacheable status")
		resp.Body = &closeFunc{ReadCloser: resp.Body, after: cancel}
		return resp
	}

	pr, pw := io.Pipe()
	upstream := resp.Body
	c.tasks.Go("store "+key, func(taskCtx context.Context) {
		defer cancel()
		defer c.queue.Remove(key)
		c.storeDirect(taskCtx, ctx, logger, store, key, req.URL.String(), resp, upstream, pw)
	})

	served := *resp
	served.Body = pr
	return &served
}

func (c *Controller) storeDirect(taskCtx, fetchCtx context.Context, logger zerolog.Logger, store cache.Store, key, url string, resp *http.Response, body io.ReadCloser, pw *io.PipeWriter) {
	defer body.Close()

	var buf bytes.Buffer
	caller := &detachableWriter{w: pw}
	_, err := io.Copy(io.MultiWriter(&buf, caller), body)
	pw.CloseWithError(err)

	if err != nil {
		if client.IsAbort(err) || fetchCtx.Err() != nil {
			abortedTotal.WithLabelValues("direct").Inc()
			logger.Debug().Msg("Direct fetch aborted during download")
			return
		}
		logger.Error().Err(err).Msg("Direct download failed")
		return
	}

	rec := &cache.Record{
		URL:        url,
		Data:       buf.Bytes(),
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
		CachedAt:   time.Now(),
	}
	if err := store.Put(taskCtx, key, rec); err != nil {
		logger.Error().Err(err).Msg("Failed to store response")
		return
	}

	logger.Info().
		Str("size", humanize.Bytes(uint64(rec.Size()))).
		Bool("caller_detached", caller.Detached()).
		Msg("Stored media response")

	c.sink.Send(broadcast.ActualCached{Ref: broadcast.Ref{CachedURL: key, OriginalURL: url}})
	c.evict(taskCtx, store)
}

// detachableWriter forwards writes until the first failure and then
// swallows the rest, so a departed reader does not stop the download.
type detachableWriter struct {
	mu       sync.Mutex
	w        io.Writer
	detached bool
}

func (d *detachableWriter) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.detached {
		if _, err := d.w.Write(p); err != nil {
			d.detached = true
		}
	}
	return len(p), nil
}

func (d *detachableWriter) Detached() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.detached
}

// closeFunc calls after once, when the body is closed.
type closeFunc struct {
	io.ReadCloser
	after func()
	once  sync.Once
}

func (c *closeFunc) Close() error {
	err := c.ReadCloser.Close()
	c.once.Do(c.after)
	return err
}
