package cache

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// ResponseToRecord converts an HTTP response to a Record.
// It reads the full response body and restores it for the caller.
func ResponseToRecord(resp *http.Response) (*Record, error) {
	if resp == nil {
		return nil, fmt.Errorf("response cannot be nil")
	}

	var body []byte
	if resp.Body != nil {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
		resp.Body.Close()
		body = data
	}

	// Restore body for caller
	resp.Body = io.NopCloser(bytes.NewReader(body))

	rec := &Record{
		Data:       body,
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
		CachedAt:   time.Now(),
	}
	if resp.Request != nil && resp.Request.URL != nil {
		rec.URL = resp.Request.URL.String()
	}

	return rec, nil
}

// Response builds a fresh HTTP response serving the full cached body.
func (r *Record) Response() *http.Response {
	status := r.StatusCode
	if status == 0 {
		status = http.StatusOK
	}

	header := r.Headers.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set("Content-Length", strconv.Itoa(len(r.Data)))

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(r.Data)),
		ContentLength: int64(len(r.Data)),
	}
}
