package cache

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"testing"
)

func TestResponseToRecord(t *testing.T) {
	tests := []struct {
		name    string
		resp    *http.Response
		wantErr bool
	}{
		{
			name: "audio response",
			resp: &http.Response{
				StatusCode: 200,
				Header: http.Header{
					"Content-Type": []string{"audio/mpeg"},
				},
				Body:    io.NopCloser(bytes.NewReader([]byte("ID3audio-bytes"))),
				Request: &http.Request{URL: &url.URL{Scheme: "https", Host: "media.example.com", Path: "/a.mp3"}},
			},
			wantErr: false,
		},
		{
			name: "response without request",
			resp: &http.Response{
				StatusCode: 200,
				Header:     http.Header{},
				Body:       io.NopCloser(bytes.NewReader([]byte(`{"ok":true}`))),
			},
			wantErr: false,
		},
		{
			name:    "nil response",
			resp:    nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := ResponseToRecord(tt.resp)
			if (err != nil) != tt.wantErr {
				t.Errorf("ResponseToRecord() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}

			// Verify body was read and restored
			body, _ := io.ReadAll(tt.resp.Body)
			if !bytes.Equal(body, rec.Data) {
				t.Errorf("restored body = %q, record data = %q", body, rec.Data)
			}

			if rec.StatusCode != tt.resp.StatusCode {
				t.Errorf("StatusCode = %v, want %v", rec.StatusCode, tt.resp.StatusCode)
			}
			if rec.ContentType() != tt.resp.Header.Get("Content-Type") {
				t.Errorf("ContentType() = %q, want %q", rec.ContentType(), tt.resp.Header.Get("Content-Type"))
			}
			if tt.resp.Request != nil && rec.URL != tt.resp.Request.URL.String() {
				t.Errorf("URL = %q, want %q", rec.URL, tt.resp.Request.URL.String())
			}
			if rec.CachedAt.IsZero() {
				t.Error("CachedAt was not set")
			}
		})
	}
}

func TestRecord_Response(t *testing.T) {
	rec := &Record{
		Data:       []byte("hello"),
		StatusCode: 200,
		Headers:    http.Header{"Content-Type": []string{"audio/ogg"}},
	}

	resp := rec.Response()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "audio/ogg" {
		t.Errorf("Content-Type = %q, want audio/ogg", got)
	}
	if resp.ContentLength != 5 {
		t.Errorf("ContentLength = %d, want 5", resp.ContentLength)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "hello" {
		t.Errorf("body = %q, want hello", body)
	}

	// Mutating the served header must not touch the record
	resp.Header.Set("Content-Type", "text/plain")
	if rec.ContentType() != "audio/ogg" {
		t.Error("Response() shares header map with record")
	}
}

func TestRecord_Response_ZeroStatus(t *testing.T) {
	rec := &Record{Data: []byte("x")}
	if got := rec.Response().StatusCode; got != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", got)
	}
}
