package cache

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
)

var rangePattern = regexp.MustCompile(`^bytes=(\d+)-(\d+)?`)

// ByteRange is a parsed "bytes=<start>-<end>?" request header.
type ByteRange struct {
	Start  int64
	End    int64
	HasEnd bool
}

// ParseRange matches a Range header value. ok is false when the header is
// empty or does not match.
func ParseRange(header string) (ByteRange, bool) {
	m := rangePattern.FindStringSubmatch(header)
	if m == nil {
		return ByteRange{}, false
	}

	start, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return ByteRange{}, false
	}

	br := ByteRange{Start: start}
	if m[2] != "" {
		end, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			return ByteRange{}, false
		}
		br.End = end
		br.HasEnd = true
	}
	return br, true
}

// RangeResponse serves rec for a request carrying rangeHeader.
//
// Without a matching range header the full response is returned with the
// cached status. Otherwise the result is a 206 whose body is the byte slice
// [start, end+1) of the cached body, or [start, size) when no end is given.
// Bounds are clamped to the body, so a start past the end yields an empty
// body rather than an error.
func RangeResponse(rec *Record, rangeHeader string) *http.Response {
	br, ok := ParseRange(rangeHeader)
	if !ok {
		return rec.Response()
	}

	total := rec.Size()
	end := total - 1
	if br.HasEnd {
		end = br.End
	}

	body := sliceBody(rec.Data, br.Start, end+1)

	header := http.Header{}
	if ct := rec.ContentType(); ct != "" {
		header.Set("Content-Type", ct)
	}
	header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", br.Start, end, total))
	header.Set("Content-Length", strconv.Itoa(len(body)))
	header.Set("Accept-Ranges", "bytes")

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", http.StatusPartialContent, http.StatusText(http.StatusPartialContent)),
		StatusCode:    http.StatusPartialContent,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

// sliceBody returns data[from:to] with both bounds clamped to the data.
func sliceBody(data []byte, from, to int64) []byte {
	size := int64(len(data))
	if from > size {
		from = size
	}
	if to > size {
		to = size
	}
	if to < from {
		to = from
	}
	return data[from:to]
}
