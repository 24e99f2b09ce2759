// internal/preflight/preflight_test.go
package preflight

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/promptprobe/internal/config"
)

const page = `<html><head><title> AI Code Generator </title></head><body>hi</body></html>`

func compress(t *testing.T, encoding string, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w io.WriteCloser
	switch encoding {
	case "gzip":
		w = gzip.NewWriter(&buf)
	case "br":
		w = brotli.NewWriter(&buf)
	case "deflate-zlib":
		w = zlib.NewWriter(&buf)
	case "deflate-raw":
		fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
		require.NoError(t, err)
		w = fw
	default:
		t.Fatalf("unknown encoding %s", encoding)
	}
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func newTestChecker(t *testing.T) *Checker {
	return NewChecker(config.PreflightConfig{Timeout: 5 * time.Second}, "probe-test/1.0", nil, zaptest.NewLogger(t))
}

func TestCheck_DecodesBodies(t *testing.T) {
	cases := []struct {
		name   string
		header string
		body   []byte
	}{
		{"identity", "", []byte(page)},
		{"gzip", "gzip", compress(t, "gzip", []byte(page))},
		{"brotli", "br", compress(t, "br", []byte(page))},
		{"zlib deflate", "deflate", compress(t, "deflate-zlib", []byte(page))},
		{"raw deflate", "deflate", compress(t, "deflate-raw", []byte(page))},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, acceptEncoding, r.Header.Get("Accept-Encoding"))
				assert.Equal(t, "probe-test/1.0", r.Header.Get("User-Agent"))
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				if tc.header != "" {
					w.Header().Set("Content-Encoding", tc.header)
				}
				_, _ = w.Write(tc.body)
			}))
			defer srv.Close()

			report, err := newTestChecker(t).Check(context.Background(), srv.URL)
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, report.StatusCode)
			assert.Equal(t, "AI Code Generator", report.Title)
			assert.Equal(t, srv.URL, report.URL)
			assert.GreaterOrEqual(t, report.LatencyMs, int64(0))
		})
	}
}

func TestCheck_AnyStatusIsReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":"blocked"}`)
	}))
	defer srv.Close()

	report, err := newTestChecker(t).Check(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, report.StatusCode)
	assert.Empty(t, report.Title)
}

func TestCheck_FollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, page)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	report, err := newTestChecker(t).Check(context.Background(), srv.URL+"/start")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/final", report.FinalURL)
}

func TestCheck_KeepsCookiesAcrossRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "1", Path: "/"})
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("sid"); err != nil {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = io.WriteString(w, page)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	report, err := newTestChecker(t).Check(context.Background(), srv.URL+"/start")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, report.StatusCode)
	assert.Equal(t, "AI Code Generator", report.Title)
}

func TestCheck_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	report, err := newTestChecker(t).Check(context.Background(), url)
	assert.Error(t, err)
	assert.Nil(t, report)
}

func TestCheck_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewChecker(config.PreflightConfig{Timeout: 50 * time.Millisecond}, "", nil, zaptest.NewLogger(t))
	_, err := c.Check(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestDecodeBody_UnsupportedEncoding(t *testing.T) {
	resp := &http.Response{
		Header: http.Header{"Content-Encoding": []string{"zstd"}},
		Body:   io.NopCloser(strings.NewReader("x")),
	}
	err := decodeBody(resp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zstd")
}

func TestDecodeBody_LayeredEncodings(t *testing.T) {
	inner := compress(t, "gzip", []byte(page))
	outer := compress(t, "br", inner)
	resp := &http.Response{
		Header: http.Header{"Content-Encoding": []string{"gzip, br"}, "Content-Length": []string{"99"}},
		Body:   io.NopCloser(bytes.NewReader(outer)),
	}
	require.NoError(t, decodeBody(resp))
	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, page, string(got))
	assert.Empty(t, resp.Header.Get("Content-Encoding"))
	assert.True(t, resp.Uncompressed)
}
