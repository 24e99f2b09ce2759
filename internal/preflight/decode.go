// internal/preflight/decode.go
package preflight

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

// acceptEncoding is what a desktop browser advertises. Sending it keeps the
// probe's request close to the one the automated browser makes.
const acceptEncoding = "gzip, deflate, br"

var (
	gzipReaders   = sync.Pool{New: func() interface{} { return new(gzip.Reader) }}
	brotliReaders = sync.Pool{New: func() interface{} { return brotli.NewReader(nil) }}
	emptyReader   = strings.NewReader("")
)

// decodingTransport advertises compression and decodes the response body
// according to Content-Encoding. Setting Accept-Encoding by hand disables
// net/http's own transparent gzip handling, so every encoding is decoded here.
type decodingTransport struct {
	next http.RoundTripper
}

func newDecodingTransport(next http.RoundTripper) *decodingTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &decodingTransport{next: next}
}

func (t *decodingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("Accept-Encoding", acceptEncoding)
	}
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if err := decodeBody(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

// pooledBody closes the decoder, returns it to its pool and closes the
// underlying body.
type pooledBody struct {
	io.Reader
	decoder  io.Closer
	release  func()
	original io.ReadCloser
}

func (b *pooledBody) Close() error {
	var errs []error
	if b.decoder != nil {
		errs = append(errs, b.decoder.Close())
	}
	if b.release != nil {
		b.release()
		b.release = nil
	}
	errs = append(errs, b.original.Close())
	return errors.Join(errs...)
}

// decodeBody unwraps each Content-Encoding layer, last applied first.
func decodeBody(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}
	encodings := resp.Header.Values("Content-Encoding")
	if len(encodings) == 0 {
		return nil
	}

	var layers []string
	for _, v := range encodings {
		for _, e := range strings.Split(v, ",") {
			layers = append(layers, strings.ToLower(strings.TrimSpace(e)))
		}
	}

	for i := len(layers) - 1; i >= 0; i-- {
		body := &pooledBody{original: resp.Body}

		switch layers[i] {
		case "", "identity":
			continue
		case "gzip", "x-gzip":
			zr := gzipReaders.Get().(*gzip.Reader)
			if err := zr.Reset(resp.Body); err != nil {
				gzipReaders.Put(zr)
				return fmt.Errorf("gzip body: %w", err)
			}
			body.Reader, body.decoder = zr, zr
			body.release = func() {
				_ = zr.Reset(emptyReader)
				gzipReaders.Put(zr)
			}
		case "br":
			br := brotliReaders.Get().(*brotli.Reader)
			if err := br.Reset(resp.Body); err != nil {
				brotliReaders.Put(br)
				return fmt.Errorf("brotli body: %w", err)
			}
			body.Reader = br
			body.release = func() {
				_ = br.Reset(emptyReader)
				brotliReaders.Put(br)
			}
		case "deflate":
			rc, err := inflate(resp.Body)
			if err != nil {
				return fmt.Errorf("deflate body: %w", err)
			}
			body.Reader, body.decoder = rc, rc
		default:
			return fmt.Errorf("unsupported content encoding %q", layers[i])
		}
		resp.Body = body
	}

	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

// inflate handles both zlib-wrapped (RFC 1950) and raw (RFC 1951) deflate,
// which servers send interchangeably under "deflate".
func inflate(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	header, err := br.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if len(header) == 2 && header[0]&0x0f == 8 && (uint16(header[0])<<8|uint16(header[1]))%31 == 0 {
		return zlib.NewReader(br)
	}
	return flate.NewReader(br), nil
}
