package pkg

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

// CompressionAlgorithm is one of the four encodings §4.8's Compression row
// names. The order of a Compression's algorithm list is its preference order:
// the first listed algorithm that Accept-Encoding names wins. q-values are not
// read, so an encoding listed with any q (q=0 included) counts as offered.
type CompressionAlgorithm string

const (
	CompressionGzip    CompressionAlgorithm = "gzip"
	CompressionBrotli  CompressionAlgorithm = "br"
	CompressionDeflate CompressionAlgorithm = "deflate"
	CompressionZstd    CompressionAlgorithm = "zstd"
)

const compressionChosenKey = "itsi.compression.algo"

// Compression negotiates the best encoding from Accept-Encoding intersected
// with a configured algorithm allow-list, recording the winner in ctx during
// Before, then actually encoding the buffered body in After once the
// downstream layers/handler have produced it — grounded on nabbar-golib's
// archive/compress wrapping of the same four codecs (gzip/klauspost-zstd/
// andybalholm-brotli/flate), generalized here into a streaming-negotiation
// middleware instead of an archive-file helper.
type Compression struct {
	baseLayer
	algorithms      []CompressionAlgorithm
	minSize         int64
	mimeCategories  []string // e.g. "text/", "application/json"
	compressStreams bool
}

func NewCompression(algorithms []CompressionAlgorithm, minSize int64, mimeCategories []string, compressStreams bool) *Compression {
	if len(algorithms) == 0 {
		algorithms = []CompressionAlgorithm{CompressionGzip, CompressionBrotli, CompressionDeflate, CompressionZstd}
	}
	return &Compression{algorithms: algorithms, minSize: minSize, mimeCategories: mimeCategories, compressStreams: compressStreams}
}

func (c *Compression) Priority() MiddlewarePriority { return PriorityCompression }

func (c *Compression) Before(ctx Context) (bool, error) {
	accept := ctx.Request().Header.Get("Accept-Encoding")
	if algo, ok := c.negotiate(accept); ok {
		ctx.Set(compressionChosenKey, algo)
	}
	return false, nil
}

func (c *Compression) negotiate(acceptEncoding string) (CompressionAlgorithm, bool) {
	if acceptEncoding == "" {
		return "", false
	}
	offered := make(map[string]bool)
	for _, part := range strings.Split(acceptEncoding, ",") {
		name := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		offered[strings.ToLower(name)] = true
	}
	for _, algo := range c.algorithms {
		if offered[string(algo)] {
			return algo, true
		}
	}
	return "", false
}

func (c *Compression) After(ctx Context) error {
	chosen, ok := ctx.Get(compressionChosenKey)
	if !ok {
		return nil
	}
	algo := chosen.(CompressionAlgorithm)

	buffered, ok := ctx.Response().(*bufferedResponseWriter)
	if !ok {
		return nil
	}
	h := buffered.Header()
	if h.Get("Content-Encoding") != "" {
		return nil
	}

	contentType := h.Get("Content-Type")
	if !c.mimeAllowed(contentType) {
		return nil
	}

	body := buffered.Bytes()
	if int64(len(body)) < c.minSize && !(c.compressStreams && len(body) == 0) {
		return nil
	}

	encoded, err := compressWith(algo, body)
	if err != nil {
		return err
	}

	buffered.ReplaceBody(encoded)
	h.Set("Content-Encoding", string(algo))
	h.Del("Content-Length")
	return nil
}

func (c *Compression) mimeAllowed(contentType string) bool {
	if len(c.mimeCategories) == 0 {
		return true
	}
	if contentType == "" {
		return false
	}
	for _, category := range c.mimeCategories {
		if strings.HasPrefix(contentType, category) {
			return true
		}
	}
	return false
}

func compressWith(algo CompressionAlgorithm, body []byte) ([]byte, error) {
	var buf bytes.Buffer
	switch algo {
	case CompressionGzip:
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(body); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case CompressionDeflate:
		w, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(body); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case CompressionBrotli:
		w := brotli.NewWriter(&buf)
		if _, err := w.Write(body); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case CompressionZstd:
		w, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(body); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	default:
		return body, nil
	}
	return buf.Bytes(), nil
}

// decompressWith is the inverse of compressWith, used only by tests that
// exercise the compression round-trip invariant (§8).
func decompressWith(algo CompressionAlgorithm, body []byte) ([]byte, error) {
	switch algo {
	case CompressionGzip:
		r, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case CompressionDeflate:
		r := flate.NewReader(bytes.NewReader(body))
		defer r.Close()
		return io.ReadAll(r)
	case CompressionBrotli:
		return io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
	case CompressionZstd:
		r, err := zstd.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	default:
		return body, nil
	}
}
