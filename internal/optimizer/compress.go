package optimizer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/rickgao/sketchduel/internal/wire"
)

// Compressor gzips envelope payloads.
type Compressor struct {
	threshold int
	ratio     float64
	types     map[string]bool
}

// NewCompressor creates a compressor for the given envelope types.
func NewCompressor(threshold int, ratio float64, types []string) *Compressor {
	c := &Compressor{threshold: threshold, ratio: ratio, types: make(map[string]bool, len(types))}
	for _, t := range types {
		c.types[t] = true
	}
	return c
}

// Compress returns env with its payload gzip-compressed when env's type is
// eligible, the payload is at least the threshold, and the encoded result is
// smaller than ratio times the original. Otherwise env is returned unchanged
// and saved is 0.
func (c *Compressor) Compress(env wire.Envelope) (out wire.Envelope, saved int, err error) {
	if env.Encoding != wire.EncodingJSON || !c.types[env.Type] || len(env.Data) < c.threshold {
		return env, 0, nil
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return env, 0, fmt.Errorf("gzip writer: %w", err)
	}
	if _, err := zw.Write(env.Data); err != nil {
		return env, 0, fmt.Errorf("gzip write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return env, 0, fmt.Errorf("gzip close: %w", err)
	}

	// []byte marshals as a base64 JSON string.
	encoded, err := json.Marshal(buf.Bytes())
	if err != nil {
		return env, 0, fmt.Errorf("encode compressed payload: %w", err)
	}
	if float64(len(encoded)) >= c.ratio*float64(len(env.Data)) {
		return env, 0, nil
	}

	out = env
	out.Encoding = wire.EncodingGzip
	out.Data = encoded
	return out, len(env.Data) - len(encoded), nil
}

// Decompress reverses Compress. Uncompressed envelopes are returned as is.
// Payloads that inflate past limit bytes fail with ErrPayloadTooLarge.
func Decompress(env wire.Envelope, limit int64) (wire.Envelope, error) {
	switch env.Encoding {
	case wire.EncodingJSON:
		return env, nil
	case wire.EncodingGzip:
	default:
		return env, fmt.Errorf("unsupported encoding %q", env.Encoding)
	}

	var compressed []byte
	if err := json.Unmarshal(env.Data, &compressed); err != nil {
		return env, fmt.Errorf("decode compressed payload: %w", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return env, fmt.Errorf("gzip reader: %w", err)
	}
	defer zr.Close()

	data, err := io.ReadAll(io.LimitReader(zr, limit+1))
	if err != nil {
		return env, fmt.Errorf("gzip read: %w", err)
	}
	if int64(len(data)) > limit {
		return env, fmt.Errorf("%w: %s inflates past %d bytes", ErrPayloadTooLarge, env.Type, limit)
	}

	out := env
	out.Encoding = wire.EncodingJSON
	out.Data = data
	return out, nil
}
