package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Encoding names the representation of an envelope's data.
type Encoding string

const (
	EncodingJSON Encoding = ""
	EncodingGzip Encoding = "gzip"
)

// TypeBatch is the envelope type that carries several envelopes.
const TypeBatch = "batch"

// Errors
var (
	ErrUnknownType = errors.New("unknown message type")
	ErrEncoded     = errors.New("envelope data is compressed")
	ErrNotBatch    = errors.New("envelope is not a batch")
)

// Envelope is a single frame on the wire.
type Envelope struct {
	Type     string          `json:"type"`
	ID       string          `json:"id,omitempty"`
	TS       int64           `json:"ts"` // Unix milliseconds
	Encoding Encoding        `json:"encoding,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Time returns the envelope timestamp.
func (e Envelope) Time() time.Time {
	return time.UnixMilli(e.TS)
}

// Size returns the payload size in bytes.
func (e Envelope) Size() int {
	return len(e.Data)
}

// Marshal encodes an envelope as a frame.
func Marshal(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// Unmarshal decodes a frame into an envelope.
func Unmarshal(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, errors.New("decode envelope: missing type")
	}
	return env, nil
}

// NewBatch wraps envs, in order, into a single batch envelope.
func NewBatch(id string, envs []Envelope, now time.Time) (Envelope, error) {
	data, err := json.Marshal(envs)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode batch: %w", err)
	}
	return Envelope{Type: TypeBatch, ID: id, TS: now.UnixMilli(), Data: data}, nil
}

// SplitBatch returns the envelopes carried by a batch, in order.
func SplitBatch(env Envelope) ([]Envelope, error) {
	if env.Type != TypeBatch {
		return nil, ErrNotBatch
	}
	if env.Encoding != EncodingJSON {
		return nil, ErrEncoded
	}
	var envs []Envelope
	if err := json.Unmarshal(env.Data, &envs); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	return envs, nil
}

func encode(typ, id string, payload any, now time.Time) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", typ, err)
	}
	return Envelope{Type: typ, ID: id, TS: now.UnixMilli(), Data: data}, nil
}

func decode[T any](env Envelope) (T, error) {
	var v T
	if env.Encoding != EncodingJSON {
		return v, ErrEncoded
	}
	if len(env.Data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return v, nil
}
