// Package codec implements the interchangeable payload encodings for
// container telemetry. The struct+zlib variant is the wire format the
// deployed sensor units speak; cbor and msgpack mirror the alternative
// service variants and encode the textual field map directly.
package codec

import (
	"errors"
	"fmt"

	"github.com/Natdev15/IoT-Payload-Optimization-Natesh-Masters-Thesis-2025/internal/model"
)

// DefaultMaxPayload is the downlink budget of the M2M uplink: an
// encoded envelope may never exceed this many bytes.
const DefaultMaxPayload = 158

// ErrEncodedTooLarge reports an encode whose output exceeds the payload
// ceiling. The caller must shrink the input (shorter string fields) and
// retry; the codec never truncates.
var ErrEncodedTooLarge = errors.New("encoded payload exceeds size ceiling")

// DecodeError reports a malformed, truncated or corrupt envelope. Such
// envelopes are discarded by the caller, never retried.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode: %s: %v", e.Reason, e.Err)
	}
	return "decode: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

func decodeErr(reason string, err error) *DecodeError {
	return &DecodeError{Reason: reason, Err: err}
}

// Codec encodes a telemetry record into a size-bounded envelope and
// back. Implementations are stateless and safe for concurrent use.
type Codec interface {
	Encode(r *model.Record) ([]byte, error)
	Decode(data []byte) (*model.Record, error)
	Name() string
}

// New returns the codec registered under name. maxPayload <= 0 selects
// the default ceiling.
func New(name string, maxPayload int) (Codec, error) {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	switch name {
	case "structzlib", "":
		return &StructZlib{MaxPayload: maxPayload}, nil
	case "cbor":
		return &CBOR{MaxPayload: maxPayload}, nil
	case "msgpack":
		return &MsgPack{MaxPayload: maxPayload}, nil
	default:
		return nil, fmt.Errorf("unknown codec: %q", name)
	}
}
