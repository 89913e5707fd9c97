package codec

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/Natdev15/IoT-Payload-Optimization-Natesh-Masters-Thesis-2025/internal/model"
)

// CBOR encodes the textual field map directly, matching the CBOR
// service variant. Self-describing, so no compression pass.
type CBOR struct {
	MaxPayload int
}

func (c *CBOR) Name() string { return "cbor" }

func (c *CBOR) Encode(r *model.Record) ([]byte, error) {
	out, err := cbor.Marshal(r.Fields())
	if err != nil {
		return nil, err
	}
	if len(out) > c.MaxPayload {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrEncodedTooLarge, len(out), c.MaxPayload)
	}
	return out, nil
}

func (c *CBOR) Decode(data []byte) (*model.Record, error) {
	var fields map[string]string
	if err := cbor.Unmarshal(data, &fields); err != nil {
		return nil, decodeErr("cbor", err)
	}
	r, err := model.Parse(fields)
	if err != nil {
		return nil, decodeErr("cbor field map", err)
	}
	return r, nil
}
