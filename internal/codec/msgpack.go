package codec

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/Natdev15/IoT-Payload-Optimization-Natesh-Masters-Thesis-2025/internal/model"
)

// MsgPack encodes the textual field map directly, matching the
// MessagePack service variant.
type MsgPack struct {
	MaxPayload int
}

func (c *MsgPack) Name() string { return "msgpack" }

func (c *MsgPack) Encode(r *model.Record) ([]byte, error) {
	out, err := msgpack.Marshal(r.Fields())
	if err != nil {
		return nil, err
	}
	if len(out) > c.MaxPayload {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrEncodedTooLarge, len(out), c.MaxPayload)
	}
	return out, nil
}

func (c *MsgPack) Decode(data []byte) (*model.Record, error) {
	var fields map[string]string
	if err := msgpack.Unmarshal(data, &fields); err != nil {
		return nil, decodeErr("msgpack", err)
	}
	r, err := model.Parse(fields)
	if err != nil {
		return nil, decodeErr("msgpack field map", err)
	}
	return r, nil
}
