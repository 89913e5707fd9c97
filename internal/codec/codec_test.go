package codec

import (
	"errors"
	"testing"

	"github.com/Natdev15/IoT-Payload-Optimization-Natesh-Masters-Thesis-2025/internal/model"
)

func TestNewCodec(t *testing.T) {
	for _, name := range []string{"structzlib", "cbor", "msgpack", ""} {
		c, err := New(name, 0)
		if err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
		if c == nil {
			t.Fatalf("New(%q): nil codec", name)
		}
	}

	if _, err := New("protobuf", 0); err == nil {
		t.Fatal("New with unknown name succeeded")
	}
}

func TestAdapterRoundTrip(t *testing.T) {
	for _, c := range []Codec{
		&CBOR{MaxPayload: 1024},
		&MsgPack{MaxPayload: 1024},
	} {
		t.Run(c.Name(), func(t *testing.T) {
			in := sampleRecord()
			data, err := c.Encode(in)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			out, err := c.Decode(data)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}

			want := in.Fields()
			got := out.Fields()
			if len(got) != model.FieldCount {
				t.Fatalf("decoded %d fields, want %d", len(got), model.FieldCount)
			}
			for k, w := range want {
				if got[k] != w {
					t.Errorf("field %s: got %q, want %q", k, got[k], w)
				}
			}
		})
	}
}

func TestAdapterSizeCeiling(t *testing.T) {
	for _, c := range []Codec{
		&CBOR{MaxPayload: 10},
		&MsgPack{MaxPayload: 10},
	} {
		if _, err := c.Encode(sampleRecord()); !errors.Is(err, ErrEncodedTooLarge) {
			t.Errorf("%s: want ErrEncodedTooLarge, got %v", c.Name(), err)
		}
	}
}

func TestAdapterDecodeGarbage(t *testing.T) {
	for _, c := range []Codec{
		&CBOR{MaxPayload: 1024},
		&MsgPack{MaxPayload: 1024},
	} {
		_, err := c.Decode([]byte{0xde, 0xad, 0xbe, 0xef})
		var derr *DecodeError
		if !errors.As(err, &derr) {
			t.Errorf("%s: want *DecodeError, got %v", c.Name(), err)
		}
	}
}
