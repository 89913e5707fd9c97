package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"unicode/utf8"

	"github.com/klauspost/compress/zlib"

	"github.com/Natdev15/IoT-Payload-Optimization-Natesh-Masters-Thesis-2025/internal/model"
)

// StructZlib is the wire format of the deployed sensor units: a fixed
// big-endian section holding one-byte integers, float32 values and the
// uint16 length prefix of every string field at its field position,
// followed by all string payload bytes in field order, the whole buffer
// deflated at maximum compression.
//
// The string bytes are deferred to the end of the flat buffer (rather
// than following their prefix inline) because that is what the devices
// emit; the layout must stay bit-for-bit compatible.
type StructZlib struct {
	MaxPayload int
}

func (c *StructZlib) Name() string { return "structzlib" }

func (c *StructZlib) Encode(r *model.Record) ([]byte, error) {
	fixed := new(bytes.Buffer)
	var tail []byte

	putString := func(s string) {
		binary.Write(fixed, binary.BigEndian, uint16(len(s)))
		tail = append(tail, s...)
	}
	putF32 := func(f float64) {
		binary.Write(fixed, binary.BigEndian, math.Float32bits(float32(f)))
	}

	putString(r.MSISDN)
	putString(r.ISO6346)
	putString(r.Time)
	fixed.WriteByte(r.RSSI)
	putString(r.CGI)
	fixed.WriteByte(r.BLEMode)
	fixed.WriteByte(r.BatterySOC)
	putF32(r.AccX)
	putF32(r.AccY)
	putF32(r.AccZ)
	putF32(r.Temperature)
	putF32(r.Humidity)
	putF32(r.Pressure)
	putString(r.Door)
	fixed.WriteByte(r.GNSS)
	putF32(r.Latitude)
	putF32(r.Longitude)
	putF32(r.Altitude)
	putF32(r.Speed)
	putF32(r.Heading)
	fixed.WriteByte(r.NSat)
	putF32(r.HDOP)

	fixed.Write(tail)

	var out bytes.Buffer
	zw, err := zlib.NewWriterLevel(&out, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(fixed.Bytes()); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}

	if out.Len() > c.MaxPayload {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrEncodedTooLarge, out.Len(), c.MaxPayload)
	}
	return out.Bytes(), nil
}

func (c *StructZlib) Decode(data []byte) (*model.Record, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, decodeErr("zlib header", err)
	}
	raw, err := io.ReadAll(zr)
	zr.Close()
	if err != nil {
		return nil, decodeErr("inflate", err)
	}

	r := &model.Record{}
	cur := &cursor{buf: raw}

	// Pass 1: fixed-size fields and string length prefixes, in wire
	// order. String bytes are consumed in pass 2.
	cur.deferString(&r.MSISDN, "msisdn")
	cur.deferString(&r.ISO6346, "iso6346")
	cur.deferString(&r.Time, "time")
	cur.u8(&r.RSSI, "rssi")
	cur.deferString(&r.CGI, "cgi")
	cur.u8(&r.BLEMode, "ble-m")
	cur.u8(&r.BatterySOC, "bat-soc")
	cur.f32vec3(&r.AccX, &r.AccY, &r.AccZ, "acc")
	cur.f32(&r.Temperature, "temperature")
	cur.f32(&r.Humidity, "humidity")
	cur.f32(&r.Pressure, "pressure")
	cur.deferString(&r.Door, "door")
	cur.u8(&r.GNSS, "gnss")
	cur.f32(&r.Latitude, "latitude")
	cur.f32(&r.Longitude, "longitude")
	cur.f32(&r.Altitude, "altitude")
	cur.f32(&r.Speed, "speed")
	cur.f32(&r.Heading, "heading")
	cur.u8(&r.NSat, "nsat")
	cur.f32(&r.HDOP, "hdop")

	// Pass 2: the deferred string payloads.
	cur.resolve()

	if cur.err != nil {
		return nil, cur.err
	}
	if cur.off != len(cur.buf) {
		return nil, decodeErr(fmt.Sprintf("%d trailing bytes after last field", len(cur.buf)-cur.off), nil)
	}
	if got := cur.fields; got != model.FieldCount {
		return nil, decodeErr(fmt.Sprintf("field count mismatch: got %d, want %d", got, model.FieldCount), nil)
	}
	return r, nil
}

type deferredString struct {
	dst  *string
	n    int
	name string
}

// cursor walks the inflated buffer. The deferred list makes the
// two-pass coupling between interleaved length prefixes and trailing
// string bytes an explicit data structure. The first error sticks and
// turns every later read into a no-op.
type cursor struct {
	buf      []byte
	off      int
	deferred []deferredString
	fields   int
	err      error
}

func (c *cursor) take(n int, name string) []byte {
	if c.err != nil {
		return nil
	}
	if c.off+n > len(c.buf) {
		c.err = decodeErr(fmt.Sprintf("field %s: need %d bytes at offset %d, have %d", name, n, c.off, len(c.buf)-c.off), nil)
		return nil
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b
}

func (c *cursor) u8(dst *uint8, name string) {
	if b := c.take(1, name); b != nil {
		*dst = b[0]
		c.fields++
	}
}

func (c *cursor) f32(dst *float64, name string) {
	if b := c.take(4, name); b != nil {
		*dst = float64(math.Float32frombits(binary.BigEndian.Uint32(b)))
		c.fields++
	}
}

// f32vec3 reads three contiguous floats that make up a single named
// field (the accelerometer triple).
func (c *cursor) f32vec3(x, y, z *float64, name string) {
	if b := c.take(12, name); b != nil {
		*x = float64(math.Float32frombits(binary.BigEndian.Uint32(b[0:4])))
		*y = float64(math.Float32frombits(binary.BigEndian.Uint32(b[4:8])))
		*z = float64(math.Float32frombits(binary.BigEndian.Uint32(b[8:12])))
		c.fields++
	}
}

func (c *cursor) deferString(dst *string, name string) {
	if b := c.take(2, name); b != nil {
		n := int(binary.BigEndian.Uint16(b))
		c.deferred = append(c.deferred, deferredString{dst: dst, n: n, name: name})
	}
}

func (c *cursor) resolve() {
	for _, d := range c.deferred {
		b := c.take(d.n, d.name)
		if b == nil {
			return
		}
		if !utf8.Valid(b) {
			c.err = decodeErr("field "+d.name+": invalid UTF-8", nil)
			return
		}
		*d.dst = string(b)
		c.fields++
	}
}
