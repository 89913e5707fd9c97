// Package model holds the canonical telemetry record exchanged between
// the codec, the queues and the downstream sinks.
//
// Devices report every sensor value as display text; internally the
// record keeps typed values and converts back to the textual form only
// at the external boundary (Fields), so the codec and queues never deal
// with string formatting.
package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FieldCount is the number of named fields a complete record carries.
// Decoding anything other than exactly this many fields is corruption.
const FieldCount = 20

// FieldOrder is the wire-significant field sequence shared by every
// codec variant. The struct+zlib layout has no field tags, so order is
// the contract.
var FieldOrder = []string{
	"msisdn", "iso6346", "time", "rssi", "cgi", "ble-m", "bat-soc",
	"acc", "temperature", "humidity", "pressure", "door", "gnss",
	"latitude", "longitude", "altitude", "speed", "heading", "nsat", "hdop",
}

// Record is one decoded container telemetry report.
type Record struct {
	MSISDN  string // SIM identifier
	ISO6346 string // container identifier
	Time    string // UTC timestamp, DDMMYY hhmmss.s

	RSSI       uint8
	CGI        string // cell location identifier
	BLEMode    uint8
	BatterySOC uint8

	AccX, AccY, AccZ float64

	Temperature float64
	Humidity    float64
	Pressure    float64

	Door string // 1-2 char door status
	GNSS uint8

	Latitude  float64
	Longitude float64
	Altitude  float64
	Speed     float64
	Heading   float64

	NSat uint8
	HDOP float64
}

// Fields renders the record in the textual form the devices report and
// the downstream M2M endpoint expects. Rounding here is the lossy
// boundary of the float32 wire encoding and is deliberate.
func (r *Record) Fields() map[string]string {
	return map[string]string{
		"msisdn":      r.MSISDN,
		"iso6346":     r.ISO6346,
		"time":        r.Time,
		"rssi":        strconv.Itoa(int(r.RSSI)),
		"cgi":         r.CGI,
		"ble-m":       strconv.Itoa(int(r.BLEMode)),
		"bat-soc":     strconv.Itoa(int(r.BatterySOC)),
		"acc":         fmt.Sprintf("%.4f %.4f %.4f", r.AccX, r.AccY, r.AccZ),
		"temperature": fmt.Sprintf("%.2f", r.Temperature),
		"humidity":    fmt.Sprintf("%.2f", r.Humidity),
		"pressure":    fmt.Sprintf("%.4f", r.Pressure),
		"door":        r.Door,
		"gnss":        strconv.Itoa(int(r.GNSS)),
		"latitude":    fmt.Sprintf("%.2f", r.Latitude),
		"longitude":   fmt.Sprintf("%.2f", r.Longitude),
		"altitude":    fmt.Sprintf("%.2f", r.Altitude),
		"speed":       fmt.Sprintf("%.1f", r.Speed),
		"heading":     fmt.Sprintf("%.2f", r.Heading),
		"nsat":        fmt.Sprintf("%02d", r.NSat),
		"hdop":        fmt.Sprintf("%.1f", r.HDOP),
	}
}

// Timestamp parses the record's DDMMYY hhmmss.s time field. Falls back
// to now when the device clock produced something unparseable.
func (r *Record) Timestamp() time.Time {
	if t, err := time.Parse("020106 150405.0", r.Time); err == nil {
		return t
	}
	return time.Now().UTC()
}

// Parse rebuilds a typed record from its textual field map. All 20
// fields must be present and well formed.
func Parse(fields map[string]string) (*Record, error) {
	for _, k := range FieldOrder {
		if _, ok := fields[k]; !ok {
			return nil, fmt.Errorf("missing field: %s", k)
		}
	}

	r := &Record{
		MSISDN:  fields["msisdn"],
		ISO6346: fields["iso6346"],
		Time:    fields["time"],
		CGI:     fields["cgi"],
		Door:    fields["door"],
	}

	var err error
	if r.RSSI, err = parseByte(fields, "rssi"); err != nil {
		return nil, err
	}
	if r.BLEMode, err = parseByte(fields, "ble-m"); err != nil {
		return nil, err
	}
	if r.BatterySOC, err = parseByte(fields, "bat-soc"); err != nil {
		return nil, err
	}
	if r.GNSS, err = parseByte(fields, "gnss"); err != nil {
		return nil, err
	}
	if r.NSat, err = parseByte(fields, "nsat"); err != nil {
		return nil, err
	}

	if r.Temperature, err = parseFloat(fields, "temperature"); err != nil {
		return nil, err
	}
	if r.Humidity, err = parseFloat(fields, "humidity"); err != nil {
		return nil, err
	}
	if r.Pressure, err = parseFloat(fields, "pressure"); err != nil {
		return nil, err
	}
	if r.Latitude, err = parseFloat(fields, "latitude"); err != nil {
		return nil, err
	}
	if r.Longitude, err = parseFloat(fields, "longitude"); err != nil {
		return nil, err
	}
	if r.Altitude, err = parseFloat(fields, "altitude"); err != nil {
		return nil, err
	}
	if r.Speed, err = parseFloat(fields, "speed"); err != nil {
		return nil, err
	}
	if r.Heading, err = parseFloat(fields, "heading"); err != nil {
		return nil, err
	}
	if r.HDOP, err = parseFloat(fields, "hdop"); err != nil {
		return nil, err
	}

	acc := strings.Fields(fields["acc"])
	if len(acc) != 3 {
		return nil, fmt.Errorf("field acc: want 3 values, got %d", len(acc))
	}
	if r.AccX, err = strconv.ParseFloat(acc[0], 64); err != nil {
		return nil, fmt.Errorf("field acc: %w", err)
	}
	if r.AccY, err = strconv.ParseFloat(acc[1], 64); err != nil {
		return nil, fmt.Errorf("field acc: %w", err)
	}
	if r.AccZ, err = strconv.ParseFloat(acc[2], 64); err != nil {
		return nil, fmt.Errorf("field acc: %w", err)
	}

	return r, nil
}

func parseByte(fields map[string]string, key string) (uint8, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(fields[key]), 10, 8)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", key, err)
	}
	return uint8(n), nil
}

func parseFloat(fields map[string]string, key string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(fields[key]), 64)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", key, err)
	}
	return f, nil
}
