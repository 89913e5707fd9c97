package model

import (
	"testing"
)

func sampleRecord() *Record {
	return &Record{
		MSISDN:      "393600504920",
		ISO6346:     "LMCU0954822",
		Time:        "300725 221117.8",
		RSSI:        21,
		CGI:         "999-01-1-31D41",
		BLEMode:     0,
		BatterySOC:  96,
		AccX:        -993.9,
		AccY:        -27.1,
		AccZ:        -52.0,
		Temperature: 22.1,
		Humidity:    68.0,
		Pressure:    1012.5043,
		Door:        "D",
		GNSS:        1,
		Latitude:    31.89,
		Longitude:   28.7,
		Altitude:    38.1,
		Speed:       27.3,
		Heading:     125.31,
		NSat:        6,
		HDOP:        1.8,
	}
}

func TestFieldsFormatting(t *testing.T) {
	f := sampleRecord().Fields()

	if len(f) != FieldCount {
		t.Fatalf("Fields returned %d entries, want %d", len(f), FieldCount)
	}

	want := map[string]string{
		"msisdn":      "393600504920",
		"iso6346":     "LMCU0954822",
		"time":        "300725 221117.8",
		"rssi":        "21",
		"cgi":         "999-01-1-31D41",
		"ble-m":       "0",
		"bat-soc":     "96",
		"acc":         "-993.9000 -27.1000 -52.0000",
		"temperature": "22.10",
		"humidity":    "68.00",
		"pressure":    "1012.5043",
		"door":        "D",
		"gnss":        "1",
		"latitude":    "31.89",
		"longitude":   "28.70",
		"altitude":    "38.10",
		"speed":       "27.3",
		"heading":     "125.31",
		"nsat":        "06",
		"hdop":        "1.8",
	}
	for k, w := range want {
		if f[k] != w {
			t.Errorf("field %s: got %q, want %q", k, f[k], w)
		}
	}
}

func TestFieldOrderMatchesCount(t *testing.T) {
	if len(FieldOrder) != FieldCount {
		t.Fatalf("FieldOrder has %d entries, want %d", len(FieldOrder), FieldCount)
	}
	seen := make(map[string]bool, len(FieldOrder))
	for _, k := range FieldOrder {
		if seen[k] {
			t.Errorf("duplicate field in order: %s", k)
		}
		seen[k] = true
	}
}

func TestParseRoundTrip(t *testing.T) {
	in := sampleRecord()
	out, err := Parse(in.Fields())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if *out != *in {
		t.Errorf("parsed record differs:\n got %+v\nwant %+v", out, in)
	}
}

func TestParseMissingField(t *testing.T) {
	f := sampleRecord().Fields()
	delete(f, "hdop")
	if _, err := Parse(f); err == nil {
		t.Fatal("parse with missing field succeeded")
	}
}

func TestParseMalformed(t *testing.T) {
	cases := map[string]string{
		"rssi":        "not-a-number",
		"temperature": "warm",
		"acc":         "1.0 2.0",
		"nsat":        "999",
	}
	for key, bad := range cases {
		f := sampleRecord().Fields()
		f[key] = bad
		if _, err := Parse(f); err == nil {
			t.Errorf("parse with %s=%q succeeded", key, bad)
		}
	}
}
