// Package loader writes decoded records to InfluxDB for real-time
// dashboards.
package loader

import (
	"context"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/Natdev15/IoT-Payload-Optimization-Natesh-Masters-Thesis-2025/internal/config"
	"github.com/Natdev15/IoT-Payload-Optimization-Natesh-Masters-Thesis-2025/internal/model"
)

const measurement = "container-telemetry"

type InfluxDB struct {
	Client   influxdb2.Client
	WriteAPI api.WriteAPIBlocking
}

func NewInfluxDB(cfg *config.Config) *InfluxDB {
	client := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
	return &InfluxDB{
		Client:   client,
		WriteAPI: client.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket),
	}
}

func (db *InfluxDB) Close() {
	if db != nil && db.Client != nil {
		db.Client.Close()
	}
}

func (db *InfluxDB) WriteRecord(ctx context.Context, r *model.Record) error {
	return db.WriteAPI.WritePoint(ctx, buildPoint(r))
}

func buildPoint(r *model.Record) *write.Point {
	tags := map[string]string{
		"msisdn":  r.MSISDN,
		"iso6346": r.ISO6346,
		"door":    r.Door,
	}

	fields := map[string]interface{}{
		"rssi":        int64(r.RSSI),
		"ble_m":       int64(r.BLEMode),
		"bat_soc":     int64(r.BatterySOC),
		"acc_x":       r.AccX,
		"acc_y":       r.AccY,
		"acc_z":       r.AccZ,
		"temperature": r.Temperature,
		"humidity":    r.Humidity,
		"pressure":    r.Pressure,
		"gnss":        int64(r.GNSS),
		"latitude":    r.Latitude,
		"longitude":   r.Longitude,
		"altitude":    r.Altitude,
		"speed":       r.Speed,
		"heading":     r.Heading,
		"nsat":        int64(r.NSat),
		"hdop":        r.HDOP,
		"cgi":         r.CGI,
	}

	return write.NewPoint(measurement, tags, fields, r.Timestamp())
}
