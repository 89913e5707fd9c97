// Package archive persists given-up outbound items as Parquet objects
// in S3-compatible storage, so records dropped from the forwarding path
// stay recoverable for offline replay.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/Natdev15/IoT-Payload-Optimization-Natesh-Masters-Thesis-2025/internal/config"
	"github.com/Natdev15/IoT-Payload-Optimization-Natesh-Masters-Thesis-2025/internal/queue"
)

// Row is the parquet schema of one archived record: the 20 textual
// fields plus the retry history.
type Row struct {
	MSISDN      string `parquet:"name=msisdn, type=BYTE_ARRAY, convertedtype=UTF8"`
	ISO6346     string `parquet:"name=iso6346, type=BYTE_ARRAY, convertedtype=UTF8"`
	Time        string `parquet:"name=time, type=BYTE_ARRAY, convertedtype=UTF8"`
	RSSI        string `parquet:"name=rssi, type=BYTE_ARRAY, convertedtype=UTF8"`
	CGI         string `parquet:"name=cgi, type=BYTE_ARRAY, convertedtype=UTF8"`
	BLEMode     string `parquet:"name=ble_m, type=BYTE_ARRAY, convertedtype=UTF8"`
	BatterySOC  string `parquet:"name=bat_soc, type=BYTE_ARRAY, convertedtype=UTF8"`
	Acc         string `parquet:"name=acc, type=BYTE_ARRAY, convertedtype=UTF8"`
	Temperature string `parquet:"name=temperature, type=BYTE_ARRAY, convertedtype=UTF8"`
	Humidity    string `parquet:"name=humidity, type=BYTE_ARRAY, convertedtype=UTF8"`
	Pressure    string `parquet:"name=pressure, type=BYTE_ARRAY, convertedtype=UTF8"`
	Door        string `parquet:"name=door, type=BYTE_ARRAY, convertedtype=UTF8"`
	GNSS        string `parquet:"name=gnss, type=BYTE_ARRAY, convertedtype=UTF8"`
	Latitude    string `parquet:"name=latitude, type=BYTE_ARRAY, convertedtype=UTF8"`
	Longitude   string `parquet:"name=longitude, type=BYTE_ARRAY, convertedtype=UTF8"`
	Altitude    string `parquet:"name=altitude, type=BYTE_ARRAY, convertedtype=UTF8"`
	Speed       string `parquet:"name=speed, type=BYTE_ARRAY, convertedtype=UTF8"`
	Heading     string `parquet:"name=heading, type=BYTE_ARRAY, convertedtype=UTF8"`
	NSat        string `parquet:"name=nsat, type=BYTE_ARRAY, convertedtype=UTF8"`
	HDOP        string `parquet:"name=hdop, type=BYTE_ARRAY, convertedtype=UTF8"`

	Attempts  int32 `parquet:"name=attempts, type=INT32"`
	CreatedAt int64 `parquet:"name=created_at_ms, type=INT64"`
	DroppedAt int64 `parquet:"name=dropped_at_ms, type=INT64"`
}

type DeadLetterArchive struct {
	mc       *minio.Client
	bucket   string
	basePath string
	compress string
}

func NewDeadLetterArchive(cfg *config.Config) (*DeadLetterArchive, error) {
	mc, err := minio.New(cfg.ArchiveEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.ArchiveAccessKey, cfg.ArchiveSecretKey, ""),
		Secure: cfg.ArchiveUseTLS,
	})
	if err != nil {
		return nil, err
	}
	return &DeadLetterArchive{
		mc:       mc,
		bucket:   cfg.ArchiveBucket,
		basePath: cfg.ArchiveBasePath,
		compress: cfg.ArchiveCompression,
	}, nil
}

func (a *DeadLetterArchive) EnsureBucket(ctx context.Context) error {
	exists, err := a.mc.BucketExists(ctx, a.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return a.mc.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{})
	}
	return nil
}

// Archive writes the given-up items to a local Parquet file and uploads
// it under base/year=/month=/day=/.
func (a *DeadLetterArchive) Archive(ctx context.Context, items []queue.DeadRecord) error {
	if len(items) == 0 {
		return nil
	}

	ts := time.Now().UTC()
	fn := fmt.Sprintf("part-%s-%s.parquet", ts.Format("2006-01-02T15-04-05Z"), uuid.NewString())
	tmp := filepath.Join(os.TempDir(), fn)

	fw, err := local.NewLocalFileWriter(tmp)
	if err != nil {
		return err
	}
	pw, err := writer.NewParquetWriter(fw, new(Row), 4)
	if err != nil {
		_ = fw.Close()
		return err
	}
	switch a.compress {
	case "ZSTD":
		pw.CompressionType = parquet.CompressionCodec_ZSTD
	case "GZIP":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	default:
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	}

	for _, it := range items {
		if err := pw.Write(toRow(it)); err != nil {
			_ = pw.WriteStop()
			_ = fw.Close()
			return err
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = fw.Close()
		return err
	}
	if err := fw.Close(); err != nil {
		return err
	}

	f, err := os.Open(tmp)
	if err != nil {
		return err
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}

	objPath := buildObjectPath(a.basePath, ts, fn)
	_, err = a.mc.PutObject(ctx, a.bucket, objPath, f, fi.Size(), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	_ = f.Close()
	_ = os.Remove(tmp)
	return err
}

func toRow(it queue.DeadRecord) Row {
	f := it.Record.Fields()
	return Row{
		MSISDN:      f["msisdn"],
		ISO6346:     f["iso6346"],
		Time:        f["time"],
		RSSI:        f["rssi"],
		CGI:         f["cgi"],
		BLEMode:     f["ble-m"],
		BatterySOC:  f["bat-soc"],
		Acc:         f["acc"],
		Temperature: f["temperature"],
		Humidity:    f["humidity"],
		Pressure:    f["pressure"],
		Door:        f["door"],
		GNSS:        f["gnss"],
		Latitude:    f["latitude"],
		Longitude:   f["longitude"],
		Altitude:    f["altitude"],
		Speed:       f["speed"],
		Heading:     f["heading"],
		NSat:        f["nsat"],
		HDOP:        f["hdop"],

		Attempts:  int32(it.Attempts),
		CreatedAt: it.CreatedAt.UnixMilli(),
		DroppedAt: it.DroppedAt.UnixMilli(),
	}
}

func buildObjectPath(basePath string, t time.Time, file string) string {
	return fmt.Sprintf("%s/year=%04d/month=%02d/day=%02d/%s",
		basePath, t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), file)
}
