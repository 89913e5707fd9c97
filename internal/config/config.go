package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr string

	CodecName       string
	MaxPayloadBytes int
	MaxBodyBytes    int64

	IngestInterval  time.Duration
	ForwardInterval time.Duration
	RetryBase       time.Duration
	RetryCap        time.Duration
	MaxAttempts     int

	// oneM2M forwarding target; empty CSEURL disables forwarding.
	CSEURL         string
	CSEOrigin      string
	RequestTimeout time.Duration

	SchemaPath       string
	SchemaValidation bool

	MQTTEnabled   bool
	MQTTBrokerURL string
	MQTTClientID  string
	MQTTUsername  string
	MQTTPassword  string
	MQTTTopic     string
	MQTTQoS       byte

	KafkaEnabled  bool
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaDLQTopic string

	InfluxEnabled bool
	InfluxURL     string
	InfluxToken   string
	InfluxOrg     string
	InfluxBucket  string

	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration

	ArchiveEnabled     bool
	ArchiveEndpoint    string
	ArchiveAccessKey   string
	ArchiveSecretKey   string
	ArchiveUseTLS      bool
	ArchiveBucket      string
	ArchiveBasePath    string
	ArchiveCompression string

	Logger *log.Logger
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getenvMs(key string, fallbackMs int) time.Duration {
	return time.Duration(getenvInt(key, fallbackMs)) * time.Millisecond
}

func LoadConfig() (*Config, error) {
	getenvQoS := func(key string, fallback byte) byte {
		val := os.Getenv(key)
		if val == "" {
			return fallback
		}
		if n, err := strconv.Atoi(val); err == nil {
			if n < 0 {
				n = 0
			}
			if n > 2 {
				n = 2
			}
			return byte(n)
		}
		return fallback
	}

	cfg := &Config{
		HTTPAddr: getenv("HTTP_ADDR", ":3000"),

		CodecName:       getenv("CODEC", "structzlib"),
		MaxPayloadBytes: getenvInt("MAX_PAYLOAD_BYTES", 158),
		MaxBodyBytes:    int64(getenvInt("MAX_BODY_BYTES", 4096)),

		IngestInterval:  getenvMs("INGEST_INTERVAL_MS", 5000),
		ForwardInterval: getenvMs("FORWARD_INTERVAL_MS", 5000),
		RetryBase:       getenvMs("RETRY_BASE_MS", 5000),
		RetryCap:        getenvMs("RETRY_CAP_MS", 60000),
		MaxAttempts:     getenvInt("MAX_DELIVERY_ATTEMPTS", 100),

		CSEURL:         os.Getenv("CSE_URL"),
		CSEOrigin:      getenv("CSE_ORIGIN", "CContainerCollector"),
		RequestTimeout: getenvMs("REQUEST_TIMEOUT_MS", 10000),

		SchemaPath:       os.Getenv("SCHEMA_PATH"),
		SchemaValidation: getenvBool("SCHEMA_VALIDATION", false),

		MQTTEnabled:   getenvBool("MQTT_ENABLED", false),
		MQTTBrokerURL: getenv("MQTT_BROKER_URL", "tcp://localhost:1883"),
		MQTTClientID:  getenv("MQTT_CLIENT_ID", "container-collector"),
		MQTTUsername:  os.Getenv("MQTT_USERNAME"),
		MQTTPassword:  os.Getenv("MQTT_PASSWORD"),
		MQTTTopic:     getenv("MQTT_TOPIC", "containers/telemetry"),
		MQTTQoS:       getenvQoS("MQTT_QOS", 1),

		KafkaEnabled:  getenvBool("KAFKA_ENABLED", false),
		KafkaBrokers:  strings.Split(getenv("KAFKA_BROKERS", "localhost:9092"), ","),
		KafkaTopic:    getenv("KAFKA_TOPIC", "container-telemetry"),
		KafkaDLQTopic: getenv("KAFKA_DLQ_TOPIC", "container-telemetry-dlq"),

		InfluxEnabled: getenvBool("INFLUX_ENABLED", false),
		InfluxURL:     getenv("INFLUX_URL", "http://localhost:8086"),
		InfluxToken:   os.Getenv("INFLUX_TOKEN"),
		InfluxOrg:     getenv("INFLUX_ORG", "containers"),
		InfluxBucket:  getenv("INFLUX_BUCKET", "telemetry"),

		RedisEnabled:  getenvBool("REDIS_ENABLED", false),
		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getenvInt("REDIS_DB", 0),
		RedisTTL:      getenvMs("REDIS_TTL_MS", 0),

		ArchiveEnabled:     getenvBool("ARCHIVE_ENABLED", false),
		ArchiveEndpoint:    getenv("ARCHIVE_ENDPOINT", "localhost:9000"),
		ArchiveAccessKey:   os.Getenv("ARCHIVE_ACCESS_KEY"),
		ArchiveSecretKey:   os.Getenv("ARCHIVE_SECRET_KEY"),
		ArchiveUseTLS:      getenvBool("ARCHIVE_USE_TLS", false),
		ArchiveBucket:      getenv("ARCHIVE_BUCKET", "dead-letters"),
		ArchiveBasePath:    getenv("ARCHIVE_BASE_PATH", "given-up"),
		ArchiveCompression: getenv("ARCHIVE_COMPRESSION", "SNAPPY"),

		Logger: log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds),
	}

	if cfg.MaxPayloadBytes <= 0 {
		return nil, errors.New("MAX_PAYLOAD_BYTES must be positive")
	}
	if cfg.MaxAttempts <= 0 {
		return nil, errors.New("MAX_DELIVERY_ATTEMPTS must be positive")
	}
	if cfg.RetryBase <= 0 || cfg.RetryCap < cfg.RetryBase {
		return nil, fmt.Errorf("invalid retry window: base=%s cap=%s", cfg.RetryBase, cfg.RetryCap)
	}
	if cfg.KafkaEnabled && (len(cfg.KafkaBrokers) == 0 || cfg.KafkaBrokers[0] == "") {
		return nil, errors.New("KAFKA_BROKERS must not be empty when KAFKA_ENABLED is set")
	}

	return cfg, nil
}
