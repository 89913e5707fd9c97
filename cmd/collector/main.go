package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Natdev15/IoT-Payload-Optimization-Natesh-Masters-Thesis-2025/internal/api"
	"github.com/Natdev15/IoT-Payload-Optimization-Natesh-Masters-Thesis-2025/internal/archive"
	"github.com/Natdev15/IoT-Payload-Optimization-Natesh-Masters-Thesis-2025/internal/broker"
	"github.com/Natdev15/IoT-Payload-Optimization-Natesh-Masters-Thesis-2025/internal/codec"
	"github.com/Natdev15/IoT-Payload-Optimization-Natesh-Masters-Thesis-2025/internal/config"
	"github.com/Natdev15/IoT-Payload-Optimization-Natesh-Masters-Thesis-2025/internal/forward"
	"github.com/Natdev15/IoT-Payload-Optimization-Natesh-Masters-Thesis-2025/internal/loader"
	"github.com/Natdev15/IoT-Payload-Optimization-Natesh-Masters-Thesis-2025/internal/model"
	mqtttransport "github.com/Natdev15/IoT-Payload-Optimization-Natesh-Masters-Thesis-2025/internal/mqtt"
	"github.com/Natdev15/IoT-Payload-Optimization-Natesh-Masters-Thesis-2025/internal/queue"
	"github.com/Natdev15/IoT-Payload-Optimization-Natesh-Masters-Thesis-2025/internal/schema"
	"github.com/Natdev15/IoT-Payload-Optimization-Natesh-Masters-Thesis-2025/internal/state"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "collector",
		Short: "Container telemetry collector - decodes compact sensor envelopes and forwards them downstream",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(encodeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the collector service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			return run(cfg)
		},
	}
}

func run(cfg *config.Config) error {
	cdc, err := codec.New(cfg.CodecName, cfg.MaxPayloadBytes)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupGracefulShutdown(cancel, cfg)

	var validate func(*model.Record) error
	if cfg.SchemaValidation {
		v, err := schema.Load(cfg.SchemaPath)
		if err != nil {
			return fmt.Errorf("schema error: %w", err)
		}
		validate = v.ValidateRecord
	}

	var publisher *broker.Publisher
	if cfg.KafkaEnabled {
		publisher = broker.NewPublisher(cfg)
		defer publisher.Close()
	}

	var influx *loader.InfluxDB
	if cfg.InfluxEnabled {
		influx = loader.NewInfluxDB(cfg)
		defer influx.Close()
	}

	var lastValues *state.LastValueStore
	if cfg.RedisEnabled {
		lastValues = state.NewLastValueStore(cfg)
		defer lastValues.Close()
	}

	var sender queue.Sender
	if cfg.CSEURL != "" {
		sender = forward.NewM2MSender(cfg.CSEURL, cfg.CSEOrigin, cfg.RequestTimeout)
	} else {
		cfg.Logger.Println("CSE_URL not set; forwarding disabled")
	}

	outbound := queue.NewOutboundQueue(sender, cfg.ForwardInterval, cfg.RetryBase, cfg.RetryCap, cfg.MaxAttempts, queue.SystemClock, cfg.Logger)

	if cfg.ArchiveEnabled {
		dla, err := archive.NewDeadLetterArchive(cfg)
		if err != nil {
			return fmt.Errorf("archive error: %w", err)
		}
		if err := dla.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("archive bucket error: %w", err)
		}
		outbound.Archive = dla
	}

	sink := &recordSink{
		ctx:        ctx,
		cfg:        cfg,
		outbound:   outbound,
		publisher:  publisher,
		influx:     influx,
		lastValues: lastValues,
	}

	ingest := queue.NewIngestQueue(cdc, sink, cfg.IngestInterval, queue.SystemClock, cfg.Logger)
	ingest.Validate = validate
	if publisher != nil {
		ingest.Dead = publisher
	}

	go ingest.Run(ctx)
	go outbound.Run(ctx)

	if cfg.MQTTEnabled {
		client := mqtttransport.BuildClient(cfg, ingest)
		go mqtttransport.ConnectWithBackoff(ctx, cfg, client, 2*time.Second, 30*time.Second)
		defer client.Disconnect(250)
	}

	server := api.NewServer(ingest, outbound, latestOrNil(lastValues), cfg.MaxBodyBytes, cfg.Logger)
	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: server.Router()}

	go func() {
		cfg.Logger.Printf("collector listening on %s (codec=%s, ceiling=%dB)", cfg.HTTPAddr, cdc.Name(), cfg.MaxPayloadBytes)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			cfg.Logger.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		cfg.Logger.Printf("http shutdown error: %v", err)
	}
	cfg.Logger.Println("collector stopped")
	return nil
}

// recordSink fans a decoded record out to the outbound queue and the
// optional side sinks. Side-sink failures are logged and never gate the
// forwarding path.
type recordSink struct {
	ctx        context.Context
	cfg        *config.Config
	outbound   *queue.OutboundQueue
	publisher  *broker.Publisher
	influx     *loader.InfluxDB
	lastValues *state.LastValueStore
}

func (s *recordSink) Accept(r *model.Record) {
	s.outbound.Accept(r)

	if s.publisher != nil {
		if err := s.publisher.PublishRecord(s.ctx, r); err != nil {
			s.cfg.Logger.Printf("kafka publish error: %v", err)
		}
	}
	if s.influx != nil {
		if err := s.influx.WriteRecord(s.ctx, r); err != nil {
			s.cfg.Logger.Printf("influx write error: %v", err)
		}
	}
	if s.lastValues != nil {
		if err := s.lastValues.Set(s.ctx, r); err != nil {
			s.cfg.Logger.Printf("redis set error: %v", err)
		}
	}
}

// latestOrNil avoids handing the API a typed-nil interface value.
func latestOrNil(s *state.LastValueStore) api.LatestStore {
	if s == nil {
		return nil
	}
	return s
}

func setupGracefulShutdown(cancel context.CancelFunc, cfg *config.Config) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		cfg.Logger.Printf("received signal: %v - shutting down...", s)
		cancel()
	}()
}

func encodeCmd() *cobra.Command {
	var codecName string
	var maxPayload int

	cmd := &cobra.Command{
		Use:   "encode [file]",
		Short: "Encode a JSON field document and print the envelope as hex",
		Long: `Reads a JSON document holding the 20 textual telemetry fields,
encodes it with the selected codec and prints the envelope size and
hex bytes. Useful for producing test payloads and checking how close a
record sits to the payload ceiling.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var fields map[string]string
			if err := json.Unmarshal(raw, &fields); err != nil {
				return fmt.Errorf("invalid input JSON: %w", err)
			}
			rec, err := model.Parse(fields)
			if err != nil {
				return err
			}

			cdc, err := codec.New(codecName, maxPayload)
			if err != nil {
				return err
			}
			out, err := cdc.Encode(rec)
			if err != nil {
				return err
			}

			fmt.Printf("codec: %s\n", cdc.Name())
			fmt.Printf("size:  %d bytes (ceiling %d)\n", len(out), maxPayload)
			fmt.Printf("hex:   %s\n", hex.EncodeToString(out))
			return nil
		},
	}

	cmd.Flags().StringVarP(&codecName, "codec", "c", "structzlib", "Codec (structzlib, cbor, msgpack)")
	cmd.Flags().IntVarP(&maxPayload, "max", "m", codec.DefaultMaxPayload, "Payload size ceiling in bytes")
	return cmd
}
