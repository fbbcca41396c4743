package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fiapx/fiapx-vision-service/internal/domain/overlay"
	"github.com/fiapx/fiapx-vision-service/internal/domain/port"
	"github.com/fiapx/fiapx-vision-service/internal/domain/sampling"
	"github.com/fiapx/fiapx-vision-service/internal/infra/archive"
	"github.com/fiapx/fiapx-vision-service/internal/infra/config"
	cosstorage "github.com/fiapx/fiapx-vision-service/internal/infra/cos"
	"github.com/fiapx/fiapx-vision-service/internal/infra/email"
	"github.com/fiapx/fiapx-vision-service/internal/infra/ffmpeg"
	"github.com/fiapx/fiapx-vision-service/internal/infra/gocv"
	"github.com/fiapx/fiapx-vision-service/internal/infra/metrics"
	miniostorage "github.com/fiapx/fiapx-vision-service/internal/infra/minio"
	"github.com/fiapx/fiapx-vision-service/internal/infra/mqtt"
	"github.com/fiapx/fiapx-vision-service/internal/infra/postgres"
	"github.com/fiapx/fiapx-vision-service/internal/infra/rabbitmq"
	"github.com/fiapx/fiapx-vision-service/internal/infra/tracing"
	"github.com/fiapx/fiapx-vision-service/internal/infra/vision"
	"github.com/fiapx/fiapx-vision-service/internal/usecase"
	"github.com/fiapx/fiapx-vision-service/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting fiapx-vision-service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if Jaeger unavailable)
	tp, err := tracing.InitTracer(ctx, tracing.Config{
		Endpoint:       cfg.JaegerEndpoint,
		ServiceVersion: cfg.ServiceVersion,
		SampleRatio:    cfg.TraceSampleRatio,
	})
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(ctx)
	}

	// Database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	// Migrations
	err = postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath)
	if err != nil {
		log.Warn("migration warning", zap.Error(err))
	}

	// Object store
	store, err := newObjectStore(ctx, cfg)
	fatalOnErr(err, "create object store")

	// RabbitMQ publisher connection
	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq for publisher")
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")
	defer pub.Close()

	statusPub := rabbitmq.NewStatusPublisher(pub)
	dlqPub := rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ)
	jobPub := rabbitmq.NewJobPublisher(pub)

	// Infra adapters
	repo := postgres.NewVideoRepository(pool)
	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)

	opener, err := newVideoOpener(cfg, log)
	fatalOnErr(err, "create video decoder")

	var detector port.Detector = vision.NewClient(vision.ClientConfig{
		Endpoint:   cfg.VisionEndpoint,
		APIKey:     cfg.VisionKey,
		APIVersion: cfg.VisionAPIVersion,
		Timeout:    time.Duration(cfg.VisionTimeoutSeconds) * time.Second,
	})
	if cfg.DetectorMaxAttempts > 1 {
		detector = vision.NewRetryingDetector(detector, cfg.DetectorMaxAttempts,
			time.Duration(cfg.DetectorRetryBaseDelayMs)*time.Millisecond, log)
	}

	style, err := config.LoadOverlayStyle(cfg.OverlayStyleFile)
	fatalOnErr(err, "load overlay style")
	renderer, err := overlay.NewRenderer(style)
	fatalOnErr(err, "create overlay renderer")

	// MQTT result events (optional; the emitter keeps reconnecting in the background)
	var emitter port.ResultEmitter
	if cfg.MQTTBroker != "" {
		mq := mqtt.NewEmitter(mqtt.EmitterConfig{
			Broker:      cfg.MQTTBroker,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopic,
			QoS:         byte(cfg.MQTTQoS),
		}, log)
		if err := mq.Connect(ctx); err != nil {
			log.Warn("mqtt connect failed, analysis events will be dropped until it reconnects", zap.Error(err))
		}
		defer mq.Disconnect()
		emitter = mq
	}

	// Use cases
	extractUC := usecase.NewExtractFramesUseCase(
		repo, store, opener, sampling.NewSampler(log), archive.NewZipArchiver(),
		statusPub, dlqPub, notifier, jobPub,
		log,
		usecase.ExtractConfig{
			TempDir:         cfg.TempDir,
			MaxRetries:      cfg.MaxRetries,
			DefaultInterval: cfg.SampleIntervalSeconds,
			ArchiveFrames:   cfg.ArchiveFrames,
			AutoAnalyze:     cfg.AutoAnalyze,
		},
	)

	analyzeUC := usecase.NewAnalyzeFrameUseCase(
		repo, store, detector, renderer,
		statusPub, dlqPub, notifier, emitter,
		log,
		usecase.AnalyzeConfig{
			MaxRetries: cfg.MaxRetries,
			Rand:       newRand(cfg.RandomSeed),
		},
	)

	// Metrics server
	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, log,
		metrics.ReadinessCheck{Name: "postgres", Check: pool.Ping},
		metrics.ReadinessCheck{Name: "rabbitmq", Check: func(context.Context) error {
			if rmqConn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		}},
	)

	// Consumers (one worker pool per queue)
	extractConsumer, err := rabbitmq.NewConsumer(consumerConfig(cfg, cfg.RabbitMQExtractionQueue, rabbitmq.ExtractionRoutingKey), extractUC.Execute, log)
	fatalOnErr(err, "create extraction consumer")

	analyzeConsumer, err := rabbitmq.NewConsumer(consumerConfig(cfg, cfg.RabbitMQAnalysisQueue, rabbitmq.AnalysisRoutingKey), analyzeUC.Execute, log)
	fatalOnErr(err, "create analysis consumer")

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("fiapx-vision-service started, consuming messages")

	var wg sync.WaitGroup
	for name, c := range map[string]*rabbitmq.Consumer{"extraction": extractConsumer, "analysis": analyzeConsumer} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Start(ctx); err != nil {
				log.Error("consumer error", zap.String("consumer", name), zap.Error(err))
				cancel()
			}
		}()
	}
	wg.Wait()

	// Shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	extractConsumer.Close()
	analyzeConsumer.Close()
	log.Info("fiapx-vision-service stopped")
}

func consumerConfig(cfg *config.Config, queue, routingKey string) rabbitmq.ConsumerConfig {
	return rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Queue:       queue,
		RoutingKey:  routingKey,
		Exchange:    cfg.RabbitMQExchange,
		DLQ:         cfg.RabbitMQDLQ,
		StatusQueue: cfg.RabbitMQStatusQueue,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}
}

func newObjectStore(ctx context.Context, cfg *config.Config) (port.ObjectStore, error) {
	switch cfg.StorageBackend {
	case "minio":
		s, err := miniostorage.NewStorage(miniostorage.StorageConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			UseSSL:    cfg.MinIOUseSSL,
			Bucket:    cfg.MinIOBucket,
		})
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("ensure minio bucket: %w", err)
		}
		return s, nil
	case "cos":
		return cosstorage.NewStorage(cosstorage.StorageConfig{
			BucketURL: cfg.COSBucketURL,
			SecretID:  cfg.COSSecretID,
			SecretKey: cfg.COSSecretKey,
		})
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
}

func newVideoOpener(cfg *config.Config, log *zap.Logger) (port.VideoOpener, error) {
	switch cfg.Decoder {
	case "ffmpeg":
		return ffmpeg.NewDecoder(ffmpeg.DecoderConfig{
			FFmpegPath:      cfg.FFmpegPath,
			FFprobePath:     cfg.FFprobePath,
			ExactFrameCount: cfg.ExactFrameCount,
		}, log), nil
	case "gocv":
		if !gocv.Available {
			return nil, fmt.Errorf("decoder gocv requested but binary was built without -tags gocv")
		}
		return gocv.NewDecoder(log), nil
	}
	return nil, fmt.Errorf("unknown decoder %q", cfg.Decoder)
}

func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed>>1))
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
