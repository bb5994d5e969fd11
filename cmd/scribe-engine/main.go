package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	scribeengine "github.com/snarg/scribe-engine"
	"github.com/snarg/scribe-engine/internal/api"
	"github.com/snarg/scribe-engine/internal/config"
	"github.com/snarg/scribe-engine/internal/database"
	"github.com/snarg/scribe-engine/internal/diarize"
	"github.com/snarg/scribe-engine/internal/ingest"
	"github.com/snarg/scribe-engine/internal/metrics"
	"github.com/snarg/scribe-engine/internal/models"
	"github.com/snarg/scribe-engine/internal/notify"
	"github.com/snarg/scribe-engine/internal/storage"
	"github.com/snarg/scribe-engine/internal/transcribe"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file")
	flag.StringVar(&overrides.HTTPAddr, "addr", "", "HTTP listen address")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (trace|debug|info|warn|error)")
	flag.StringVar(&overrides.DatabaseURL, "database-url", "", "PostgreSQL connection string")
	flag.StringVar(&overrides.AudioDir, "audio-dir", "", "directory for stored uploads")
	flag.StringVar(&overrides.WatchDir, "watch-dir", "", "drop folder to watch for audio files")
	flag.Parse()

	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("scribe-engine starting")

	if err := os.MkdirAll(cfg.AudioDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.AudioDir).Msg("could not create audio dir")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	dbLog := log.With().Str("component", "database").Logger()
	db, err := database.Connect(ctx, cfg.DatabaseURL, dbLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.InitSchema(ctx, scribeengine.SchemaSQL); err != nil {
		log.Fatal().Err(err).Msg("schema initialization failed")
	}
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	// Model provider. Models load lazily on the first job.
	provider := models.NewProvider(models.Options{
		Token:            cfg.HubToken,
		HubURL:           cfg.HubURL,
		CacheDir:         cfg.ModelCacheDir,
		DiarizationModel: cfg.DiarizationModel,
		WhisperModel:     cfg.WhisperModel,
		Device:           cfg.Device,
		VerifyTimeout:    cfg.HubVerifyTimeout,
		DownloadTimeout:  cfg.ModelDownloadTimeout,
		Log:              log.With().Str("component", "models").Logger(),
	})
	if err := provider.EnsureCacheDir(); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.ModelCacheDir).Msg("could not create model cache dir")
	}

	// Optional MQTT event publishing
	var notifier *notify.Publisher
	if cfg.MQTTBrokerURL != "" {
		notifier, err = notify.Connect(notify.Options{
			BrokerURL: cfg.MQTTBrokerURL,
			ClientID:  cfg.MQTTClientID,
			Topic:     cfg.MQTTTopic,
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
			Log:       log.With().Str("component", "mqtt").Logger(),
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
		}
		defer notifier.Close()
	}

	// Optional S3 archival of completed jobs
	var archiver *storage.Archiver
	if cfg.S3.Bucket != "" {
		archiver, err = storage.NewArchiver(cfg.S3, cfg.AudioDir, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to configure s3 archiver")
		}
		if err := archiver.HeadBucket(ctx); err != nil {
			log.Fatal().Err(err).Str("bucket", cfg.S3.Bucket).Msg("s3 bucket check failed")
		}
	}

	// Pipeline and worker pool
	pipelineOpts := transcribe.PipelineOptions{
		Store:    db,
		Models:   provider,
		AudioDir: cfg.AudioDir,
		WorkDir:  os.TempDir(),
		Diarization: diarize.Options{
			MinSpeakers: cfg.MinSpeakers,
			MaxSpeakers: cfg.MaxSpeakers,
			MinTurnOn:   cfg.MinTurnOn,
			MinTurnOff:  cfg.MinTurnOff,
		},
		Log: log.With().Str("component", "pipeline").Logger(),
	}
	if notifier != nil {
		pipelineOpts.PublishEvent = notifier.Publish
	}
	if archiver != nil {
		pipelineOpts.OnComplete = archiver.ArchiveJob
	}
	pipeline := transcribe.NewPipeline(pipelineOpts)

	pool := transcribe.NewPool(transcribe.PoolOptions{
		Pipeline:  pipeline,
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
		Log:       log.With().Str("component", "workers").Logger(),
	})
	pool.Start()

	prometheus.MustRegister(metrics.NewCollector(db.Pool, pool, provider))

	intake := transcribe.NewIntake(transcribe.IntakeOptions{
		Store:      db,
		Queue:      pool,
		AudioDir:   cfg.AudioDir,
		MaxBytes:   cfg.MaxAudioBytes,
		Extensions: cfg.Extensions(),
		Log:        log.With().Str("component", "intake").Logger(),
	})

	// Optional drop-folder ingest
	var watcher *ingest.Watcher
	if cfg.WatchDir != "" {
		watcher = ingest.NewWatcher(intake, cfg.WatchDir, cfg.Extensions(), log)
		if err := watcher.Start(); err != nil {
			log.Fatal().Err(err).Str("dir", cfg.WatchDir).Msg("failed to start drop-folder watcher")
		}
	}

	// HTTP server
	deps := api.ServerDeps{
		DB:      db,
		Intake:  intake,
		Queue:   pool,
		Models:  provider,
		Version: version,
		Start:   startTime,
	}
	if notifier != nil {
		deps.Notifier = notifier
	}
	if watcher != nil {
		deps.Watcher = watcher
	}
	srv := api.NewServer(cfg, deps, log.With().Str("component", "http").Logger())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Ordered shutdown: stop accepting work, drain the queue, then release
	// the models.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}
	if watcher != nil {
		watcher.Stop()
	}
	pool.Stop()
	provider.Release()

	log.Info().Msg("scribe-engine stopped")
}
