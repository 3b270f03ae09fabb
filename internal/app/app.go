package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/semmidev/pgsentry/internal/adapter/checksum"
	"github.com/semmidev/pgsentry/internal/adapter/compressor"
	"github.com/semmidev/pgsentry/internal/adapter/database"
	"github.com/semmidev/pgsentry/internal/adapter/encryptor"
	"github.com/semmidev/pgsentry/internal/adapter/notifier"
	"github.com/semmidev/pgsentry/internal/adapter/signer"
	"github.com/semmidev/pgsentry/internal/adapter/storage"
	"github.com/semmidev/pgsentry/internal/config"
	"github.com/semmidev/pgsentry/internal/domain"
	"github.com/semmidev/pgsentry/internal/infrastructure/logger"
	"github.com/semmidev/pgsentry/internal/infrastructure/metrics"
	"github.com/semmidev/pgsentry/internal/infrastructure/process"
	"github.com/semmidev/pgsentry/internal/infrastructure/scheduler"
	"github.com/semmidev/pgsentry/internal/infrastructure/secret"
	"github.com/semmidev/pgsentry/internal/usecase"
)

const shutdownTimeout = 5 * time.Second

// openDatabase is replaced in tests.
var openDatabase = database.Open

type App struct {
	config        *config.Config
	logger        *logger.Logger
	db            *sql.DB
	keyFile       *secret.KeyFile
	metricsServer *metrics.Server
	scheduler     *scheduler.Scheduler
	batch         *usecase.Batch
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log, err := logger.New(logger.Options{
		Name:       cfg.App.Name,
		Level:      cfg.App.LogLevel,
		Format:     cfg.App.LogFormat,
		File:       cfg.App.LogFile,
		MaxSizeMB:  cfg.App.LogMaxSizeMB,
		MaxBackups: cfg.App.LogMaxBackups,
		MaxAgeDays: cfg.App.LogMaxAgeDays,
		Compress:   cfg.App.LogCompress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	log.Infof("Starting %s", cfg.App.Name)

	a := &App{config: cfg, logger: log}
	if err := a.init(ctx); err != nil {
		a.Shutdown()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg, log := a.config, a.logger

	db, err := openDatabase(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	a.db = db

	runner := process.NewRunner()

	stages := usecase.Stages{
		Exporter:    database.NewExporter(runner, cfg.Database.PgDumpBin, cfg.Database.URL, cfg.Database.ExportTimeout),
		Compressor:  initializeCompressor(cfg, runner),
		Encryptor:   encryptor.NewAge(runner, cfg.Pipeline.AgeBin, cfg.Pipeline.AgeRecipients, cfg.Pipeline.StageTimeout),
		Checksummer: checksum.NewSha256sum(runner, cfg.Pipeline.Sha256sumBin, cfg.Pipeline.StageTimeout),
	}
	log.Infof("✓ Pipeline: pg_dump → %s → age (%d recipient(s)) → sha256",
		cfg.Pipeline.Compressor, len(cfg.Pipeline.AgeRecipients))

	if cfg.SigningEnabled() {
		keyFile, err := secret.Materialize(cfg.Pipeline.SigningKey, cfg.App.WorkDir)
		if err != nil {
			return fmt.Errorf("failed to prepare signing key: %w", err)
		}
		a.keyFile = keyFile
		stages.Signer = signer.NewSSHKeygen(runner, cfg.Pipeline.SSHKeygenBin, keyFile.Path(),
			cfg.Pipeline.SigningNamespace, cfg.Pipeline.StageTimeout)
		log.Infof("✓ Signing enabled (namespace: %s)", cfg.Pipeline.SigningNamespace)
	}

	stor, err := initializeStorage(ctx, cfg, log)
	if err != nil {
		return err
	}

	recorder := metrics.NewRecorder()
	if cfg.App.MetricsAddr != "" {
		a.metricsServer = metrics.NewServer(cfg.App.MetricsAddr, recorder)
		a.metricsServer.Start(func(err error) {
			log.Errorf("%v", err)
		})
		log.Infof("✓ Metrics exposed on %s/metrics", cfg.App.MetricsAddr)
	}

	var notify usecase.Notifier
	if cfg.TelegramEnabled() {
		tg, err := notifier.NewTelegram(cfg.Notify.TelegramBotToken, cfg.Notify.TelegramChatID, cfg.Notify.TelegramNotifySuccess)
		if err != nil {
			log.Warnf("Telegram notifications disabled: %v", err)
		} else {
			notify = tg
			log.Infof("✓ Telegram notifications enabled")
		}
	}

	backupUC := usecase.NewBackup(stages, stor, log, cfg.App.WorkDir, cfg.Storage.ObjectPrefix)
	enumerator := database.NewEnumerator(db, cfg.Database.SkipDatabases, cfg.Database.ConnectTimeout)
	a.batch = usecase.NewBatch(enumerator, backupUC, notify, recorder, log)

	sched, err := scheduler.New(cfg.Schedule.Cron, log)
	if err != nil {
		return fmt.Errorf("failed to initialize scheduler: %w", err)
	}
	a.scheduler = sched

	return nil
}

func initializeCompressor(cfg *config.Config, runner *process.Runner) domain.Compressor {
	if cfg.Pipeline.Compressor == config.CompressorBuiltin {
		return compressor.NewZstd(cfg.Pipeline.ZstdLevel, cfg.Pipeline.StageTimeout)
	}
	return compressor.NewZstdCLI(runner, cfg.Pipeline.ZstdBin, cfg.Pipeline.ZstdLevel, cfg.Pipeline.StageTimeout)
}

func initializeStorage(ctx context.Context, cfg *config.Config, log *logger.Logger) (domain.Storage, error) {
	switch cfg.Storage.Type {
	case config.StorageS3:
		stor, err := storage.NewS3(ctx, &cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3: %w", err)
		}
		log.Infof("✓ AWS S3 upload enabled (bucket: %s)", cfg.Storage.Bucket)
		return stor, nil

	case config.StorageGDrive:
		stor, err := storage.NewGDrive(ctx, &cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Drive: %w", err)
		}
		log.Infof("✓ Google Drive upload enabled")
		return stor, nil

	case config.StorageLocal:
		stor, err := storage.NewLocal(cfg.Storage.LocalPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize local storage: %w", err)
		}
		log.Infof("✓ Local storage enabled (path: %s)", cfg.Storage.LocalPath)
		return stor, nil

	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Storage.Type)
	}
}

// Run executes a single batch when once is set, otherwise it hands the batch
// to the scheduler until ctx is cancelled.
func (a *App) Run(ctx context.Context, once bool) error {
	if once {
		a.logger.Infof("Running one backup batch now")
		return a.batch.Execute(ctx)
	}

	a.logger.Infof("Scheduler started with schedule %q", a.config.Schedule.Cron)
	return a.scheduler.Run(ctx, a.batch.Execute)
}

func (a *App) Shutdown() {
	a.logger.Infof("Shutting down application...")

	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			a.logger.Warnf("Failed to stop metrics server: %v", err)
		}
		cancel()
	}

	if a.keyFile != nil {
		if err := a.keyFile.Remove(); err != nil {
			a.logger.Warnf("Failed to remove signing key file: %v", err)
		}
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warnf("Failed to close database: %v", err)
		}
	}

	a.logger.Close()
}
