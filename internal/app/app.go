package app

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"bank-records/internal/audit"
	"bank-records/internal/cipher"
	"bank-records/internal/config"
	"bank-records/internal/repository"
	"bank-records/internal/service"
)

const Name = "bank"

// App holds the long-lived pieces of one process.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Service *service.AccountService
	Cipher  *cipher.AES

	db      *sql.DB
	closers []io.Closer
}

// Options override the process-wide writers. Zero values mean stderr.
type Options struct {
	Version   string
	Teller    string
	LogOutput io.Writer
	AuditOut  io.Writer
}

func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg}

	logger, err := a.newLogger(opts.LogOutput)
	if err != nil {
		return nil, err
	}
	a.Logger = logger

	dialect, err := repository.DialectFor(cfg.Database.Driver)
	if err != nil {
		a.Close()
		return nil, err
	}

	db, err := sql.Open(dialect.DriverName(), cfg.GetDBConnectionString())
	if err != nil {
		a.Close()
		return nil, err
	}
	a.db = db

	if err := dialect.Prepare(ctx, db); err != nil {
		a.Close()
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("connect to %s database: %w", dialect.Name(), err)
	}
	logger.Info("Successfully connected to database", "dialect", dialect.Name())

	a.Cipher, err = cipher.NewAES([]byte(cfg.Cipher.Key), []byte(cfg.Cipher.IV), logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	sink, err := a.newAuditSink(opts)
	if err != nil {
		a.Close()
		return nil, err
	}

	teller := cfg.Audit.Teller
	if opts.Teller != "" {
		teller = opts.Teller
	}

	provider := repository.NewProvider(db, dialect, a.Cipher, logger)
	a.Service = service.NewAccountService(provider, sink, logger, service.Options{
		Teller:         teller,
		AuditThreshold: cfg.Audit.Threshold,
	})
	return a, nil
}

func (a *App) newLogger(out io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(a.Config.Logging.Level)); err != nil {
		return nil, fmt.Errorf("%w: logging.level %q", config.ErrInvalidConfig, a.Config.Logging.Level)
	}

	if a.Config.Logging.File != "" {
		w, err := audit.NewRotatingWriter(audit.RotationConfig{
			File:      a.Config.Logging.File,
			MaxSizeMB: a.Config.Logging.MaxSizeMB,
			MaxFiles:  a.Config.Logging.MaxFiles,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, w)
		out = w
	}
	if out == nil {
		out = os.Stderr
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})), nil
}

func (a *App) newAuditSink(opts Options) (audit.Sink, error) {
	out := opts.AuditOut
	if a.Config.Audit.File != "" {
		w, err := audit.NewRotatingWriter(audit.RotationConfig{
			File:      a.Config.Audit.File,
			MaxSizeMB: a.Config.Logging.MaxSizeMB,
			MaxFiles:  a.Config.Logging.MaxFiles,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, w)
		out = w
	}
	if out == nil {
		out = os.Stderr
	}

	version := opts.Version
	if strings.TrimSpace(version) == "" {
		version = "dev"
	}
	return audit.NewLogSink(out, audit.DetectOrigin(Name, version)), nil
}

// Close releases the database pool and any log files.
func (a *App) Close() error {
	var errs []error
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, err)
		}
		a.db = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return stderrors.Join(errs...)
}
