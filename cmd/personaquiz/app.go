package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"personaquiz"
)

// app holds everything a command needs, built from the environment and the
// persistent flags
type app struct {
	cfg       *personaquiz.Config
	logger    *zap.Logger
	templates []personaquiz.QuizItemTemplate
	store     personaquiz.SessionStore
	exec      *personaquiz.Executor
	caller    personaquiz.Caller
	gateway   *personaquiz.Gateway

	transcript *personaquiz.LLMLogger
	closers    []func() error
}

func loadConfig() (*personaquiz.Config, error) {
	cfg, err := personaquiz.LoadConfig()
	if err != nil {
		return nil, err
	}
	if flagStore != "" {
		cfg.Store = flagStore
	}
	if flagStateDir != "" {
		cfg.StateDir = flagStateDir
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagTranscript {
		cfg.Transcript = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := personaquiz.NewLogger(cfg.LogConfig())
	if err != nil {
		return nil, err
	}

	templates, err := personaquiz.LoadTemplates()
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		templates: templates,
		exec:      personaquiz.NewExecutor(cfg.ExecutorOptions(), logger),
	}

	store, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store

	gw, err := personaquiz.NewGateway(cfg.Client(), logger)
	switch {
	case err == nil:
		a.gateway = gw
		a.caller = gw
	case personaquiz.IsConfigurationError(err):
		logger.Warn("no model endpoint configured, questions will use the template wording", zap.Error(err))
	default:
		a.Close()
		return nil, err
	}

	return a, nil
}

func (a *app) openStore(ctx context.Context) (personaquiz.SessionStore, error) {
	switch a.cfg.Store {
	case "sqlite":
		if err := os.MkdirAll(a.cfg.StateDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
		db, err := personaquiz.OpenDB(filepath.Join(a.cfg.StateDir, "personaquiz.db"), a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.CloseDB)
		return db, nil
	case "redis":
		rs, err := personaquiz.NewRedisStore(ctx, personaquiz.RedisOptions{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPass,
			DB:       a.cfg.RedisDB,
		}, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rs.Close)
		return rs, nil
	default:
		return personaquiz.NewFileStore(a.cfg.StateDir, a.logger)
	}
}

// startTranscript opens the transcript file when enabled and attaches it to
// the gateway
func (a *app) startTranscript(profile personaquiz.UserProfile) *personaquiz.LLMLogger {
	if !a.cfg.Transcript || a.transcript != nil {
		return a.transcript
	}
	t, err := personaquiz.NewLLMLogger(filepath.Join(a.cfg.StateDir, "transcripts"), uuid.NewString(), profile)
	if err != nil {
		a.logger.Warn("failed to create transcript", zap.Error(err))
		return nil
	}
	a.transcript = t
	a.closers = append(a.closers, t.Close)
	if a.gateway != nil {
		a.gateway.SetTranscript(t)
	}
	a.logger.Info("writing transcript", zap.String("path", t.Path()))
	return t
}

func (a *app) newScheduler(items personaquiz.ItemStore) *personaquiz.Scheduler {
	sched := personaquiz.NewScheduler(
		personaquiz.NewQuestionMaker(a.caller),
		a.exec,
		items,
		a.cfg.SchedulerOptions(),
		a.logger,
	)
	if a.transcript != nil {
		sched.SetTranscript(a.transcript)
	}
	return sched
}

// Close pushes metrics when a Pushgateway is configured and releases every
// resource
func (a *app) Close() error {
	var errs []error
	if a.cfg != nil && a.cfg.PushgatewayURL != "" {
		if err := personaquiz.PushMetrics(a.cfg.PushgatewayURL, uuid.NewString()); err != nil {
			a.logger.Warn("failed to push metrics", zap.Error(err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return errors.Join(errs...)
}
