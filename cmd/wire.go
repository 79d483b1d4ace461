package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/prometheus/client_golang/prometheus"

	"design-coach/handler"
	"design-coach/internal/config"
	"design-coach/internal/domain"
	"design-coach/internal/integrations/paramstore"
	"design-coach/internal/metrics"
	"design-coach/internal/provider"
	"design-coach/internal/repository"
	"design-coach/internal/session"
	"design-coach/internal/usecase"
)

// app is everything a transport needs, wired once per process.
type app struct {
	config   *config.Store
	sessions *session.Store
	coach    *usecase.CoachService
	archive  repository.Archive
	registry *prometheus.Registry
	logLevel *slog.LevelVar
}

// setupLogger installs a JSON logger on w as the default and returns its
// level so it can follow the configuration.
func setupLogger(w io.Writer) *slog.LevelVar {
	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})))
	return level
}

func applyLogLevel(level *slog.LevelVar, name string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(name)))); err != nil {
		slog.Warn("unknown log level, keeping current", "level", name)
		return
	}
	level.Set(l)
}

// awsLoader loads the default AWS configuration at most once, and only when
// a component actually needs AWS.
type awsLoader struct {
	once func() (aws.Config, error)
}

func newAWSLoader(ctx context.Context) *awsLoader {
	return &awsLoader{once: sync.OnceValues(func() (aws.Config, error) {
		return awsconfig.LoadDefaultConfig(ctx)
	})}
}

// lazyParams is a paramstore.Getter that builds the SSM client on first use.
type lazyParams struct {
	aws    *awsLoader
	mu     sync.Mutex
	client *paramstore.Client
}

func (p *lazyParams) GetParameter(ctx context.Context, name string) (string, error) {
	p.mu.Lock()
	if p.client == nil {
		cfg, err := p.aws.once()
		if err != nil {
			p.mu.Unlock()
			return "", fmt.Errorf("load AWS config: %w", err)
		}
		c, err := paramstore.New(awsssm.NewFromConfig(cfg))
		if err != nil {
			p.mu.Unlock()
			return "", err
		}
		p.client = c
	}
	c := p.client
	p.mu.Unlock()
	return c.GetParameter(ctx, name)
}

func buildApp(ctx context.Context, path string, logLevel *slog.LevelVar) (*app, error) {
	store, err := config.NewStore(path)
	if err != nil {
		return nil, err
	}
	cfg := store.Current()
	applyLogLevel(logLevel, cfg.Application.LogLevel)
	slog.Info("configuration loaded",
		"path", path,
		"app", cfg.Application.Name,
		"version", cfg.Application.Version,
		"stages", len(cfg.Stages()),
		"mode", provider.Mode(cfg),
	)

	loader := newAWSLoader(ctx)
	keys, err := provider.NewKeys(os.LookupEnv, &lazyParams{aws: loader})
	if err != nil {
		return nil, err
	}
	router, err := provider.NewRouter(provider.NewFactory(keys, &http.Client{Timeout: 60 * time.Second}))
	if err != nil {
		return nil, err
	}

	sessions, err := session.NewStore(func() []string { return domain.StageKeys(store.Current().Stages()) })
	if err != nil {
		return nil, err
	}

	archive, err := repository.Open(ctx, cfg.Archive, func(context.Context) (repository.DynamoDBAPI, error) {
		awsCfg, err := loader.once()
		if err != nil {
			return nil, err
		}
		return awsdynamodb.NewFromConfig(awsCfg), nil
	})
	if err != nil {
		return nil, err
	}

	var opts []usecase.Option
	if archive != nil {
		opts = append(opts, usecase.WithArchiver(archive))
		if !cfg.Application.SaveConversations {
			slog.Info("archive configured but application.save_conversations is off", "backend", cfg.Archive.Backend)
		}
	}
	coach, err := usecase.NewCoachService(store, sessions, router, opts...)
	if err != nil {
		return nil, errors.Join(err, closeArchive(archive))
	}

	return &app{
		config:   store,
		sessions: sessions,
		coach:    coach,
		archive:  archive,
		registry: metrics.NewRegistry(),
		logLevel: logLevel,
	}, nil
}

func (a *app) handler() (*handler.Handler, error) {
	srv := a.config.Current().Server
	return handler.NewHandler(a.coach,
		handler.WithRateLimit(srv.RateLimitPerMinute, srv.RateLimitBurst),
		handler.WithMetrics(metrics.Handler(a.registry)),
	)
}

// onConfigReload is the watcher callback: it keeps the log level in step and
// counts the attempt.
func (a *app) onConfigReload(cfg *config.Config, err error) {
	if err != nil {
		metrics.RecordConfigReload("error")
		slog.Error("configuration reload rejected, keeping previous", "path", a.config.Path(), "err", err)
		return
	}
	metrics.RecordConfigReload("success")
	applyLogLevel(a.logLevel, cfg.Application.LogLevel)
	slog.Info("configuration reloaded", "path", a.config.Path(), "stages", len(cfg.Stages()), "mode", provider.Mode(cfg))
}

func (a *app) Close() error {
	return closeArchive(a.archive)
}

func closeArchive(a repository.Archive) error {
	if a == nil {
		return nil
	}
	return a.Close()
}
