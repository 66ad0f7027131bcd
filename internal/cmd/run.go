// Package cmd wires configuration, storage, the generation gateway and the
// HTTP server into a running service.
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/health-recorder-ai/health-recorder/internal/api"
	"github.com/health-recorder-ai/health-recorder/internal/api/middleware"
	"github.com/health-recorder-ai/health-recorder/internal/cache"
	"github.com/health-recorder-ai/health-recorder/internal/chat"
	"github.com/health-recorder-ai/health-recorder/internal/config"
	"github.com/health-recorder-ai/health-recorder/internal/llm"
	"github.com/health-recorder-ai/health-recorder/internal/logging"
	"github.com/health-recorder-ai/health-recorder/internal/prompt"
	"github.com/health-recorder-ai/health-recorder/internal/record"
	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

// BuildStore opens the record backend selected by cfg.
func BuildStore(ctx context.Context, cfg *config.Config) (record.Store, error) {
	switch cfg.Store.Backend {
	case config.StoreBackendObject:
		store, err := record.NewObjectStore(ctx, record.ObjectStoreConfig{
			Endpoint:  cfg.ObjectStore.Endpoint,
			AccessKey: cfg.ObjectStore.AccessKey,
			SecretKey: cfg.ObjectStore.SecretKey,
			Bucket:    cfg.ObjectStore.Bucket,
			Prefix:    cfg.ObjectStore.Prefix,
			UseSSL:    cfg.ObjectStore.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("open object store: %w", err)
		}
		log.Infof("records stored in bucket %s", cfg.ObjectStore.Bucket)
		return store, nil
	default:
		log.Infof("records stored in %s", cfg.DataDir)
		return record.NewFileStore(cfg.DataDir), nil
	}
}

// CacheConfig maps the answer-cache settings onto the cache package.
func CacheConfig(cfg *config.Config) cache.Config {
	return cache.Config{
		Enabled:    cfg.AnswerCache.Enabled,
		MaxEntries: cfg.AnswerCache.MaxEntries,
		TTL:        cfg.AnswerCache.TTL(),
	}
}

// BuildService assembles the chat pipeline from cfg around store. answers may
// be nil.
func BuildService(cfg *config.Config, store record.Store, answers *cache.AnswerCache) (*chat.Service, error) {
	gateway, err := llm.NewGateway(llm.Config{
		Endpoint: cfg.GenerateEndpoint,
		Timeout:  cfg.RequestTimeout(),
		ProxyURL: cfg.ProxyURL,
		Observer: middleware.ObserveGateway,
	})
	if err != nil {
		return nil, err
	}
	builder := prompt.NewBuilder(prompt.Options{
		MaxContextRecords: cfg.Context.MaxRecords,
		MaxContextTokens:  cfg.Context.MaxTokens,
	})
	svc := &chat.Service{
		Store:     store,
		Builder:   builder,
		Generator: gateway,
		Model:     cfg.Model,
	}
	if answers != nil {
		svc.Cache = answers
	}
	return svc, nil
}

// ApplyLogging installs cfg's log output and level.
func ApplyLogging(cfg *config.Config) error {
	if err := logging.ConfigureLogOutput(cfg); err != nil {
		return err
	}
	logging.SetLogLevel(cfg.EffectiveLogLevel())
	return nil
}

// reloader applies watched config changes to a running server.
type reloader struct {
	server  *api.Server
	store   record.Store
	answers *cache.AnswerCache
	current *config.Config
}

func (r *reloader) apply(next *config.Config) {
	if next.Store != r.current.Store || next.ObjectStore != r.current.ObjectStore ||
		(next.Store.Backend == config.StoreBackendFile && next.DataDir != r.current.DataDir) {
		log.Warn("storage settings changed; restart to apply them")
	}
	if next.LoggingToFile != r.current.LoggingToFile || next.LogDir != r.current.LogDir ||
		next.LogMaxSizeMB != r.current.LogMaxSizeMB || next.LogMaxBackups != r.current.LogMaxBackups {
		if err := logging.ConfigureLogOutput(next); err != nil {
			log.WithError(err).Error("failed to reconfigure log output")
		}
	}
	// Only a changed level is applied so a -quiet/-verbose override survives
	// unrelated reloads.
	if next.EffectiveLogLevel() != r.current.EffectiveLogLevel() {
		logging.SetLogLevel(next.EffectiveLogLevel())
	}

	var svc *chat.Service
	if r.current.PipelineChanged(next) {
		rebuilt, err := BuildService(next, r.store, r.answers)
		if err != nil {
			log.WithError(err).Error("config reload rejected")
			return
		}
		svc = rebuilt
	}
	if r.answers != nil && next.AnswerCache != r.current.AnswerCache {
		r.answers.UpdateConfig(CacheConfig(next))
	}
	r.server.UpdateConfig(next, svc)
	r.current = next
}

// StartService runs the HTTP server until ctx is cancelled. When configPath
// is non-empty the file is watched and changes are applied without restart.
func StartService(ctx context.Context, cfg *config.Config, configPath string) error {
	store, err := BuildStore(ctx, cfg)
	if err != nil {
		return err
	}
	answers := cache.NewAnswerCache(CacheConfig(cfg))
	answers.StartPeriodicEviction(ctx, 0)
	svc, err := BuildService(cfg, store, answers)
	if err != nil {
		return err
	}
	server := api.NewServer(cfg, svc)

	if configPath != "" {
		r := &reloader{server: server, store: store, answers: answers, current: cfg}
		go func() {
			if errWatch := config.Watch(ctx, configPath, r.apply); errWatch != nil {
				log.WithError(errWatch).Warn("config hot reload disabled")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err = <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Stop(shutdownCtx)
}
