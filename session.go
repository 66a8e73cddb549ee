package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tonimelisma/portal-go/internal/config"
	"github.com/tonimelisma/portal-go/internal/credstore"
	"github.com/tonimelisma/portal-go/internal/portal"
	"github.com/tonimelisma/portal-go/internal/session"
)

var errNotLoggedIn = errors.New("not logged in, run 'portal-go login' first")

// cliSession bundles what a command needs to talk to the backend: the
// credential store, the portal client, and the session manager over both.
type cliSession struct {
	store   *credstore.Store
	client  *portal.Client
	manager *session.Manager
	logger  *slog.Logger
	closers []func() error
}

// openSession builds the credential store for the configured backend, the
// portal client, and an initialized session manager.
func openSession(ctx context.Context) (*cliSession, error) {
	logger := buildLogger()

	storage, closer, err := openStorage(ctx, resolvedCfg, logger)
	if err != nil {
		return nil, err
	}

	store := credstore.New(storage, logger)

	client := portal.NewClient(resolvedCfg.APIHost, newHTTPClient(), store, logger, resolvedCfg.UserAgent)
	client.SetMaxUploadSize(resolvedCfg.MaxUploadSize)

	mgr := session.New(store, client, logger)
	mgr.Init()

	s := &cliSession{
		store:   store,
		client:  client,
		manager: mgr,
		logger:  logger,
	}

	if closer != nil {
		s.closers = append(s.closers, closer)
	}

	return s, nil
}

// openStorage picks the credential Storage for the resolved backend. The
// returned closer is nil when nothing needs closing.
func openStorage(ctx context.Context, cfg *config.Resolved, logger *slog.Logger) (credstore.Storage, func() error, error) {
	switch cfg.StorageBackend {
	case config.StorageBackendSQLite:
		db, err := credstore.OpenSQLite(ctx, cfg.StoragePath, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("opening credential database: %w", err)
		}

		return db, db.Close, nil
	case config.StorageBackendFile, "":
		return credstore.NewFileStorage(cfg.StoragePath, logger), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// watch reloads the session whenever another process rewrites the
// credential file, until ctx ends. Only the file backend is watched.
func (s *cliSession) watch(ctx context.Context) {
	if resolvedCfg.StorageBackend != config.StorageBackendFile {
		return
	}

	path := resolvedCfg.StoragePath
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		s.logger.Debug("credential directory missing, not watching", slog.String("path", path))
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		if err := credstore.Watch(ctx, path, s.manager.Reload, s.logger); err != nil {
			s.logger.Debug("credential watcher stopped", slog.String("error", err.Error()))
		}
	}()

	s.closers = append(s.closers, func() error {
		cancel()
		<-done

		return nil
	})
}

// requireLogin fails unless the stored session is complete.
func (s *cliSession) requireLogin() error {
	if !s.manager.IsAuthenticated() {
		return errNotLoggedIn
	}

	return nil
}

// check logs the user out when err says the session is unusable, so the
// next command starts from a clean slate.
func (s *cliSession) check(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, portal.ErrAuthenticationFailed) {
		s.logger.Info("authentication failed, clearing session")
		s.manager.Logout()
	}

	return err
}

// Close releases the storage and stops the watcher.
func (s *cliSession) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn("closing session resource", slog.String("error", err.Error()))
		}
	}
}

// authedSession opens the session, requires a login, and starts the
// credential watcher. Callers must Close it.
func authedSession(ctx context.Context) (*cliSession, error) {
	s, err := openSession(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.requireLogin(); err != nil {
		s.Close()
		return nil, err
	}

	s.watch(ctx)

	return s, nil
}
