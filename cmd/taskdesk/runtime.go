package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tgienger/taskdesk/internal/api"
	"github.com/tgienger/taskdesk/internal/config"
	"github.com/tgienger/taskdesk/internal/db"
	"github.com/tgienger/taskdesk/internal/identity"
	"github.com/tgienger/taskdesk/internal/postgres"
	"github.com/tgienger/taskdesk/internal/remote"
	"github.com/tgienger/taskdesk/internal/session"
	"github.com/tgienger/taskdesk/internal/state"
)

// backend is a data store that can also serve the unscoped API
type backend interface {
	remote.Backend
	api.Source
}

// runtime holds every wired component for one command invocation
type runtime struct {
	cfg     *config.Config
	dataDir string
	log     *slog.Logger

	local    *db.DB // accounts, session, settings
	backend  backend
	identity *identity.Local
	store    *state.Store
	session  *session.Controller

	closers []func() error
}

func loadConfig() (*config.Config, string, error) {
	dataDir := dataDirFlag
	if dataDir == "" {
		var err error
		if dataDir, err = config.DataDir(); err != nil {
			return nil, "", fmt.Errorf("resolve data directory: %w", err)
		}
	}
	path := configFlag
	if path == "" {
		path = config.Path(dataDir)
	}
	cfg, err := config.Load(path, dataDir)
	if err != nil {
		return nil, "", err
	}
	return cfg, dataDir, nil
}

// openRuntime wires config, logging, storage, identity, store and session.
// Logs go to logOut; nil means the log file in the data directory.
func openRuntime(ctx context.Context, logOut io.Writer) (*runtime, error) {
	cfg, dataDir, err := loadConfig()
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, dataDir: dataDir}

	if logOut == nil {
		f, err := os.OpenFile(filepath.Join(dataDir, config.AppName+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		rt.closers = append(rt.closers, f.Close)
		logOut = f
	}
	if rt.log, err = cfg.Log.NewLogger(logOut); err != nil {
		rt.Close()
		return nil, err
	}
	slog.SetDefault(rt.log)

	if rt.local, err = db.New(cfg.Database.Path); err != nil {
		rt.Close()
		return nil, fmt.Errorf("open database %s: %w", cfg.Database.Path, err)
	}
	rt.closers = append(rt.closers, rt.local.Close)

	switch cfg.Database.Driver {
	case config.DriverPostgres:
		pgCfg := cfg.Database.Postgres
		var pg *postgres.Store
		if cfg.Database.DSN != "" {
			pg, err = postgres.Open(ctx, cfg.Database.DSN, &pgCfg)
		} else {
			pg, err = postgres.New(ctx, &pgCfg)
		}
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, pg.Close)
		rt.backend = pg
	default:
		rt.backend = rt.local
	}
	rt.log.Debug("storage ready", "driver", cfg.Database.Driver)

	rt.identity = identity.NewLocal(rt.local, identity.WithLogger(rt.log))
	gateway := remote.NewGateway(rt.backend, rt.identity, rt.log)
	rt.store = state.New(gateway, state.WithLogger(rt.log))
	rt.session = session.New(rt.identity, rt.store, rt.log)
	return rt, nil
}

// Close stops the session and releases storage in reverse open order
func (rt *runtime) Close() {
	if rt.session != nil {
		rt.session.Stop()
		rt.session.Wait()
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil && rt.log != nil {
			rt.log.Warn("close failed", "error", err)
		}
	}
	rt.closers = nil
}

// loadSignedIn restores the persisted session and loads the data.
// It fails when nobody is signed in.
func (rt *runtime) loadSignedIn(ctx context.Context) error {
	if err := rt.session.Start(ctx); err != nil {
		return err
	}
	if rt.session.State() != session.Authenticated {
		return errors.New("not signed in; run 'taskdesk login' first")
	}
	// Joins the load the controller started on sign-in
	return rt.store.Load(ctx)
}
