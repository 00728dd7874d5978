package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/fleetcrawl/internal/compiler"
	"github.com/roach88/fleetcrawl/internal/config"
	"github.com/roach88/fleetcrawl/internal/connector"
	"github.com/roach88/fleetcrawl/internal/connector/file"
	"github.com/roach88/fleetcrawl/internal/connector/kube"
	"github.com/roach88/fleetcrawl/internal/connector/urls"
	"github.com/roach88/fleetcrawl/internal/events"
	"github.com/roach88/fleetcrawl/internal/ir"
	"github.com/roach88/fleetcrawl/internal/logger"
	"github.com/roach88/fleetcrawl/internal/store"
)

// app holds what the store-backed commands share: configuration, logger,
// the open store and the full set of entity types.
type app struct {
	cfg      config.Config
	log      logger.Logger
	store    *store.Store
	declared []ir.EntityType
	entities []ir.EntityType
	closers  []func()
}

func openApp(ctx context.Context, opts *RootOptions) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	if opts.Verbose {
		cfg.Logging.Debug = true
	}
	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to configure logging", err)
	}

	a := &app{cfg: cfg, log: log}

	if err := a.loadEntities(); err != nil {
		return nil, err
	}

	switch cfg.Database.Driver {
	case config.DriverPostgres:
		a.store, err = store.OpenPostgres(ctx, cfg.Database.Postgres, store.WithLogger(log))
	default:
		a.store, err = store.Open(cfg.Database.Path, store.WithLogger(log))
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	log.Debug().Str("driver", cfg.Database.Driver).Int("entities", len(a.entities)).Msg("database ready")
	return a, nil
}

// loadEntities reads the declared entity types and adds the built-in types
// of the enabled connectors. The combined set must validate.
func (a *app) loadEntities() error {
	dir := a.cfg.EntitiesDir
	if _, err := os.Stat(dir); err == nil {
		result, errs := LoadEntities(dir, LoadModeCollectAll)
		if len(errs) > 0 {
			return WrapExitError(ExitCommandError, "failed to load entities from "+dir, errors.Join(errs...))
		}
		a.declared = result.Entities
	} else if !os.IsNotExist(err) || dir != config.Default().EntitiesDir {
		return WrapExitError(ExitCommandError, "entities directory "+dir, err)
	}

	a.entities = append(a.entities, a.declared...)
	if a.cfg.Connectors.Kubernetes != nil {
		a.entities = append(a.entities, kube.Entities()...)
	}
	if a.cfg.Connectors.URLs != nil {
		a.entities = append(a.entities, urls.Entity)
	}

	if verrs := compiler.Validate(a.entities); len(verrs) > 0 {
		msgs := make([]string, len(verrs))
		for i, v := range verrs {
			msgs[i] = v.Error()
		}
		return NewExitError(ExitCommandError, "invalid entity types:\n  "+strings.Join(msgs, "\n  "))
	}
	return nil
}

// entity finds a known entity type by name.
func (a *app) entity(name string) (ir.EntityType, error) {
	for _, e := range a.entities {
		if e.Name == name {
			return e, nil
		}
	}
	return ir.EntityType{}, NewExitError(ExitCommandError, fmt.Sprintf("unknown entity type %q", name))
}

// connectors builds one connector per crawled entity type.
func (a *app) connectors() ([]connector.Connector, error) {
	var conns []connector.Connector
	if dir := a.cfg.Connectors.Files; dir != "" {
		conns = append(conns, file.Connectors(a.declared, dir)...)
	}
	if kc := a.cfg.Connectors.Kubernetes; kc != nil {
		client, err := kube.Connect(*kc, a.log)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to connect to Kubernetes", err)
		}
		conns = append(conns, client.Connectors()...)
	}
	if uc := a.cfg.Connectors.URLs; uc != nil {
		conns = append(conns, urls.New(*uc, a.log))
	}
	if len(conns) == 0 {
		return nil, NewExitError(ExitCommandError, "no connectors configured")
	}
	return conns, nil
}

// publisher connects to NATS when it is configured.
func (a *app) publisher(ctx context.Context) (events.Publisher, error) {
	if !a.cfg.NATS.Enabled() {
		return events.Nop{}, nil
	}
	pub, closeFn, err := events.Connect(ctx, a.cfg.NATS, a.log)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to connect to NATS", err)
	}
	a.closers = append(a.closers, closeFn)
	return pub, nil
}

func (a *app) Close() {
	for _, c := range a.closers {
		c()
	}
	if err := a.store.Close(); err != nil {
		a.log.Error().Err(err).Msg("error closing database")
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
