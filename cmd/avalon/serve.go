package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cfoust/avalon/pkg/auth"
	"github.com/cfoust/avalon/pkg/commands"
	"github.com/cfoust/avalon/pkg/config"
	"github.com/cfoust/avalon/pkg/game"
	"github.com/cfoust/avalon/pkg/ingress"
	"github.com/cfoust/avalon/pkg/janitor"
	"github.com/cfoust/avalon/pkg/reconciler"
	"github.com/cfoust/avalon/pkg/rooms"
	"github.com/cfoust/avalon/pkg/state"

	"github.com/rs/zerolog/log"
)

// openStores picks the room store and account bookkeeping from the config.
func openStores(settings *config.Config) (state.Store, rooms.Accounts, error) {
	var store state.Store
	var accounts rooms.Accounts

	if settings.Database.Path == "" {
		log.Warn().Msg("no database configured, rooms will not survive a restart")
		memory := state.NewMemoryStore()
		store, accounts = memory, memory
	} else {
		db, err := state.InitDB(settings.Database.Path)
		if err != nil {
			return nil, nil, err
		}
		sql := state.NewSQLStore(db)
		store, accounts = sql, sql
		log.Info().Str("path", settings.Database.Path).Msg("opened database")
	}

	if settings.Redis.Enabled {
		client := state.NewRedisClient(settings.Redis)
		cached := state.NewCachedStore(store, client)
		cached.SetTimeout(time.Duration(settings.Redis.TimeoutMillis) * time.Millisecond)
		store = cached
		log.Info().Str("address", settings.Redis.Address).Msg("caching rooms in redis")
	}

	return store, accounts, nil
}

// newAuthority fails when no signing secret is configured.
func newAuthority(settings *config.Config) (*auth.Authority, error) {
	secret := settings.Server.Ingress.Secret
	if secret == "" {
		return nil, errors.New("server.ingress.secret is not set, refusing to accept unsigned players")
	}
	return auth.NewAuthority(secret)
}

func tokenCommand(player string, configs []string, hours int) error {
	settings, err := config.Process(configs)
	if err != nil {
		return err
	}

	authority, err := newAuthority(settings)
	if err != nil {
		return err
	}

	token, err := authority.Issue(game.PlayerID(player), tokenLifetime(settings, hours))
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}

func serveCommand(configs []string, flags ServeFlags) error {
	settings, err := config.Process(configs)
	if err != nil {
		log.Error().Err(err).Msg("failed to load configuration")
		return err
	}

	err = flags.Apply(settings)
	if err != nil {
		return err
	}

	authority, err := newAuthority(settings)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, accounts, err := openStores(settings)
	if err != nil {
		return err
	}

	engine := game.NewEngine(game.EngineConfig{
		StrictQuests: settings.Game.StrictQuests,
	})
	service := rooms.NewService(store, accounts, engine, settings.Game)
	service.SetStoreTimeout(time.Duration(settings.Database.TimeoutSeconds) * time.Second)

	timeouts := reconciler.New(service, settings.Reconciler)
	timeouts.Start(ctx)
	defer timeouts.Stop()

	cleanup := janitor.New(service, settings.Janitor)
	cleanup.Start(ctx)
	defer cleanup.Stop()

	handler := commands.New(service)

	limits := ingress.Limits{
		CommandsPerSecond: settings.Server.Ingress.CommandsPerSecond,
		Burst:             settings.Server.Ingress.Burst,
	}
	wsIngress := ingress.NewWSIngress(handler, store, authority, limits)
	go wsIngress.Poll(ctx, service.Events.Subscribe())

	server := ingress.NewServer(wsIngress, ingress.NewAPI(handler, authority, limits))

	err = server.Listen(ctx, settings.Server.Ingress.Web.Port)
	if err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() {
		errc <- server.Serve()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("failed to serve")
			return err
		}
	case sig := <-sigs:
		log.Info().Msgf("terminating: %v", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}
