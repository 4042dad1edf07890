package main

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/harukimoto/spotclash/internal/game"
	"github.com/harukimoto/spotclash/internal/game/gateway"
	"github.com/harukimoto/spotclash/internal/game/session"
	"github.com/harukimoto/spotclash/internal/stations"
)

// Services bundles the wired application components.
type Services struct {
	Repository  *game.Repository
	Registry    *session.Registry
	Hub         *gateway.Hub
	GameHandler *game.Handler
	WSHandler   *gateway.Handler
	Publisher   *gateway.JetStreamPublisher // nil when NATS is disabled
}

func setupServices(cfg AppConfig, pool *pgxpool.Pool) (*Services, error) {
	table, err := stations.Load(cfg.StationsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load station table: %w", err)
	}

	repo := game.NewRepository(pool)
	registry := session.NewRegistry(repo, repo, clockwork.NewRealClock())

	var publisher *gateway.JetStreamPublisher
	if cfg.NATSURL != "" {
		jsCfg := gateway.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATSURL
		publisher, err = gateway.NewJetStreamPublisher(jsCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create event publisher: %w", err)
		}
		log.Info().Str("nats_url", cfg.NATSURL).Msg("game event mirror enabled")
	}

	var hub *gateway.Hub
	if publisher != nil {
		hub = gateway.NewHub(gateway.DefaultConnectionConfig(), registry, publisher)
	} else {
		hub = gateway.NewHub(gateway.DefaultConnectionConfig(), registry, nil)
	}
	registry.SetBroadcaster(hub)

	svc := game.NewService(repo, table, registry)

	return &Services{
		Repository:  repo,
		Registry:    registry,
		Hub:         hub,
		GameHandler: game.NewHandler(svc),
		WSHandler:   gateway.NewHandler(hub),
		Publisher:   publisher,
	}, nil
}
