package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/harukimoto/spotclash/internal/game/events"
)

// JetStreamConfig holds configuration for the game event stream.
type JetStreamConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
	MaxAge        time.Duration
	MaxMsgs       int64
	Replicas      int
}

// DefaultJetStreamConfig returns default JetStream configuration.
func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:           nats.DefaultURL,
		StreamName:    "GAME_EVENTS",
		SubjectPrefix: "game.events",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
		MaxAge:        24 * time.Hour,
		MaxMsgs:       -1,
		Replicas:      1,
	}
}

// JetStreamPublisher mirrors every room broadcast onto the GAME_EVENTS stream,
// subject game.events.<game_id>, so admin and analytics consumers see the same
// ordered event flow the clients do.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

func NewJetStreamPublisher(cfg JetStreamConfig) (*JetStreamPublisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	p := &JetStreamPublisher{nc: nc, js: js, config: cfg}

	if err := p.ensureStream(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	return p, nil
}

func (p *JetStreamPublisher) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:        p.config.StreamName,
		Description: "Live game event stream mirrored from the connection hub",
		Subjects:    []string{fmt.Sprintf("%s.>", p.config.SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      p.config.MaxAge,
		MaxMsgs:     p.config.MaxMsgs,
		Storage:     jetstream.FileStorage,
		Replicas:    p.config.Replicas,
	}

	if _, err := p.js.Stream(ctx, p.config.StreamName); err != nil {
		if _, err = p.js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().Str("stream", p.config.StreamName).Msg("created JetStream stream")
	}
	return nil
}

// Publish mirrors one broadcast. Best effort: a publish failure is logged and
// never affects the room, the bus is an observer and not on the hot path.
func (p *JetStreamPublisher) Publish(gameID uuid.UUID, event events.Event) {
	subject := fmt.Sprintf("%s.%s", p.config.SubjectPrefix, gameID)

	env := map[string]any{
		"eventId":   uuid.New().String(),
		"eventType": string(event.Type),
		"gameId":    gameID.String(),
		"timestamp": time.Now().UTC(),
		"payload":   json.RawMessage(event.Data),
	}
	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event envelope")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err = p.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{string(event.Type)},
			"Game-ID":    []string{gameID.String()},
		},
	}, jetstream.WithExpectStream(p.config.StreamName))
	if err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("failed to publish game event to JetStream")
		return
	}

	log.Debug().
		Str("subject", subject).
		Str("event_type", string(event.Type)).
		Msg("published game event to JetStream")
}

func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}
