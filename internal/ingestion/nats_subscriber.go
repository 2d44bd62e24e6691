package ingestion

import (
	"context"
	"fmt"
	"time"

	"RangeLedger/internal/event"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// NATSSubscriber subscribes to JetStream command subjects and feeds raw
// messages to the Dispatcher.
type NATSSubscriber struct {
	js        jetstream.JetStream
	eventChan chan<- RawEvent
	consumers []jetstream.ConsumeContext
	logger    zerolog.Logger
}

// RawEvent is a message that has not been parsed yet.
type RawEvent struct {
	Subject    string
	Data       []byte
	ReceivedAt time.Time
	AckFunc    func() // Call to ACK the NATS message once it has been handled
	NakFunc    func() // Call to NAK on shutdown (will be redelivered)
}

// SubjectConfig maps a subject filter to a durable consumer on a stream.
type SubjectConfig struct {
	Subject      string
	EventType    event.EventType
	ConsumerName string
	StreamName   string
}

// Stream names. Admin commands, trading and settlement scale independently.
const (
	StreamAdmin      = "RANGEBET_ADMIN"
	StreamTrades     = "RANGEBET_TRADES"
	StreamSettlement = "RANGEBET_SETTLEMENT"
)

func streamFor(et event.EventType) string {
	switch et {
	case event.EventTypeBuyTokens, event.EventTypeSellTokens, event.EventTypeTransferPosition:
		return StreamTrades
	case event.EventTypeClaimReward:
		return StreamSettlement
	default:
		return StreamAdmin
	}
}

// DefaultSubjects returns one consumer per command type.
func DefaultSubjects() []SubjectConfig {
	subjects := make([]SubjectConfig, 0, len(event.AllEventTypes))
	for _, et := range event.AllEventTypes {
		subjects = append(subjects, SubjectConfig{
			Subject:      CommandSubjectPrefix + et.Token() + ".>",
			EventType:    et,
			ConsumerName: "ledger-" + et.Token(),
			StreamName:   streamFor(et),
		})
	}
	return subjects
}

// DefaultStreams groups the default subjects into stream configs.
// Streams use FileStorage, retention=Limits, max_age=72h.
func DefaultStreams() []jetstream.StreamConfig {
	byName := make(map[string]*jetstream.StreamConfig)
	var order []string
	for _, s := range DefaultSubjects() {
		cfg, ok := byName[s.StreamName]
		if !ok {
			cfg = &jetstream.StreamConfig{
				Name:      s.StreamName,
				Storage:   jetstream.FileStorage,
				Retention: jetstream.LimitsPolicy,
				MaxAge:    72 * time.Hour,
				Replicas:  1,
			}
			byName[s.StreamName] = cfg
			order = append(order, s.StreamName)
		}
		cfg.Subjects = append(cfg.Subjects, s.Subject)
	}

	streams := make([]jetstream.StreamConfig, 0, len(order))
	for _, name := range order {
		streams = append(streams, *byName[name])
	}
	return streams
}

func NewNATSSubscriber(js jetstream.JetStream, eventChan chan<- RawEvent, logger zerolog.Logger) *NATSSubscriber {
	return &NATSSubscriber{
		js:        js,
		eventChan: eventChan,
		logger:    logger,
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawEvent{
				Subject:    msg.Subject(),
				Data:       msg.Data(),
				ReceivedAt: time.Now(),
				AckFunc:    func() { _ = msg.Ack() },
				NakFunc:    func() { _ = msg.Nak() },
			}

			select {
			case ns.eventChan <- raw:
			case <-ctx.Done():
				_ = msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		ns.logger.Info().
			Str("subject", cfg.Subject).
			Str("consumer", cfg.ConsumerName).
			Msg("subscribed")
	}

	return nil
}

// EnsureStreams creates the command streams if they don't exist.
func EnsureStreams(ctx context.Context, js jetstream.JetStream, logger zerolog.Logger) error {
	for _, cfg := range DefaultStreams() {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		logger.Info().Str("stream", cfg.Name).Msg("ensured stream")
	}
	return nil
}

// Stop stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	ns.logger.Info().Msg("NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, logger zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.Name("rangeledger"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
