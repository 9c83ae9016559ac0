package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go"
)

// DefaultQueueGroup load-balances messages across bot replicas.
const DefaultQueueGroup = "msbot"

// NATSConfig configures a NATSSubscriber.
type NATSConfig struct {
	URL     string
	Subject string
	Queue   string
	Name    string
	// RequestTimeout bounds a single dispatch.
	RequestTimeout time.Duration
}

// NATSSubscriber answers message requests published on a NATS subject.
type NATSSubscriber struct {
	cfg        NATSConfig
	dispatcher Dispatcher
	validator  *validator.Validate
	logger     *slog.Logger
}

type natsError struct {
	Error string `json:"error"`
}

// NewNATSSubscriber constructs a subscriber. Call Run to start consuming.
func NewNATSSubscriber(cfg NATSConfig, dispatcher Dispatcher, logger *slog.Logger) *NATSSubscriber {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Queue == "" {
		cfg.Queue = DefaultQueueGroup
	}
	if cfg.Name == "" {
		cfg.Name = "msbot"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSSubscriber{cfg: cfg, dispatcher: dispatcher, validator: validator.New(), logger: logger}
}

// Run connects, subscribes with a queue group and blocks until ctx is done.
func (s *NATSSubscriber) Run(ctx context.Context) error {
	conn, err := nats.Connect(s.cfg.URL,
		nats.Name(s.cfg.Name),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				s.logger.Warn("nats disconnected", slog.Any("error", err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			s.logger.Info("nats reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return fmt.Errorf("transport: nats connect: %w", err)
	}
	defer conn.Close()

	sub, err := conn.QueueSubscribe(s.cfg.Subject, s.cfg.Queue, func(msg *nats.Msg) {
		reply := s.process(ctx, msg.Data)
		if msg.Reply == "" {
			return
		}
		if err := msg.Respond(reply); err != nil {
			s.logger.Warn("nats respond failed", slog.Any("error", err))
		}
	})
	if err != nil {
		return fmt.Errorf("transport: nats subscribe %s: %w", s.cfg.Subject, err)
	}
	s.logger.Info("nats subscriber started", slog.String("subject", s.cfg.Subject), slog.String("queue", s.cfg.Queue))

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		s.logger.Warn("nats drain failed", slog.Any("error", err))
	}
	return nil
}

// process decodes one request payload, dispatches it and encodes the reply.
func (s *NATSSubscriber) process(ctx context.Context, data []byte) []byte {
	var req MessageRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return encodeNATS(natsError{Error: "invalid JSON payload"})
	}
	if err := validateRequest(s.validator, req); err != nil {
		return encodeNATS(natsError{Error: err.Error()})
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()
	resp := s.dispatcher.Dispatch(ctx, toEvent(req, time.Now()))
	return encodeNATS(toResponse(resp))
}

func encodeNATS(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"error":"internal error"}`)
	}
	return data
}
