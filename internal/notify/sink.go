package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"watchtower/internal/metrics"
)

var ErrDisabled = errors.New("notify: channel disabled")

// Channel delivers text to one recipient and returns the message id.
type Channel interface {
	Name() string
	Send(ctx context.Context, recipient, text string, mode ParseMode) (string, error)
}

type SinkConfig struct {
	BotName            string
	Enabled            bool
	ChatID             string
	HeartbeatRecipient string
	ParseMode          ParseMode
}

// Sink renders alerts and sends them with a single attempt each.
type Sink struct {
	channel Channel
	cfg     SinkConfig
	logger  *slog.Logger
}

func NewSink(channel Channel, cfg SinkConfig, logger *slog.Logger) *Sink {
	if cfg.HeartbeatRecipient == "" {
		cfg.HeartbeatRecipient = cfg.ChatID
	}
	if cfg.ParseMode == "" {
		cfg.ParseMode = ModePlain
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Sink{channel: channel, cfg: cfg, logger: logger}
}

func (s *Sink) Notify(ctx context.Context, alert Alert) error {
	return s.send(ctx, "alert", s.cfg.ChatID, FormatAlert(alert, s.cfg.ParseMode))
}

func (s *Sink) Heartbeat(ctx context.Context) error {
	return s.send(ctx, "heartbeat", s.cfg.HeartbeatRecipient, HeartbeatText(s.cfg.BotName))
}

func (s *Sink) send(ctx context.Context, kind, recipient, text string) error {
	if !s.cfg.Enabled || s.channel == nil {
		s.logger.Info("Notification channel disabled, dropping message", "kind", kind)
		metrics.Notifications.WithLabelValues(kind, "disabled").Inc()
		return ErrDisabled
	}

	id, err := s.channel.Send(ctx, recipient, text, s.cfg.ParseMode)
	metrics.Notifications.WithLabelValues(kind, metrics.Status(err)).Inc()
	if err != nil {
		s.logger.Error("Failed to send notification",
			"kind", kind,
			"channel", s.channel.Name(),
			"recipient", recipient,
			"error", err,
		)
		return fmt.Errorf("%s via %s: %w", kind, s.channel.Name(), err)
	}

	s.logger.Info("Notification sent",
		"kind", kind,
		"channel", s.channel.Name(),
		"message_id", id,
	)
	return nil
}
