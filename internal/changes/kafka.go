package changes

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/vfs"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/pkg/kafka"
)

// HandleMessage decodes a JSON vfs.Change and applies it. Undecodable
// messages are logged and committed so they do not block the partition; a
// failed update is returned and left uncommitted.
func HandleMessage(a *Applier) kafka.MessageHandler {
	logger := slog.Default().With("component", "change-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		ch, err := kafka.DecodeJSON[vfs.Change](value)
		if err != nil {
			logger.Error("failed to decode change event", "error", err, "key", string(key))
			return nil
		}
		if ch.Path == "" {
			logger.Error("change event without path", "key", string(key))
			return nil
		}
		if err := a.Apply(ch); err != nil {
			return fmt.Errorf("applying %s of %s: %w", ch.Kind, ch.Path, err)
		}
		return nil
	}
}

// Runner is the part of *kafka.Consumer a KafkaSource drives.
type Runner interface {
	Start(ctx context.Context) error
}

// KafkaSource feeds changes from the file-change topic into an Applier.
type KafkaSource struct {
	consumer Runner
	logger   *slog.Logger
}

func NewKafkaSource(consumer Runner) *KafkaSource {
	return &KafkaSource{
		consumer: consumer,
		logger:   slog.Default().With("component", "change-consumer"),
	}
}

// Run consumes until ctx is cancelled.
func (s *KafkaSource) Run(ctx context.Context) error {
	s.logger.Info("change consumer starting")
	if err := s.consumer.Start(ctx); err != nil {
		return fmt.Errorf("consuming file changes: %w", err)
	}
	s.logger.Info("change consumer stopped")
	return nil
}
