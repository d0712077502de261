package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/utafrali/accounts/pkg/errors"
	pkgkafka "github.com/utafrali/accounts/pkg/kafka"
	"github.com/utafrali/accounts/pkg/logger"
)

// Topics published by the auth service.
var (
	TopicUserRegistered = pkgkafka.Topic("user", "registered")
	TopicUserDeleted    = pkgkafka.Topic("user", "deleted")
)

// ConsumerGroup is the default group of the user service consumers.
const ConsumerGroup = "user-service"

type accountPayload struct {
	UserID string `json:"userId"`
}

// Profiles is the part of the profile service driven by account events.
type Profiles interface {
	Provision(ctx context.Context, userID string) error
	Remove(ctx context.Context, userID string) error
}

// AccountHandlers turns account lifecycle events into profile changes.
type AccountHandlers struct {
	profiles Profiles
	logger   *slog.Logger
}

func NewAccountHandlers(profiles Profiles, logger *slog.Logger) *AccountHandlers {
	return &AccountHandlers{profiles: profiles, logger: logger}
}

// HandleUserRegistered provisions an empty profile. An account that is
// already gone is not retried.
func (h *AccountHandlers) HandleUserRegistered(ctx context.Context, ev *pkgkafka.Event) error {
	userID, err := userIDOf(ev)
	if err != nil {
		return err
	}

	if err := h.profiles.Provision(ctx, userID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return pkgkafka.Permanent(err)
		}
		return err
	}

	logger.WithContext(ctx, h.logger).Info("profile provisioned", slog.String("user_id", userID))
	return nil
}

func (h *AccountHandlers) HandleUserDeleted(ctx context.Context, ev *pkgkafka.Event) error {
	userID, err := userIDOf(ev)
	if err != nil {
		return err
	}

	if err := h.profiles.Remove(ctx, userID); err != nil {
		return err
	}

	logger.WithContext(ctx, h.logger).Info("profile removed", slog.String("user_id", userID))
	return nil
}

// Consumers builds one consumer per account topic.
func (h *AccountHandlers) Consumers(brokers []string, group string, dlq *pkgkafka.DLQProducer) []*pkgkafka.Consumer {
	opts := []pkgkafka.ConsumerOption{}
	if dlq != nil {
		opts = append(opts, pkgkafka.WithDLQ(dlq))
	}

	routes := map[string]pkgkafka.Handler{
		TopicUserRegistered: h.HandleUserRegistered,
		TopicUserDeleted:    h.HandleUserDeleted,
	}

	consumers := make([]*pkgkafka.Consumer, 0, len(routes))
	for _, topic := range []string{TopicUserRegistered, TopicUserDeleted} {
		consumers = append(consumers, pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:  brokers,
			GroupID:  group,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 1 << 20,
		}, routes[topic], h.logger, opts...))
	}
	return consumers
}

func userIDOf(ev *pkgkafka.Event) (string, error) {
	var data accountPayload
	if err := ev.UnmarshalData(&data); err != nil {
		return "", pkgkafka.Permanent(fmt.Errorf("decode %s payload: %w", ev.EventType, err))
	}
	if data.UserID == "" {
		data.UserID = ev.AggregateID
	}
	if data.UserID == "" {
		return "", pkgkafka.Permanent(fmt.Errorf("%s event %s has no user id", ev.EventType, ev.EventID))
	}
	return data.UserID, nil
}
