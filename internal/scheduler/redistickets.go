package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ledgerdesk/engine/internal/common/redis"
)

// RedisTicketSource adapts the web application's ticket store. The CRUD layer
// maintains the stale set; this side only drains it.
type RedisTicketSource struct {
	redis  *redis.Client
	keys   *redis.KeyGenerator
	logger *zap.Logger
}

// NewRedisTicketSource creates a ticket source over the shared Redis store
func NewRedisTicketSource(redisClient *redis.Client, logger *zap.Logger) *RedisTicketSource {
	return &RedisTicketSource{
		redis:  redisClient,
		keys:   redis.NewKeyGenerator(),
		logger: logger,
	}
}

type redisTicketIterator struct {
	source *RedisTicketSource
	ids    []string
	pos    int
}

// FindStale snapshots the stale set and iterates its ticket records
func (s *RedisTicketSource) FindStale(ctx context.Context) (TicketIterator, error) {
	ids, err := s.redis.LRange(ctx, s.keys.StaleTicketsKey(), 0, -1)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale tickets: %w", err)
	}
	return &redisTicketIterator{source: s, ids: ids}, nil
}

func (it *redisTicketIterator) Next(ctx context.Context) (*StaleTicket, error) {
	for it.pos < len(it.ids) {
		id := it.ids[it.pos]
		it.pos++

		fields, err := it.source.redis.HGetAll(ctx, it.source.keys.TicketKey(id))
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			// Record gone between snapshot and read; treat as already handled
			it.source.logger.Debug("Stale ticket record missing, skipping",
				zap.String("ticket_id", id))
			continue
		}

		updatedMs, _ := strconv.ParseInt(fields["updated_at_ms"], 10, 64)
		return &StaleTicket{
			ID:        id,
			Tenant:    fields["tenant"],
			Subject:   fields["subject"],
			UpdatedAt: time.UnixMilli(updatedMs).UTC(),
		}, nil
	}
	return nil, nil
}

func (it *redisTicketIterator) Close() error {
	return nil
}

// MarkEscalated flags the ticket and removes it from the stale set. Safe to
// call twice for the same ticket.
func (s *RedisTicketSource) MarkEscalated(ctx context.Context, ticketID string) error {
	if err := s.redis.HSet(ctx, s.keys.TicketKey(ticketID),
		"escalated", "1",
		"escalated_at_ms", time.Now().UTC().UnixMilli(),
	); err != nil {
		return err
	}
	return s.redis.LRem(ctx, s.keys.StaleTicketsKey(), 0, ticketID)
}

// RedisNotifier publishes escalation notices on a pubsub channel consumed by
// the notification service
type RedisNotifier struct {
	redis *redis.Client
	keys  *redis.KeyGenerator
}

// NewRedisNotifier creates a pubsub-backed escalation notifier
func NewRedisNotifier(redisClient *redis.Client) *RedisNotifier {
	return &RedisNotifier{
		redis: redisClient,
		keys:  redis.NewKeyGenerator(),
	}
}

// NotifyEscalation implements Notifier
func (n *RedisNotifier) NotifyEscalation(ctx context.Context, ticket *StaleTicket) error {
	notice, err := json.Marshal(map[string]interface{}{
		"ticket_id":     ticket.ID,
		"tenant":        ticket.Tenant,
		"subject":       ticket.Subject,
		"updated_at_ms": ticket.UpdatedAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal escalation notice: %w", err)
	}
	return n.redis.Publish(ctx, n.keys.EscalationChannel(), notice)
}
