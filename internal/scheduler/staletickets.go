package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// StaleTicket is a support ticket that has gone without activity long enough
// to need escalation
type StaleTicket struct {
	ID        string
	Tenant    string
	Subject   string
	UpdatedAt time.Time
}

// TicketIterator walks stale tickets lazily. Next returns nil when exhausted.
type TicketIterator interface {
	Next(ctx context.Context) (*StaleTicket, error)
	Close() error
}

// TicketSource is the collaborator that owns ticket storage. MarkEscalated
// must be idempotent: the scan can revisit a ticket if a lease TTL boundary
// lets two replicas overlap.
type TicketSource interface {
	FindStale(ctx context.Context) (TicketIterator, error)
	MarkEscalated(ctx context.Context, ticketID string) error
}

// Notifier delivers escalation notices. Delivery is fire-and-forget: failures
// are logged and never fail the scan.
type Notifier interface {
	NotifyEscalation(ctx context.Context, ticket *StaleTicket) error
}

// StaleTicketTask escalates stale support tickets on each coordinator cycle
type StaleTicketTask struct {
	source   TicketSource
	notifier Notifier
	logger   *zap.Logger
}

// NewStaleTicketTask creates the stale-ticket scan task
func NewStaleTicketTask(source TicketSource, notifier Notifier, logger *zap.Logger) *StaleTicketTask {
	return &StaleTicketTask{
		source:   source,
		notifier: notifier,
		logger:   logger,
	}
}

// Name implements Task
func (t *StaleTicketTask) Name() string {
	return "stale-ticket-scan"
}

// Run walks all stale tickets, marks each escalated and sends the notice.
// Marking happens before notification so a crash never loses the escalation,
// only at worst the notice.
func (t *StaleTicketTask) Run(ctx context.Context) error {
	iter, err := t.source.FindStale(ctx)
	if err != nil {
		return fmt.Errorf("failed to scan stale tickets: %w", err)
	}
	defer iter.Close()

	escalated := 0
	for {
		ticket, err := iter.Next(ctx)
		if err != nil {
			return fmt.Errorf("stale ticket iteration failed: %w", err)
		}
		if ticket == nil {
			break
		}

		if err := t.source.MarkEscalated(ctx, ticket.ID); err != nil {
			return fmt.Errorf("failed to escalate ticket %s: %w", ticket.ID, err)
		}
		escalated++

		if err := t.notifier.NotifyEscalation(ctx, ticket); err != nil {
			t.logger.Warn("Escalation notice failed",
				zap.String("ticket_id", ticket.ID),
				zap.String("tenant", ticket.Tenant),
				zap.Error(err))
		}
	}

	if escalated > 0 {
		t.logger.Info("Stale tickets escalated", zap.Int("count", escalated))
	}
	return nil
}
