package redis

import "fmt"

const (
	leaseKeyPrefix  = "lease:"
	jobKeyPrefix    = "jobs:"
	ticketKeyPrefix = "tickets:"
)

// KeyGenerator provides universal Redis key generation for coordination state
type KeyGenerator struct{}

// NewKeyGenerator creates a new KeyGenerator instance
func NewKeyGenerator() *KeyGenerator {
	return &KeyGenerator{}
}

// LeaseKey returns the key holding the lease record for a named task
// Format: lease:{name}
func (kg *KeyGenerator) LeaseKey(name string) string {
	return leaseKeyPrefix + name
}

// JobKey returns the hash key holding one job's record
// Format: jobs:{queue}:job:{id}
func (kg *KeyGenerator) JobKey(queue, jobID string) string {
	return fmt.Sprintf("%s%s:job:%s", jobKeyPrefix, queue, jobID)
}

// WaitingKey returns the list key of job IDs awaiting a consumer
// Format: jobs:{queue}:waiting
func (kg *KeyGenerator) WaitingKey(queue string) string {
	return fmt.Sprintf("%s%s:waiting", jobKeyPrefix, queue)
}

// ActiveKey returns the list key of job IDs currently being processed
// Format: jobs:{queue}:active
func (kg *KeyGenerator) ActiveKey(queue string) string {
	return fmt.Sprintf("%s%s:active", jobKeyPrefix, queue)
}

// FailedKey returns the capped list of recently failed job IDs kept for diagnostics
// Format: jobs:{queue}:failed
func (kg *KeyGenerator) FailedKey(queue string) string {
	return fmt.Sprintf("%s%s:failed", jobKeyPrefix, queue)
}

// ResultKey returns the key holding a completed job's encoded artifact
// Format: jobs:{queue}:result:{id}
func (kg *KeyGenerator) ResultKey(queue, jobID string) string {
	return fmt.Sprintf("%s%s:result:%s", jobKeyPrefix, queue, jobID)
}

// EventChannel returns the pubsub channel carrying a job's terminal-state event
// Format: jobs:{queue}:events:{id}
func (kg *KeyGenerator) EventChannel(queue, jobID string) string {
	return fmt.Sprintf("%s%s:events:%s", jobKeyPrefix, queue, jobID)
}

// StaleTicketsKey returns the set of ticket IDs awaiting escalation
// Format: tickets:stale
func (kg *KeyGenerator) StaleTicketsKey() string {
	return ticketKeyPrefix + "stale"
}

// TicketKey returns the hash key holding one ticket's summary record
// Format: tickets:ticket:{id}
func (kg *KeyGenerator) TicketKey(ticketID string) string {
	return fmt.Sprintf("%sticket:%s", ticketKeyPrefix, ticketID)
}

// EscalationChannel returns the pubsub channel carrying escalation notices
// Format: tickets:escalations
func (kg *KeyGenerator) EscalationChannel() string {
	return ticketKeyPrefix + "escalations"
}
