package nats

import (
	"time"

	"github.com/kailas-cloud/credits/internal/domain"
	"github.com/kailas-cloud/credits/internal/domain/lease"
	"github.com/kailas-cloud/credits/internal/domain/user"
	"github.com/kailas-cloud/credits/internal/usecase/reconcile"
)

// Subject suffixes below the configured prefix.
const (
	SubjectLogin        = "users.login"
	SubjectLeaseState   = "leases.state"
	SubjectLeaseRemoved = "leases.removed"
	SubjectLeaseStop    = "leases.stop"
	SubjectTicks        = "ticks"
)

// ReasonInsufficientCredits is the stop reason sent by the engine.
const ReasonInsufficientCredits = "insufficient_credits"

type loginMessage struct {
	Name   string   `json:"name"`
	Groups []string `json:"groups"`
	Admin  bool     `json:"admin"`
}

func (m loginMessage) toDomain() (user.Identity, error) {
	if m.Name == "" {
		return user.Identity{}, domain.NewValidationError("name", "is required")
	}
	return user.Identity{Name: m.Name, Groups: m.Groups, Admin: m.Admin}, nil
}

type leaseStateMessage struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Owner           string    `json:"owner"`
	Running         bool      `json:"running"`
	Ready           bool      `json:"ready"`
	StartedAt       time.Time `json:"started_at"`
	BillingValue    int64     `json:"billing_value"`
	BillingInterval int64     `json:"billing_interval"`
}

func (m leaseStateMessage) toDomain() (lease.Lease, error) {
	switch {
	case m.ID == "":
		return lease.Lease{}, domain.NewValidationError("id", "is required")
	case m.Owner == "":
		return lease.Lease{}, domain.NewValidationError("owner", "is required")
	case m.BillingValue < 0:
		return lease.Lease{}, domain.NewValidationError("billing_value", "must not be negative")
	case m.Running && m.BillingInterval <= 0:
		return lease.Lease{}, domain.NewValidationError("billing_interval", "must be positive")
	}
	return lease.New(lease.Spec{
		ID:              m.ID,
		Name:            m.Name,
		Owner:           m.Owner,
		Running:         m.Running,
		Ready:           m.Ready,
		StartedAt:       m.StartedAt,
		BillingValue:    m.BillingValue,
		BillingInterval: m.BillingInterval,
	}), nil
}

type leaseRemovedMessage struct {
	ID    string `json:"id"`
	Owner string `json:"owner"`
}

type stopCommand struct {
	RequestID string `json:"request_id"`
	User      string `json:"user"`
	LeaseID   string `json:"lease_id"`
	LeaseName string `json:"lease_name"`
	Reason    string `json:"reason"`
}

type tickEvent struct {
	At         time.Time `json:"at"`
	DurationMS int64     `json:"duration_ms"`
	Users      int       `json:"users"`
	BalanceSum int64     `json:"balance_sum"`
	Granted    int64     `json:"granted"`
	Billed     int64     `json:"billed"`
	Stopped    int       `json:"stopped"`
	Errors     int       `json:"errors"`
}

func tickEventFrom(r reconcile.TickReport) tickEvent {
	return tickEvent{
		At:         r.At.UTC(),
		DurationMS: r.Duration.Milliseconds(),
		Users:      r.Users,
		BalanceSum: r.BalanceSum,
		Granted:    r.Granted,
		Billed:     r.Billed,
		Stopped:    r.Stopped,
		Errors:     r.Errors,
	}
}
