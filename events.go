package registry

import (
	"log/slog"
	"time"
)

// DomainEvent is a typed notification emitted after a state change has
// been committed. The sink decides delivery; the engine never blocks on it.
type DomainEvent interface {
	Kind() string
}

// Sink receives domain events. Implementations must be safe for use from
// a single goroutine at a time; the engine emits events sequentially
// after each committed operation.
type Sink interface {
	Emit(ev DomainEvent)
}

type Initialized struct {
	Admin     string    `json:"admin"`
	Wallet    string    `json:"wallet"`
	FeeBps    int       `json:"fee_bps"`
	Timestamp time.Time `json:"timestamp"`
}

func (Initialized) Kind() string { return "initialized" }

type ProposalCreated struct {
	ID        uint64    `json:"id"`
	Proposer  string    `json:"proposer"`
	Timestamp time.Time `json:"timestamp"`
}

func (ProposalCreated) Kind() string { return "proposal_created" }

type ProposalApproved struct {
	ID        uint64    `json:"id"`
	Approver  string    `json:"approver"`
	Timestamp time.Time `json:"timestamp"`
}

func (ProposalApproved) Kind() string { return "proposal_approved" }

type ProposalExecuted struct {
	ID        uint64    `json:"id"`
	Executor  string    `json:"executor"`
	Timestamp time.Time `json:"timestamp"`
}

func (ProposalExecuted) Kind() string { return "proposal_executed" }

type AdminAdded struct {
	Admin     string    `json:"admin"`
	AddedBy   string    `json:"added_by"`
	Timestamp time.Time `json:"timestamp"`
}

func (AdminAdded) Kind() string { return "admin_added" }

type AdminRemoved struct {
	Admin     string    `json:"admin"`
	RemovedBy string    `json:"removed_by"`
	Timestamp time.Time `json:"timestamp"`
}

func (AdminRemoved) Kind() string { return "admin_removed" }

type ThresholdUpdated struct {
	Old       int       `json:"old"`
	New       int       `json:"new"`
	Timestamp time.Time `json:"timestamp"`
}

func (ThresholdUpdated) Kind() string { return "threshold_updated" }

type WalletUpdated struct {
	Old       string    `json:"old"`
	New       string    `json:"new"`
	Timestamp time.Time `json:"timestamp"`
}

func (WalletUpdated) Kind() string { return "wallet_updated" }

type EventRegistered struct {
	EventID   string    `json:"event_id"`
	Organizer string    `json:"organizer"`
	Timestamp time.Time `json:"timestamp"`
}

func (EventRegistered) Kind() string { return "event_registered" }

type EventStatusUpdated struct {
	EventID   string    `json:"event_id"`
	Active    bool      `json:"active"`
	UpdatedBy string    `json:"updated_by"`
	Timestamp time.Time `json:"timestamp"`
}

func (EventStatusUpdated) Kind() string { return "event_status_updated" }

type MetadataUpdated struct {
	EventID     string    `json:"event_id"`
	MetadataCID string    `json:"metadata_cid"`
	UpdatedBy   string    `json:"updated_by"`
	Timestamp   time.Time `json:"timestamp"`
}

func (MetadataUpdated) Kind() string { return "metadata_updated" }

type FeeUpdated struct {
	Old       int       `json:"old"`
	New       int       `json:"new"`
	UpdatedBy string    `json:"updated_by"`
	Timestamp time.Time `json:"timestamp"`
}

func (FeeUpdated) Kind() string { return "fee_updated" }

type InventoryIncremented struct {
	EventID   string    `json:"event_id"`
	NewSupply int64     `json:"new_supply"`
	MaxSupply int64     `json:"max_supply"`
	Timestamp time.Time `json:"timestamp"`
}

func (InventoryIncremented) Kind() string { return "inventory_incremented" }

// LogSink writes every event to slog. The default sink when none is given.
type LogSink struct{}

func (LogSink) Emit(ev DomainEvent) {
	slog.Info("domain event", slog.String("kind", ev.Kind()), slog.Any("event", ev))
}
