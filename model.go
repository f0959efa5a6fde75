package registry

import (
	"time"

	"github.com/shopspring/decimal"
)

// Action identifies the kind of change a governance proposal carries.
type Action uint8

const (
	ActionSetWallet Action = iota + 1
	ActionAddAdmin
	ActionRemoveAdmin
	ActionSetThreshold
)

func (a Action) String() string {
	switch a {
	case ActionSetWallet:
		return "set_wallet"
	case ActionAddAdmin:
		return "add_admin"
	case ActionRemoveAdmin:
		return "remove_admin"
	case ActionSetThreshold:
		return "set_threshold"
	default:
		return "unknown"
	}
}

// Change is the tagged payload of a proposal. Only the field matching
// Action is meaningful.
type Change struct {
	Action    Action `json:"action"`
	Wallet    string `json:"wallet,omitempty"`
	Admin     string `json:"admin,omitempty"`
	Threshold int    `json:"threshold,omitempty"`
}

// Config is the multisig configuration gating all governance changes.
type Config struct {
	Admins    []string `json:"admins"`
	Threshold int      `json:"threshold"`
}

func (c *Config) IsAdmin(principal string) bool {
	for _, admin := range c.Admins {
		if admin == principal {
			return true
		}
	}

	return false
}

// Proposal is an auditable intent to change the payout wallet, the admin
// set or the approval threshold. Proposals are never deleted; executed
// ones stay behind as audit records.
type Proposal struct {
	ID        uint64    `json:"id"`
	Change    Change    `json:"change"`
	Proposer  string    `json:"proposer"`
	Approvals []string  `json:"approvals"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at,omitempty"` // zero = never expires
	Executed  bool      `json:"executed"`
}

func (p *Proposal) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt)
}

func (p *Proposal) HasApproval(principal string) bool {
	for _, approval := range p.Approvals {
		if approval == principal {
			return true
		}
	}

	return false
}

// Wallet is the payout address platform fees are routed to. Changing it
// requires a SetWallet proposal reaching quorum.
type Wallet struct {
	Address   string    `json:"address"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tier is a ticket class with its own price and supply cap.
type Tier struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Limit int64           `json:"limit"`
	Sold  int64           `json:"sold"`
}

type EventInfo struct {
	ID             string    `json:"id"`
	Organizer      string    `json:"organizer"`
	PaymentAddress string    `json:"payment_address"`
	FeeBps         int       `json:"fee_bps"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	MetadataCID    string    `json:"metadata_cid"`
	MaxSupply      int64     `json:"max_supply"` // 0 = unlimited
	CurrentSupply  int64     `json:"current_supply"`
	Tiers          []*Tier   `json:"tiers,omitempty"`
}

func (e *EventInfo) Tier(name string) *Tier {
	for _, tier := range e.Tiers {
		if tier.Name == name {
			return tier
		}
	}

	return nil
}

// PaymentInfo is the slice of an event a payment processor needs.
type PaymentInfo struct {
	PaymentAddress string  `json:"payment_address"`
	FeeBps         int     `json:"fee_bps"`
	Tiers          []*Tier `json:"tiers,omitempty"`
}
