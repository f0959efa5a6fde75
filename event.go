package registry

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Default platform fee in basis points when none is given at init.
const defaultFeeBps = 500

// RegisterEventArgs carries everything needed to list a new event.
type RegisterEventArgs struct {
	ID             string  `json:"id"`
	PaymentAddress string  `json:"payment_address"`
	MetadataCID    string  `json:"metadata_cid"`
	MaxSupply      int64   `json:"max_supply"`
	Tiers          []*Tier `json:"tiers,omitempty"`
}

// RegisterEvent lists a new event under the organizer principal. The
// platform fee is snapshotted at registration time.
func (e *Engine) RegisterEvent(organizer string, args RegisterEventArgs) (*EventInfo, error) {
	if args.ID == "" {
		return nil, fmt.Errorf("%w: empty event id", ErrInvalidProposalArgs)
	}

	if !isPrincipal(organizer) {
		return nil, fmt.Errorf("%w: organizer is not a principal", ErrInvalidProposalArgs)
	}

	if !isWellFormedAddress(args.PaymentAddress) {
		return nil, fmt.Errorf("%w: malformed payment address", ErrInvalidProposalArgs)
	}

	if !isWellFormedCID(args.MetadataCID) {
		return nil, ErrInvalidMetadataCID
	}

	if args.MaxSupply < 0 {
		return nil, fmt.Errorf("%w: negative max supply", ErrInvalidProposalArgs)
	}

	var tierTotal int64
	for _, tier := range args.Tiers {
		if tier.Name == "" {
			return nil, fmt.Errorf("%w: empty tier name", ErrInvalidProposalArgs)
		}

		if tier.Limit < 0 {
			return nil, fmt.Errorf("%w: negative tier limit", ErrInvalidProposalArgs)
		}

		if tier.Price.IsNegative() {
			return nil, fmt.Errorf("%w: negative tier price", ErrInvalidProposalArgs)
		}

		// Sales start at zero no matter what the caller sent.
		tier.Sold = 0
		tierTotal += tier.Limit
	}

	if args.MaxSupply > 0 && tierTotal > args.MaxSupply {
		return nil, ErrTierLimitTooLarge
	}

	now := e.clock()

	var ev *EventInfo
	err := e.db.Update(func(txn *badger.Txn) error {
		fee, err := findFee(txn)
		if err != nil {
			return err
		}

		ok, err := eventExists(txn, args.ID)
		if err != nil {
			return err
		}

		if ok {
			return ErrEventAlreadyExists
		}

		ev = &EventInfo{
			ID:             args.ID,
			Organizer:      organizer,
			PaymentAddress: args.PaymentAddress,
			FeeBps:         fee,
			Active:         true,
			CreatedAt:      now,
			MetadataCID:    args.MetadataCID,
			MaxSupply:      args.MaxSupply,
			Tiers:          args.Tiers,
		}

		if err := saveEvent(txn, ev); err != nil {
			return err
		}

		return indexOrganizerEvent(txn, ev)
	})

	if err != nil {
		return nil, err
	}

	e.sink.Emit(EventRegistered{EventID: ev.ID, Organizer: organizer, Timestamp: now})
	return ev, nil
}

// PlatformFee returns the platform fee in basis points applied to new
// event registrations.
func (e *Engine) PlatformFee() (int, error) {
	txn := e.db.NewTransaction(false)
	defer txn.Discard()

	return findFee(txn)
}

// GetEvent returns the stored event record.
func (e *Engine) GetEvent(id string) (*EventInfo, error) {
	txn := e.db.NewTransaction(false)
	defer txn.Discard()

	return findEvent(txn, id)
}

// GetEventPaymentInfo returns what a payment processor needs to charge
// for an event. Inactive events are rejected.
func (e *Engine) GetEventPaymentInfo(id string) (*PaymentInfo, error) {
	ev, err := e.GetEvent(id)
	if err != nil {
		return nil, err
	}

	if !ev.Active {
		return nil, ErrEventInactive
	}

	return &PaymentInfo{
		PaymentAddress: ev.PaymentAddress,
		FeeBps:         ev.FeeBps,
		Tiers:          ev.Tiers,
	}, nil
}

// UpdateEventStatus toggles an event active or inactive. Organizer only.
func (e *Engine) UpdateEventStatus(caller, id string, active bool) error {
	now := e.clock()

	err := e.db.Update(func(txn *badger.Txn) error {
		ev, err := findEvent(txn, id)
		if err != nil {
			return err
		}

		if ev.Organizer != caller {
			return ErrUnauthorized
		}

		ev.Active = active
		return saveEvent(txn, ev)
	})

	if err != nil {
		return err
	}

	e.sink.Emit(EventStatusUpdated{EventID: id, Active: active, UpdatedBy: caller, Timestamp: now})
	return nil
}

// UpdateMetadata points an event at a new metadata document. Organizer
// only.
func (e *Engine) UpdateMetadata(caller, id, cid string) error {
	if !isWellFormedCID(cid) {
		return ErrInvalidMetadataCID
	}

	now := e.clock()

	err := e.db.Update(func(txn *badger.Txn) error {
		ev, err := findEvent(txn, id)
		if err != nil {
			return err
		}

		if ev.Organizer != caller {
			return ErrUnauthorized
		}

		ev.MetadataCID = cid
		return saveEvent(txn, ev)
	})

	if err != nil {
		return err
	}

	e.sink.Emit(MetadataUpdated{EventID: id, MetadataCID: cid, UpdatedBy: caller, Timestamp: now})
	return nil
}

// SetPlatformFee changes the fee applied to future registrations. Any
// current admin may call it; events already listed keep their snapshot.
func (e *Engine) SetPlatformFee(caller string, bps int) error {
	if bps < 0 || bps > 10000 {
		return ErrInvalidFeePercent
	}

	now := e.clock()

	var old int
	err := e.db.Update(func(txn *badger.Txn) error {
		cfg, err := findConfig(txn)
		if err != nil {
			return err
		}

		if !cfg.IsAdmin(caller) {
			return ErrUnauthorized
		}

		if old, err = findFee(txn); err != nil {
			return err
		}

		return saveFee(txn, bps)
	})

	if err != nil {
		return err
	}

	e.sink.Emit(FeeUpdated{Old: old, New: bps, UpdatedBy: caller, Timestamp: now})
	return nil
}

// IncrementInventory records one sold ticket, optionally against a tier.
// Fails once the event or tier cap is reached.
func (e *Engine) IncrementInventory(id, tierName string) (int64, error) {
	now := e.clock()

	var supply, maxSupply int64
	err := e.db.Update(func(txn *badger.Txn) error {
		ev, err := findEvent(txn, id)
		if err != nil {
			return err
		}

		if !ev.Active {
			return ErrEventInactive
		}

		if ev.MaxSupply > 0 && ev.CurrentSupply >= ev.MaxSupply {
			return ErrMaxSupplyExceeded
		}

		if tierName != "" {
			tier := ev.Tier(tierName)
			if tier == nil {
				return ErrTierNotFound
			}

			if tier.Limit > 0 && tier.Sold >= tier.Limit {
				return ErrTierSupplyExceeded
			}

			tier.Sold++
		}

		ev.CurrentSupply++
		supply, maxSupply = ev.CurrentSupply, ev.MaxSupply

		return saveEvent(txn, ev)
	})

	if err != nil {
		return 0, err
	}

	e.sink.Emit(InventoryIncremented{EventID: id, NewSupply: supply, MaxSupply: maxSupply, Timestamp: now})
	return supply, nil
}

// ListOrganizerEvents returns event ids listed by the organizer, oldest
// first.
func (e *Engine) ListOrganizerEvents(organizer string) ([]string, error) {
	if !isPrincipal(organizer) {
		return nil, fmt.Errorf("%w: organizer is not a principal", ErrInvalidProposalArgs)
	}

	txn := e.db.NewTransaction(false)
	defer txn.Discard()

	return listOrganizerEvents(txn, organizer)
}
