package registry

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/zyedidia/generic/mapset"
)

// Engine gates payout-wallet, admin-set and threshold changes behind
// N-of-M approval from the current admin set. Each public method runs in
// a single badger transaction: it either fully applies or fully fails.
//
// Checks performed when a proposal is created are advisory only; the
// admin set may drift between creation and execution, so every invariant
// is re-validated against current state at execution time.
type Engine struct {
	db    *badger.DB
	clock Clock
	sink  Sink
}

func NewEngine(db *badger.DB, clock Clock, sink Sink) *Engine {
	if clock == nil {
		clock = systemClock
	}

	if sink == nil {
		sink = LogSink{}
	}

	return &Engine{
		db:    db,
		clock: clock,
		sink:  sink,
	}
}

// Initialize seeds the single-admin config with threshold 1, the payout
// wallet and the platform fee. It can only succeed once.
func (e *Engine) Initialize(admin, wallet string, feeBps int) error {
	if !isPrincipal(admin) {
		return fmt.Errorf("%w: admin is not a principal", ErrInvalidProposalArgs)
	}

	if !isWellFormedAddress(wallet) {
		return fmt.Errorf("%w: malformed wallet address", ErrInvalidProposalArgs)
	}

	if feeBps == 0 {
		feeBps = defaultFeeBps
	}

	if feeBps < 0 || feeBps > 10000 {
		return ErrInvalidFeePercent
	}

	now := e.clock()

	err := e.db.Update(func(txn *badger.Txn) error {
		if _, err := findConfig(txn); err == nil {
			return ErrAlreadyInitialized
		} else if !errors.Is(err, ErrNotInitialized) {
			return err
		}

		cfg := &Config{
			Admins:    []string{admin},
			Threshold: 1,
		}

		if err := saveConfig(txn, cfg); err != nil {
			return err
		}

		if err := saveWallet(txn, &Wallet{Address: wallet, UpdatedAt: now}); err != nil {
			return err
		}

		return saveFee(txn, feeBps)
	})

	if err != nil {
		return err
	}

	e.sink.Emit(Initialized{Admin: admin, Wallet: wallet, FeeBps: feeBps, Timestamp: now})
	return nil
}

// Config returns a read-only snapshot of the multisig configuration.
func (e *Engine) Config() (*Config, error) {
	txn := e.db.NewTransaction(false)
	defer txn.Discard()

	return findConfig(txn)
}

// Wallet returns the current payout wallet.
func (e *Engine) Wallet() (*Wallet, error) {
	txn := e.db.NewTransaction(false)
	defer txn.Discard()

	return findWallet(txn)
}

// IsAdmin reports whether principal belongs to the current admin set.
func (e *Engine) IsAdmin(principal string) (bool, error) {
	cfg, err := e.Config()
	if err != nil {
		return false, err
	}

	return cfg.IsAdmin(principal), nil
}

// CreateProposal records a new proposal with the proposer's approval
// already counted. ttl = 0 means the proposal never expires. The checks
// here are shallow sanity only; execution re-validates everything.
func (e *Engine) CreateProposal(proposer string, change Change, ttl time.Duration) (uint64, error) {
	now := e.clock()

	var id uint64
	err := e.db.Update(func(txn *badger.Txn) error {
		cfg, err := findConfig(txn)
		if err != nil {
			return err
		}

		if !cfg.IsAdmin(proposer) {
			return ErrUnauthorized
		}

		if err := checkChangeArgs(cfg, change); err != nil {
			return err
		}

		id, err = nextProposalID(txn)
		if err != nil {
			return err
		}

		p := &Proposal{
			ID:        id,
			Change:    change,
			Proposer:  proposer,
			Approvals: []string{proposer},
			CreatedAt: now,
			Executed:  false,
		}

		if ttl > 0 {
			p.ExpiresAt = now.Add(ttl)
		}

		if err := saveProposal(txn, p); err != nil {
			return err
		}

		return addActiveProposal(txn, id)
	})

	if err != nil {
		return 0, err
	}

	e.sink.Emit(ProposalCreated{ID: id, Proposer: proposer, Timestamp: now})
	return id, nil
}

// ApproveProposal appends the approver to the proposal's approvals.
// Purely additive bookkeeping; no threshold check happens here.
func (e *Engine) ApproveProposal(approver string, id uint64) error {
	now := e.clock()

	err := e.db.Update(func(txn *badger.Txn) error {
		p, err := findProposal(txn, id)
		if err != nil {
			return err
		}

		if p.Executed {
			return ErrAlreadyExecuted
		}

		if p.Expired(now) {
			return ErrProposalExpired
		}

		cfg, err := findConfig(txn)
		if err != nil {
			return err
		}

		if !cfg.IsAdmin(approver) {
			return ErrUnauthorized
		}

		if p.HasApproval(approver) {
			return ErrAlreadyApproved
		}

		p.Approvals = append(p.Approvals, approver)
		return saveProposal(txn, p)
	})

	if err != nil {
		return err
	}

	e.sink.Emit(ProposalApproved{ID: id, Approver: approver, Timestamp: now})
	return nil
}

// ExecuteProposal applies the proposal's change once quorum is reached.
// Only approvals from still-current admins count toward the threshold:
// an approval recorded by an admin who was later removed stays stored
// for audit but no longer carries weight.
func (e *Engine) ExecuteProposal(executor string, id uint64) error {
	now := e.clock()

	var events []DomainEvent
	err := e.db.Update(func(txn *badger.Txn) error {
		events = events[:0]

		p, err := findProposal(txn, id)
		if err != nil {
			return err
		}

		if p.Executed {
			return ErrAlreadyExecuted
		}

		if p.Expired(now) {
			return ErrProposalExpired
		}

		cfg, err := findConfig(txn)
		if err != nil {
			return err
		}

		if !cfg.IsAdmin(executor) {
			return ErrUnauthorized
		}

		if quorum(cfg, p) < cfg.Threshold {
			return ErrInsufficientApprovals
		}

		switch p.Change.Action {
		case ActionSetWallet:
			if !isWellFormedAddress(p.Change.Wallet) {
				return fmt.Errorf("%w: malformed wallet address", ErrInvalidProposalArgs)
			}

			old, err := findWallet(txn)
			if err != nil {
				return err
			}

			if err := saveWallet(txn, &Wallet{Address: p.Change.Wallet, UpdatedAt: now}); err != nil {
				return err
			}

			events = append(events, WalletUpdated{Old: old.Address, New: p.Change.Wallet, Timestamp: now})
		case ActionAddAdmin:
			if isDuplicateAdmin(cfg, p.Change.Admin) {
				return ErrAdminAlreadyExists
			}

			cfg.Admins = append(cfg.Admins, p.Change.Admin)
			if err := saveConfig(txn, cfg); err != nil {
				return err
			}

			events = append(events, AdminAdded{Admin: p.Change.Admin, AddedBy: executor, Timestamp: now})
		case ActionRemoveAdmin:
			if !cfg.IsAdmin(p.Change.Admin) {
				return ErrAdminNotFound
			}

			// Absolute guard: no approval count overrides it.
			if isLastAdmin(cfg) {
				return ErrCannotRemoveLastAdmin
			}

			admins := cfg.Admins[:0:0]
			for _, admin := range cfg.Admins {
				if admin != p.Change.Admin {
					admins = append(admins, admin)
				}
			}

			cfg.Admins = admins

			// Clamp so quorum stays reachable within the same atomic step.
			if cfg.Threshold > len(cfg.Admins) {
				cfg.Threshold = len(cfg.Admins)
			}

			if err := saveConfig(txn, cfg); err != nil {
				return err
			}

			events = append(events, AdminRemoved{Admin: p.Change.Admin, RemovedBy: executor, Timestamp: now})
		case ActionSetThreshold:
			if !validateThreshold(p.Change.Threshold, len(cfg.Admins)) {
				return ErrInvalidThreshold
			}

			old := cfg.Threshold
			cfg.Threshold = p.Change.Threshold
			if err := saveConfig(txn, cfg); err != nil {
				return err
			}

			events = append(events, ThresholdUpdated{Old: old, New: p.Change.Threshold, Timestamp: now})
		default:
			return fmt.Errorf("%w: unknown action %d", ErrInvalidProposalArgs, p.Change.Action)
		}

		p.Executed = true
		if err := saveProposal(txn, p); err != nil {
			return err
		}

		return removeActiveProposal(txn, id)
	})

	if err != nil {
		return err
	}

	events = append(events, ProposalExecuted{ID: id, Executor: executor, Timestamp: now})
	for _, ev := range events {
		e.sink.Emit(ev)
	}

	return nil
}

// GetProposal returns the stored proposal record, executed or not.
func (e *Engine) GetProposal(id uint64) (*Proposal, error) {
	txn := e.db.NewTransaction(false)
	defer txn.Discard()

	return findProposal(txn, id)
}

// ListActiveProposals returns the ids of proposals not yet executed.
func (e *Engine) ListActiveProposals() ([]uint64, error) {
	txn := e.db.NewTransaction(false)
	defer txn.Discard()

	return listActiveProposals(txn)
}

// quorum counts approvals from principals that are admins right now.
func quorum(cfg *Config, p *Proposal) int {
	admins := mapset.New[string]()
	for _, admin := range cfg.Admins {
		admins.Put(admin)
	}

	count := 0
	for _, approval := range p.Approvals {
		if admins.Has(approval) {
			count++
		}
	}

	return count
}

// checkChangeArgs is the advisory creation-time check. Failures map to
// ErrInvalidProposalArgs; the authoritative check runs at execution with
// the type-specific error kinds.
func checkChangeArgs(cfg *Config, change Change) error {
	switch change.Action {
	case ActionSetWallet:
		if !isWellFormedAddress(change.Wallet) {
			return fmt.Errorf("%w: malformed wallet address", ErrInvalidProposalArgs)
		}
	case ActionAddAdmin:
		if !isPrincipal(change.Admin) {
			return fmt.Errorf("%w: admin is not a principal", ErrInvalidProposalArgs)
		}

		if isDuplicateAdmin(cfg, change.Admin) {
			return fmt.Errorf("%w: %s is already an admin", ErrInvalidProposalArgs, change.Admin)
		}
	case ActionRemoveAdmin:
		if !cfg.IsAdmin(change.Admin) {
			return fmt.Errorf("%w: %s is not an admin", ErrInvalidProposalArgs, change.Admin)
		}
	case ActionSetThreshold:
		if change.Threshold <= 0 {
			return fmt.Errorf("%w: threshold must be positive", ErrInvalidProposalArgs)
		}
	default:
		return fmt.Errorf("%w: unknown action %d", ErrInvalidProposalArgs, change.Action)
	}

	return nil
}
