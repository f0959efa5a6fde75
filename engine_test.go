package registry

import (
	"errors"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	adminA = "f25b410b-2ab3-4fb3-bd0f-1d5d280c529d"
	adminB = "8017d200-7870-4b82-b53f-74bae1d2dad7"
	adminC = "c94ac88f-4671-3976-b60a-09064f1811e8"

	payoutAddr = "GDQNY3PBOJOKYZSRMK2S7LHHGWZIUISD4QORETLMXEWXBI7KFZZMKTL3"
	newAddr    = "GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVV"
)

func newTestDB(t *testing.T) *badger.DB {
	t.Helper()

	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() { _ = db.Close() })
	return db
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

type recordSink struct {
	events []DomainEvent
}

func (s *recordSink) Emit(ev DomainEvent) {
	s.events = append(s.events, ev)
}

func (s *recordSink) kinds() []string {
	var out []string
	for _, ev := range s.events {
		out = append(out, ev.Kind())
	}

	return out
}

func newTestEngine(t *testing.T) (*Engine, *fakeClock, *recordSink) {
	t.Helper()

	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	sink := &recordSink{}
	e := NewEngine(newTestDB(t), clock.Now, sink)

	if err := e.Initialize(adminA, payoutAddr, 0); err != nil {
		t.Fatal(err)
	}

	return e, clock, sink
}

func mustExecute(t *testing.T, e *Engine, proposer string, change Change, approvers ...string) uint64 {
	t.Helper()

	id, err := e.CreateProposal(proposer, change, 0)
	if err != nil {
		t.Fatal(err)
	}

	for _, approver := range approvers {
		if err := e.ApproveProposal(approver, id); err != nil {
			t.Fatal(err)
		}
	}

	if err := e.ExecuteProposal(proposer, id); err != nil {
		t.Fatal(err)
	}

	return id
}

func assertInvariants(t *testing.T, e *Engine) {
	t.Helper()

	cfg, err := e.Config()
	if err != nil {
		t.Fatal(err)
	}

	if len(cfg.Admins) < 1 {
		t.Fatal("admin set is empty")
	}

	if cfg.Threshold < 1 || cfg.Threshold > len(cfg.Admins) {
		t.Fatalf("threshold %d out of range for %d admins", cfg.Threshold, len(cfg.Admins))
	}
}

func TestInitialize(t *testing.T) {
	e, _, _ := newTestEngine(t)

	cfg, err := e.Config()
	if err != nil {
		t.Fatal(err)
	}

	if len(cfg.Admins) != 1 || cfg.Admins[0] != adminA {
		t.Fatalf("unexpected admins %v", cfg.Admins)
	}

	if cfg.Threshold != 1 {
		t.Fatalf("threshold = %d, want 1", cfg.Threshold)
	}

	wallet, err := e.Wallet()
	if err != nil {
		t.Fatal(err)
	}

	if wallet.Address != payoutAddr {
		t.Fatalf("wallet = %s", wallet.Address)
	}

	fee, err := e.PlatformFee()
	if err != nil {
		t.Fatal(err)
	}

	if fee != defaultFeeBps {
		t.Fatalf("fee = %d, want %d", fee, defaultFeeBps)
	}

	if err := e.Initialize(adminA, payoutAddr, 0); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("second init = %v", err)
	}
}

func TestUninitializedEngine(t *testing.T) {
	e := NewEngine(newTestDB(t), nil, &recordSink{})

	if _, err := e.Config(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("config = %v", err)
	}

	if _, err := e.CreateProposal(adminA, Change{Action: ActionAddAdmin, Admin: adminB}, 0); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("create = %v", err)
	}
}

// Single admin with threshold 1: the proposer's auto-approval reaches
// quorum immediately.
func TestAddAdminSingleAdmin(t *testing.T) {
	e, _, _ := newTestEngine(t)

	mustExecute(t, e, adminA, Change{Action: ActionAddAdmin, Admin: adminB})

	ok, err := e.IsAdmin(adminB)
	if err != nil {
		t.Fatal(err)
	}

	if !ok {
		t.Fatal("adminB not added")
	}

	cfg, _ := e.Config()
	if cfg.Threshold != 1 {
		t.Fatalf("threshold = %d, want unchanged 1", cfg.Threshold)
	}

	assertInvariants(t, e)
}

func TestThresholdGate(t *testing.T) {
	e, _, _ := newTestEngine(t)

	mustExecute(t, e, adminA, Change{Action: ActionAddAdmin, Admin: adminB})
	mustExecute(t, e, adminA, Change{Action: ActionSetThreshold, Threshold: 2})

	id, err := e.CreateProposal(adminA, Change{Action: ActionSetThreshold, Threshold: 1}, 0)
	if err != nil {
		t.Fatal(err)
	}

	if err := e.ExecuteProposal(adminA, id); !errors.Is(err, ErrInsufficientApprovals) {
		t.Fatalf("execute with 1/2 approvals = %v", err)
	}

	if err := e.ApproveProposal(adminB, id); err != nil {
		t.Fatal(err)
	}

	if err := e.ExecuteProposal(adminA, id); err != nil {
		t.Fatal(err)
	}

	cfg, _ := e.Config()
	if cfg.Threshold != 1 {
		t.Fatalf("threshold = %d, want 1", cfg.Threshold)
	}

	assertInvariants(t, e)
}

func TestRemoveAdminKeepsThreshold(t *testing.T) {
	e, _, _ := newTestEngine(t)

	mustExecute(t, e, adminA, Change{Action: ActionAddAdmin, Admin: adminB})
	mustExecute(t, e, adminA, Change{Action: ActionRemoveAdmin, Admin: adminB})

	cfg, _ := e.Config()
	if len(cfg.Admins) != 1 || cfg.Admins[0] != adminA {
		t.Fatalf("admins = %v", cfg.Admins)
	}

	if cfg.Threshold != 1 {
		t.Fatalf("threshold = %d, want 1", cfg.Threshold)
	}

	assertInvariants(t, e)
}

func TestCannotRemoveLastAdmin(t *testing.T) {
	e, _, _ := newTestEngine(t)

	id, err := e.CreateProposal(adminA, Change{Action: ActionRemoveAdmin, Admin: adminA}, 0)
	if err != nil {
		t.Fatal(err)
	}

	// Fully approved (1/1), but the guard is absolute.
	if err := e.ExecuteProposal(adminA, id); !errors.Is(err, ErrCannotRemoveLastAdmin) {
		t.Fatalf("execute = %v", err)
	}

	assertInvariants(t, e)
}

func TestThresholdClampedOnRemoval(t *testing.T) {
	e, _, _ := newTestEngine(t)

	mustExecute(t, e, adminA, Change{Action: ActionAddAdmin, Admin: adminB})
	mustExecute(t, e, adminA, Change{Action: ActionSetThreshold, Threshold: 2})

	mustExecute(t, e, adminA, Change{Action: ActionRemoveAdmin, Admin: adminB}, adminB)

	cfg, _ := e.Config()
	if len(cfg.Admins) != 1 {
		t.Fatalf("admins = %v", cfg.Admins)
	}

	if cfg.Threshold != 1 {
		t.Fatalf("threshold = %d, want clamped to 1", cfg.Threshold)
	}

	assertInvariants(t, e)
}

func TestProposalExpiry(t *testing.T) {
	e, clock, _ := newTestEngine(t)

	mustExecute(t, e, adminA, Change{Action: ActionAddAdmin, Admin: adminB})

	id, err := e.CreateProposal(adminA, Change{Action: ActionSetThreshold, Threshold: 2}, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}

	clock.now = clock.now.Add(10 * time.Second)

	if err := e.ApproveProposal(adminB, id); !errors.Is(err, ErrProposalExpired) {
		t.Fatalf("approve after expiry = %v", err)
	}

	if err := e.ExecuteProposal(adminA, id); !errors.Is(err, ErrProposalExpired) {
		t.Fatalf("execute after expiry = %v", err)
	}

	// Lazy expiry: the id stays in the active index.
	ids, err := e.ListActiveProposals()
	if err != nil {
		t.Fatal(err)
	}

	if len(ids) != 1 || ids[0] != id {
		t.Fatalf("active ids = %v", ids)
	}
}

func TestNoExpiryWithZeroTTL(t *testing.T) {
	e, clock, _ := newTestEngine(t)

	id, err := e.CreateProposal(adminA, Change{Action: ActionAddAdmin, Admin: adminB}, 0)
	if err != nil {
		t.Fatal(err)
	}

	clock.now = clock.now.Add(1000 * time.Hour)

	if err := e.ExecuteProposal(adminA, id); err != nil {
		t.Fatal(err)
	}
}

func TestApproveTwice(t *testing.T) {
	e, _, _ := newTestEngine(t)

	mustExecute(t, e, adminA, Change{Action: ActionAddAdmin, Admin: adminB})

	id, err := e.CreateProposal(adminA, Change{Action: ActionSetThreshold, Threshold: 2}, 0)
	if err != nil {
		t.Fatal(err)
	}

	if err := e.ApproveProposal(adminB, id); err != nil {
		t.Fatal(err)
	}

	if err := e.ApproveProposal(adminB, id); !errors.Is(err, ErrAlreadyApproved) {
		t.Fatalf("second approve = %v", err)
	}

	// Proposer's auto-approval counts as a first approval too.
	if err := e.ApproveProposal(adminA, id); !errors.Is(err, ErrAlreadyApproved) {
		t.Fatalf("proposer approve = %v", err)
	}

	p, err := e.GetProposal(id)
	if err != nil {
		t.Fatal(err)
	}

	if len(p.Approvals) != 2 {
		t.Fatalf("approvals = %v", p.Approvals)
	}
}

func TestExecuteTwice(t *testing.T) {
	e, _, _ := newTestEngine(t)

	id := mustExecute(t, e, adminA, Change{Action: ActionAddAdmin, Admin: adminB})

	if err := e.ExecuteProposal(adminA, id); !errors.Is(err, ErrAlreadyExecuted) {
		t.Fatalf("second execute = %v", err)
	}

	if err := e.ApproveProposal(adminB, id); !errors.Is(err, ErrAlreadyExecuted) {
		t.Fatalf("approve after execute = %v", err)
	}

	p, err := e.GetProposal(id)
	if err != nil {
		t.Fatal(err)
	}

	if !p.Executed {
		t.Fatal("executed flag reverted")
	}
}

func TestUnauthorized(t *testing.T) {
	e, _, _ := newTestEngine(t)

	if _, err := e.CreateProposal(adminB, Change{Action: ActionSetThreshold, Threshold: 1}, 0); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("create by outsider = %v", err)
	}

	id, err := e.CreateProposal(adminA, Change{Action: ActionAddAdmin, Admin: adminB}, 0)
	if err != nil {
		t.Fatal(err)
	}

	if err := e.ApproveProposal(adminC, id); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("approve by outsider = %v", err)
	}

	if err := e.ExecuteProposal(adminC, id); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("execute by outsider = %v", err)
	}
}

func TestProposalNotFound(t *testing.T) {
	e, _, _ := newTestEngine(t)

	if _, err := e.GetProposal(42); !errors.Is(err, ErrProposalNotFound) {
		t.Fatalf("get = %v", err)
	}

	if err := e.ApproveProposal(adminA, 42); !errors.Is(err, ErrProposalNotFound) {
		t.Fatalf("approve = %v", err)
	}

	if err := e.ExecuteProposal(adminA, 42); !errors.Is(err, ErrProposalNotFound) {
		t.Fatalf("execute = %v", err)
	}
}

// An approval from an admin who has since been removed stays stored but
// no longer counts toward quorum.
func TestRemovedAdminApprovalDoesNotCount(t *testing.T) {
	e, _, _ := newTestEngine(t)

	mustExecute(t, e, adminA, Change{Action: ActionAddAdmin, Admin: adminB})
	mustExecute(t, e, adminA, Change{Action: ActionAddAdmin, Admin: adminC})
	mustExecute(t, e, adminA, Change{Action: ActionSetThreshold, Threshold: 2})

	id, err := e.CreateProposal(adminA, Change{Action: ActionSetWallet, Wallet: newAddr}, 0)
	if err != nil {
		t.Fatal(err)
	}

	if err := e.ApproveProposal(adminC, id); err != nil {
		t.Fatal(err)
	}

	// Remove adminC; the wallet proposal now only has one live approval.
	mustExecute(t, e, adminA, Change{Action: ActionRemoveAdmin, Admin: adminC}, adminB)

	if err := e.ExecuteProposal(adminA, id); !errors.Is(err, ErrInsufficientApprovals) {
		t.Fatalf("execute = %v", err)
	}

	p, _ := e.GetProposal(id)
	if len(p.Approvals) != 2 {
		t.Fatalf("stored approvals purged: %v", p.Approvals)
	}

	if err := e.ApproveProposal(adminB, id); err != nil {
		t.Fatal(err)
	}

	if err := e.ExecuteProposal(adminA, id); err != nil {
		t.Fatal(err)
	}

	wallet, _ := e.Wallet()
	if wallet.Address != newAddr {
		t.Fatalf("wallet = %s", wallet.Address)
	}
}

// Two concurrent add-same-admin proposals can both be created; the
// execution-time check catches the second.
func TestAddAdminRaceCaughtAtExecution(t *testing.T) {
	e, _, _ := newTestEngine(t)

	id1, err := e.CreateProposal(adminA, Change{Action: ActionAddAdmin, Admin: adminB}, 0)
	if err != nil {
		t.Fatal(err)
	}

	id2, err := e.CreateProposal(adminA, Change{Action: ActionAddAdmin, Admin: adminB}, 0)
	if err != nil {
		t.Fatal(err)
	}

	if err := e.ExecuteProposal(adminA, id1); err != nil {
		t.Fatal(err)
	}

	if err := e.ExecuteProposal(adminA, id2); !errors.Is(err, ErrAdminAlreadyExists) {
		t.Fatalf("second execute = %v", err)
	}
}

func TestRemoveAdminGoneAtExecution(t *testing.T) {
	e, _, _ := newTestEngine(t)

	mustExecute(t, e, adminA, Change{Action: ActionAddAdmin, Admin: adminB})

	id1, err := e.CreateProposal(adminA, Change{Action: ActionRemoveAdmin, Admin: adminB}, 0)
	if err != nil {
		t.Fatal(err)
	}

	id2, err := e.CreateProposal(adminA, Change{Action: ActionRemoveAdmin, Admin: adminB}, 0)
	if err != nil {
		t.Fatal(err)
	}

	if err := e.ExecuteProposal(adminA, id1); err != nil {
		t.Fatal(err)
	}

	if err := e.ExecuteProposal(adminA, id2); !errors.Is(err, ErrAdminNotFound) {
		t.Fatalf("second execute = %v", err)
	}
}

func TestThresholdStaleAtExecution(t *testing.T) {
	e, _, _ := newTestEngine(t)

	mustExecute(t, e, adminA, Change{Action: ActionAddAdmin, Admin: adminB})

	// Valid when created (2 admins), invalid once adminB is removed.
	id, err := e.CreateProposal(adminA, Change{Action: ActionSetThreshold, Threshold: 2}, 0)
	if err != nil {
		t.Fatal(err)
	}

	mustExecute(t, e, adminA, Change{Action: ActionRemoveAdmin, Admin: adminB})

	if err := e.ExecuteProposal(adminA, id); !errors.Is(err, ErrInvalidThreshold) {
		t.Fatalf("execute = %v", err)
	}

	assertInvariants(t, e)
}

func TestCreateProposalArgs(t *testing.T) {
	e, _, _ := newTestEngine(t)

	cases := []Change{
		{Action: ActionSetThreshold, Threshold: 0},
		{Action: ActionAddAdmin, Admin: adminA},
		{Action: ActionAddAdmin, Admin: "not-a-uuid"},
		{Action: ActionRemoveAdmin, Admin: adminB},
		{Action: ActionSetWallet, Wallet: ""},
		{Action: 0},
	}

	for _, change := range cases {
		if _, err := e.CreateProposal(adminA, change, 0); !errors.Is(err, ErrInvalidProposalArgs) {
			t.Fatalf("create %v = %v", change, err)
		}
	}
}

func TestProposalIDsMonotonic(t *testing.T) {
	e, _, _ := newTestEngine(t)

	for want := uint64(1); want <= 3; want++ {
		id, err := e.CreateProposal(adminA, Change{Action: ActionSetWallet, Wallet: newAddr}, 0)
		if err != nil {
			t.Fatal(err)
		}

		if id != want {
			t.Fatalf("id = %d, want %d", id, want)
		}
	}
}

func TestActiveProposals(t *testing.T) {
	e, _, _ := newTestEngine(t)

	id1, err := e.CreateProposal(adminA, Change{Action: ActionSetWallet, Wallet: newAddr}, 0)
	if err != nil {
		t.Fatal(err)
	}

	id2, err := e.CreateProposal(adminA, Change{Action: ActionAddAdmin, Admin: adminB}, 0)
	if err != nil {
		t.Fatal(err)
	}

	ids, err := e.ListActiveProposals()
	if err != nil {
		t.Fatal(err)
	}

	if len(ids) != 2 || ids[0] != id1 || ids[1] != id2 {
		t.Fatalf("active ids = %v", ids)
	}

	if err := e.ExecuteProposal(adminA, id1); err != nil {
		t.Fatal(err)
	}

	ids, err = e.ListActiveProposals()
	if err != nil {
		t.Fatal(err)
	}

	if len(ids) != 1 || ids[0] != id2 {
		t.Fatalf("active ids after execute = %v", ids)
	}
}

func TestExecutionEvents(t *testing.T) {
	e, _, sink := newTestEngine(t)

	sink.events = nil
	mustExecute(t, e, adminA, Change{Action: ActionAddAdmin, Admin: adminB})

	want := []string{"proposal_created", "admin_added", "proposal_executed"}
	got := sink.kinds()
	if len(got) != len(want) {
		t.Fatalf("events = %v", got)
	}

	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}

	sink.events = nil
	mustExecute(t, e, adminA, Change{Action: ActionSetThreshold, Threshold: 2})

	found := false
	for _, ev := range sink.events {
		if tu, ok := ev.(ThresholdUpdated); ok {
			found = true
			if tu.Old != 1 || tu.New != 2 {
				t.Fatalf("threshold event = %+v", tu)
			}
		}
	}

	if !found {
		t.Fatalf("no threshold event in %v", sink.kinds())
	}
}

func TestFailedExecutionEmitsNothing(t *testing.T) {
	e, _, sink := newTestEngine(t)

	id, err := e.CreateProposal(adminA, Change{Action: ActionRemoveAdmin, Admin: adminA}, 0)
	if err != nil {
		t.Fatal(err)
	}

	sink.events = nil
	if err := e.ExecuteProposal(adminA, id); !errors.Is(err, ErrCannotRemoveLastAdmin) {
		t.Fatal(err)
	}

	if len(sink.events) != 0 {
		t.Fatalf("events on failure: %v", sink.kinds())
	}
}
