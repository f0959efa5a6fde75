package registry

import (
	"encoding/binary"
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	g "github.com/pandodao/generic"
)

// Key layout: c:* holds singleton config records, n:proposal the id
// counter, p:<id> proposal records, a:<id> the active-proposal index,
// e:<id> event records and o:<organizer><created> the organizer index.
var (
	configKey  = []byte("c:multisig")
	walletKey  = []byte("c:wallet")
	feeKey     = []byte("c:fee")
	counterKey = []byte("n:proposal")

	proposalPrefix  = []byte("p:")
	activePrefix    = []byte("a:")
	eventPrefix     = []byte("e:")
	organizerPrefix = []byte("o:")
)

func saveConfig(txn *badger.Txn, cfg *Config) error {
	e := badger.NewEntry(configKey, g.Must(json.Marshal(cfg)))
	return txn.SetEntry(e)
}

func findConfig(txn *badger.Txn) (*Config, error) {
	item, err := txn.Get(configKey)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotInitialized
		}

		return nil, err
	}

	var cfg Config
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &cfg)
	}); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func saveWallet(txn *badger.Txn, wallet *Wallet) error {
	e := badger.NewEntry(walletKey, g.Must(json.Marshal(wallet)))
	return txn.SetEntry(e)
}

func findWallet(txn *badger.Txn) (*Wallet, error) {
	item, err := txn.Get(walletKey)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotInitialized
		}

		return nil, err
	}

	var wallet Wallet
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &wallet)
	}); err != nil {
		return nil, err
	}

	return &wallet, nil
}

func saveFee(txn *badger.Txn, bps int) error {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(bps))
	return txn.SetEntry(badger.NewEntry(feeKey, b))
}

func findFee(txn *badger.Txn) (int, error) {
	item, err := txn.Get(feeKey)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return 0, ErrNotInitialized
		}

		return 0, err
	}

	var bps int
	if err := item.Value(func(val []byte) error {
		bps = int(binary.BigEndian.Uint64(val))
		return nil
	}); err != nil {
		return 0, err
	}

	return bps, nil
}

// nextProposalID returns a strictly increasing identifier starting at 1.
// The bump only survives if the surrounding transaction commits, so ids
// are never burned by failed calls and never reused.
func nextProposalID(txn *badger.Txn) (uint64, error) {
	var id uint64

	item, err := txn.Get(counterKey)
	switch {
	case err == nil:
		if err := item.Value(func(val []byte) error {
			id = binary.BigEndian.Uint64(val)
			return nil
		}); err != nil {
			return 0, err
		}
	case errors.Is(err, badger.ErrKeyNotFound):
	default:
		return 0, err
	}

	id++

	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	if err := txn.SetEntry(badger.NewEntry(counterKey, b)); err != nil {
		return 0, err
	}

	return id, nil
}

func saveProposal(txn *badger.Txn, p *Proposal) error {
	e := badger.NewEntry(proposalKey(p.ID), g.Must(json.Marshal(p)))
	return txn.SetEntry(e)
}

func findProposal(txn *badger.Txn, id uint64) (*Proposal, error) {
	item, err := txn.Get(proposalKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrProposalNotFound
		}

		return nil, err
	}

	var p Proposal
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &p)
	}); err != nil {
		return nil, err
	}

	return &p, nil
}

func addActiveProposal(txn *badger.Txn, id uint64) error {
	return txn.SetEntry(badger.NewEntry(activeKey(id), nil))
}

func removeActiveProposal(txn *badger.Txn, id uint64) error {
	return txn.Delete(activeKey(id))
}

// listActiveProposals returns ids of proposals not yet executed, in
// ascending order. Expired proposals stay listed; expiry is evaluated
// lazily where it matters.
func listActiveProposals(txn *badger.Txn) ([]uint64, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []uint64
	for it.Seek(activePrefix); it.ValidForPrefix(activePrefix); it.Next() {
		id, err := decodeActiveKey(it.Item().Key())
		if err != nil {
			return nil, err
		}

		ids = append(ids, id)
	}

	return ids, nil
}

func saveEvent(txn *badger.Txn, ev *EventInfo) error {
	e := badger.NewEntry(eventKey(ev.ID), g.Must(json.Marshal(ev)))
	return txn.SetEntry(e)
}

func findEvent(txn *badger.Txn, id string) (*EventInfo, error) {
	item, err := txn.Get(eventKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrEventNotFound
		}

		return nil, err
	}

	var ev EventInfo
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &ev)
	}); err != nil {
		return nil, err
	}

	return &ev, nil
}

func eventExists(txn *badger.Txn, id string) (bool, error) {
	_, err := txn.Get(eventKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return false, nil
		}

		return false, err
	}

	return true, nil
}

func indexOrganizerEvent(txn *badger.Txn, ev *EventInfo) error {
	pk := organizerKey(uuid.MustParse(ev.Organizer), ev.CreatedAt)
	return txn.SetEntry(badger.NewEntry(pk, []byte(ev.ID)))
}

func listOrganizerEvents(txn *badger.Txn, organizer string) ([]string, error) {
	prefix := organizerScanPrefix(uuid.MustParse(organizer))

	opts := badger.DefaultIteratorOptions
	opts.PrefetchSize = 10
	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := it.Item().Value(func(val []byte) error {
			ids = append(ids, string(val))
			return nil
		}); err != nil {
			return nil, err
		}
	}

	return ids, nil
}
