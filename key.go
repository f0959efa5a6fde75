package registry

import (
	"bytes"
	"time"

	"github.com/google/uuid"
	"github.com/pandodao/mtg/mtgpack"
)

// Composite keys are mtgpack-encoded so that under a fixed-width prefix
// they sort in encoding order: proposal ids ascending, organizer events
// by registration time.
func encodeKey(prefix []byte, values ...any) []byte {
	enc := mtgpack.NewEncoder()
	if err := enc.EncodeValues(values...); err != nil {
		panic(err)
	}

	return append(prefix, enc.Bytes()...)
}

func proposalKey(id uint64) []byte {
	return encodeKey(proposalPrefix, int64(id))
}

func activeKey(id uint64) []byte {
	return encodeKey(activePrefix, int64(id))
}

func decodeActiveKey(key []byte) (uint64, error) {
	dec := mtgpack.NewDecoder(bytes.TrimPrefix(key, activePrefix))

	var id int64
	if err := dec.DecodeValues(&id); err != nil {
		return 0, err
	}

	return uint64(id), nil
}

func eventKey(id string) []byte {
	key := make([]byte, 0, len(eventPrefix)+len(id))
	return append(append(key, eventPrefix...), id...)
}

func organizerKey(organizer uuid.UUID, createdAt time.Time) []byte {
	return encodeKey(organizerPrefix, organizer, createdAt.UnixNano())
}

func organizerScanPrefix(organizer uuid.UUID) []byte {
	return encodeKey(organizerPrefix, organizer)
}
