package badgerstore

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Key layout. Task records sort by raw UUID bytes, which for the
// time-ordered IDs used here is submission order. Ready index entries
// sort by (ReadyAt, ID), so iterating the prefix visits the oldest
// claimable task first.
//
//	task:<16-byte id>                   -> encoded task record
//	ready:<8-byte big-endian ns><16-byte id> -> empty
//	meta                                -> encoded metadata record
var (
	taskPrefix  = []byte("task:")
	readyPrefix = []byte("ready:")
	metaKey     = []byte("meta")
)

func taskKey(id uuid.UUID) []byte {
	key := make([]byte, 0, len(taskPrefix)+16)
	key = append(key, taskPrefix...)
	return append(key, id[:]...)
}

func readyKey(readyAt time.Time, id uuid.UUID) []byte {
	key := make([]byte, 0, len(readyPrefix)+8+16)
	key = append(key, readyPrefix...)
	key = binary.BigEndian.AppendUint64(key, uint64(readyAt.UnixNano()))
	return append(key, id[:]...)
}

// parseReadyKey recovers the ready time and task ID from an index key.
func parseReadyKey(key []byte) (time.Time, uuid.UUID, error) {
	if len(key) != len(readyPrefix)+8+16 {
		return time.Time{}, uuid.Nil, fmt.Errorf("malformed ready key of length %d", len(key))
	}
	rest := key[len(readyPrefix):]
	nanos := binary.BigEndian.Uint64(rest[:8])

	id, err := uuid.FromBytes(rest[8:])
	if err != nil {
		return time.Time{}, uuid.Nil, fmt.Errorf("malformed ready key ID: %w", err)
	}
	return time.Unix(0, int64(nanos)).UTC(), id, nil
}
