package badgerstore

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadyKeyOrdering(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	idA := uuid.MustParse("018f0000-0000-7000-8000-000000000001")
	idB := uuid.MustParse("018f0000-0000-7000-8000-000000000002")

	earlier := readyKey(base, idA)
	later := readyKey(base.Add(time.Nanosecond), idA)
	assert.Negative(t, bytes.Compare(earlier, later),
		"an earlier ready time must sort first")

	tieA := readyKey(base, idA)
	tieB := readyKey(base, idB)
	assert.Negative(t, bytes.Compare(tieA, tieB),
		"equal ready times must fall back to ID order")
}

func TestReadyKeyRoundTrip(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 6, 1, 12, 30, 15, 123456789, time.UTC)
	id := uuid.New()

	gotAt, gotID, err := parseReadyKey(readyKey(at, id))
	require.NoError(t, err)
	assert.True(t, gotAt.Equal(at))
	assert.Equal(t, id, gotID)
}

func TestParseReadyKeyMalformed(t *testing.T) {
	t.Parallel()

	_, _, err := parseReadyKey([]byte("ready:short"))
	assert.Error(t, err)

	_, _, err = parseReadyKey(nil)
	assert.Error(t, err)
}

func TestTaskKeySortsByID(t *testing.T) {
	t.Parallel()

	// Time-ordered UUIDs make raw key order submission order.
	first := uuid.MustParse("018f0000-0000-7000-8000-000000000001")
	second := uuid.MustParse("018f0000-0001-7000-8000-000000000000")
	assert.Negative(t, bytes.Compare(taskKey(first), taskKey(second)))
}
