package timeseries

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeboard/models"
)

func bar(ts string, c float64) models.Bar {
	return models.Bar{Timestamp: ts, Open: c, High: c, Low: c, Close: c}
}

func TestIngestDuplicateReplaces(t *testing.T) {
	r := New(0)
	require.NoError(t, r.Ingest(bar("2021-03-28 04:06:00", 100)))
	require.NoError(t, r.Ingest(bar("2021-03-28 04:06:00", 102)))

	bars := r.Snapshot()
	require.Len(t, bars, 1)
	assert.Equal(t, 102.0, bars[0].Close)
	assert.Equal(t, int64(1), r.Stats().Replaced)
}

func TestIngestOutOfOrder(t *testing.T) {
	r := New(0)
	require.NoError(t, r.Ingest(bar("10:00", 100)))
	require.NoError(t, r.Ingest(bar("10:01", 101)))
	require.NoError(t, r.Ingest(bar("10:00", 102)))

	bars := r.Snapshot()
	require.Len(t, bars, 2)
	assert.Equal(t, "10:00", bars[0].Timestamp)
	assert.Equal(t, 102.0, bars[0].Close)
	assert.Equal(t, "10:01", bars[1].Timestamp)
	assert.Equal(t, 101.0, bars[1].Close)
}

func TestIngestReplacesHistoricalBar(t *testing.T) {
	r := New(0)
	for _, ts := range []string{"10:00", "10:01", "10:02", "10:03"} {
		require.NoError(t, r.Ingest(bar(ts, 1)))
	}
	require.NoError(t, r.Ingest(bar("10:01", 7)))

	bars := r.Snapshot()
	require.Len(t, bars, 4)
	assert.Equal(t, 7.0, bars[1].Close)
}

func TestIngestShuffledStaysSortedAndUnique(t *testing.T) {
	stamps := []string{
		"2021-03-28 04:00:00", "2021-03-28 04:01:00", "2021-03-28 04:02:00",
		"2021-03-28 04:03:00", "2021-03-28 04:04:00", "2021-03-28 04:05:00",
		"2021-03-28 04:06:00", "2021-03-28 04:07:00",
	}
	var input []string
	input = append(input, stamps...)
	input = append(input, stamps[2], stamps[5], stamps[0])

	rng := rand.New(rand.NewSource(42))
	rng.Shuffle(len(input), func(i, j int) { input[i], input[j] = input[j], input[i] })

	r := New(0)
	for i, ts := range input {
		require.NoError(t, r.Ingest(bar(ts, float64(i))))
	}

	bars := r.Snapshot()
	require.Len(t, bars, len(stamps))
	for i := range bars {
		assert.Equal(t, stamps[i], bars[i].Timestamp)
	}
}

func TestIngestEquivalentTimestampSpellings(t *testing.T) {
	r := New(0)
	require.NoError(t, r.Ingest(bar("2021-03-28 04:06:00", 1)))
	require.NoError(t, r.Ingest(bar("2021-03-28T04:06:00Z", 2)))

	bars := r.Snapshot()
	require.Len(t, bars, 1)
	assert.Equal(t, 2.0, bars[0].Close)
}

func TestIngestRejectsBadTimestamp(t *testing.T) {
	r := New(0)
	assert.Error(t, r.Ingest(bar("soon", 1)))
	assert.Zero(t, r.Len())
}

func TestMaxBarsDropsOldest(t *testing.T) {
	r := New(2)
	for _, ts := range []string{"10:02", "10:00", "10:01", "10:03"} {
		require.NoError(t, r.Ingest(bar(ts, 1)))
	}
	bars := r.Snapshot()
	require.Len(t, bars, 2)
	assert.Equal(t, "10:02", bars[0].Timestamp)
	assert.Equal(t, "10:03", bars[1].Timestamp)
}

func TestSnapshotIsCopy(t *testing.T) {
	r := New(0)
	require.NoError(t, r.Ingest(bar("10:00", 1)))
	snap := r.Snapshot()
	snap[0].Close = 99
	assert.Equal(t, 1.0, r.Snapshot()[0].Close)
}
