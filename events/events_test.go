package events

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_PopulatesFields(t *testing.T) {
	now := time.Now()
	evt := New(now, TypeBlock, SeveritySuccess, "New block at height 5", map[string]interface{}{"height": 5})

	assert.NotEmpty(t, evt.ID, "Events should get an identifier")
	assert.Equal(t, now, evt.Time)
	assert.Equal(t, TypeBlock, evt.Type)
	assert.Equal(t, SeveritySuccess, evt.Severity)
	assert.Equal(t, "New block at height 5", evt.Message)
	assert.Equal(t, 5, evt.Metadata["height"])
}

func TestLog_NewestFirst(t *testing.T) {
	log := NewLog(10)
	now := time.Now()

	log.Append(New(now, TypeTx, SeverityInfo, "first", nil))
	log.Append(New(now, TypeTx, SeverityInfo, "second", nil))
	log.Append(New(now, TypeTx, SeverityInfo, "third", nil))

	entries := log.Snapshot()
	require.Len(t, entries, 3)
	assert.Equal(t, "third", entries[0].Message, "Latest event should lead")
	assert.Equal(t, "second", entries[1].Message)
	assert.Equal(t, "first", entries[2].Message)
}

func TestLog_EvictsOldestBeyondCapacity(t *testing.T) {
	log := NewLog(DefaultCapacity)
	now := time.Now()

	for i := 0; i < DefaultCapacity+1; i++ {
		log.Append(New(now, TypeSystem, SeverityInfo, fmt.Sprintf("event-%d", i), nil))
	}

	entries := log.Snapshot()
	require.Len(t, entries, DefaultCapacity, "Capacity bound must hold after 201 inserts")
	assert.Equal(t, fmt.Sprintf("event-%d", DefaultCapacity), entries[0].Message, "Newest event should lead")
	assert.Equal(t, "event-1", entries[len(entries)-1].Message, "The oldest original event should be evicted")
}

func TestLog_BatchAppendKeepsOrder(t *testing.T) {
	log := NewLog(10)
	now := time.Now()

	log.Append(
		New(now, TypeTx, SeverityInfo, "older", nil),
		New(now, TypeTx, SeverityInfo, "newer", nil),
	)

	entries := log.Snapshot()
	require.Len(t, entries, 2)
	assert.Equal(t, "newer", entries[0].Message)
	assert.Equal(t, "older", entries[1].Message)
}

func TestLog_SnapshotIsACopy(t *testing.T) {
	log := NewLog(10)
	log.Append(New(time.Now(), TypeTx, SeverityInfo, "only", nil))

	entries := log.Snapshot()
	entries[0].Message = "mutated"

	assert.Equal(t, "only", log.Snapshot()[0].Message, "Snapshot mutation must not reach the log")
}

func TestLog_DefaultCapacityFallback(t *testing.T) {
	log := NewLog(0)
	for i := 0; i < DefaultCapacity+50; i++ {
		log.Append(New(time.Now(), TypeTx, SeverityInfo, "x", nil))
	}
	assert.Equal(t, DefaultCapacity, log.Len())
}
