package reqstats_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jroosing/hydrareq/internal/reqstats"
)

func TestRecordSend(t *testing.T) {
	s := reqstats.New()
	s.RecordSend(false)
	s.RecordSend(true)
	s.RecordSend(true)

	snap := s.Snapshot()
	assert.EqualValues(t, 3, snap.Sent)
	assert.EqualValues(t, 2, snap.Retransmitted)
}

func TestRecordOutcome(t *testing.T) {
	s := reqstats.New()
	s.RecordOutcome("success", int64(10*1e6))
	s.RecordOutcome("success", int64(20*1e6))
	s.RecordOutcome("timeout", 0)
	s.RecordOutcome("canceled", 0)
	s.RecordOutcome("blackholed", 0)
	s.RecordOutcome("rate-limited", 0)
	s.RecordOutcome("formerr", 0)
	s.RecordOutcome("shutting-down", 0) // unrecognized result is ignored

	snap := s.Snapshot()
	assert.EqualValues(t, 2, snap.Succeeded)
	assert.EqualValues(t, 1, snap.TimedOut)
	assert.EqualValues(t, 1, snap.Canceled)
	assert.EqualValues(t, 1, snap.Blackholed)
	assert.EqualValues(t, 1, snap.RateLimited)
	assert.EqualValues(t, 1, snap.FormErr)
	assert.InDelta(t, 15.0, snap.AvgLatencyMs, 0.01)
}

func TestSnapshotIncludesHostMemory(t *testing.T) {
	s := reqstats.New()
	snap := s.Snapshot()
	assert.GreaterOrEqual(t, snap.HostMemTotalMB, 0.0)
}
