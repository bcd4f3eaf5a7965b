package metrics

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"faultctl/internal/model"
	"faultctl/internal/node"
)

// fakeNode answers getblockchaininfo with an incrementing height and
// getpeerinfo with a fixed single peer.
type fakeNode struct {
	mu     sync.Mutex
	height int
	fail   bool
}

func (f *fakeNode) CLI(dataDir, command string, opts node.CLIOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", errors.New("couldn't connect to server")
	}
	switch command {
	case "getblockchaininfo":
		f.height++
		return fmt.Sprintf(`{"chain":"regtest","blocks":%d,"headers":%d}`, f.height, f.height), nil
	case "getpeerinfo":
		return `[{"id":1,"addr":"127.0.0.1:18444","inbound":false}]`, nil
	}
	return "", fmt.Errorf("unexpected command %q", command)
}

func (f *fakeNode) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func TestCollector_SamplesAndSummarizes(t *testing.T) {
	t.Parallel()

	c := NewCollector(zaptest.NewLogger(t))
	fn := &fakeNode{}

	c.Start("victim", "/tmp/dd", fn, 20*time.Millisecond, 18446)
	time.Sleep(90 * time.Millisecond)
	c.Stop("victim")

	snaps := c.Snapshots("victim")
	require.GreaterOrEqual(t, len(snaps), 2)

	// Heights increment once per successful sample.
	summary := c.Summary("victim")
	assert.Equal(t, len(snaps), summary.TotalSnapshots)
	assert.Equal(t, 1, summary.InitialBlockCount)
	assert.Equal(t, len(snaps), summary.FinalBlockCount)
	assert.Equal(t, len(snaps)-1, summary.BlocksSynced)
	assert.Equal(t, 1.0, summary.AvgPeerCount)
	assert.Equal(t, 1, summary.MaxPeerCount)

	for i := 1; i < len(snaps); i++ {
		assert.False(t, snaps[i].Timestamp.Before(snaps[i-1].Timestamp),
			"timestamps must be non-decreasing")
	}
}

func TestCollector_DuplicateStartIsNoOp(t *testing.T) {
	t.Parallel()

	c := NewCollector(zaptest.NewLogger(t))
	fn := &fakeNode{}

	c.Start("victim", "/tmp/dd", fn, time.Hour, 0)
	c.Start("victim", "/tmp/dd", fn, time.Hour, 0)
	require.True(t, c.Active("victim"))

	c.Stop("victim")
	require.False(t, c.Active("victim"), "one Stop must clear the single session")
}

func TestCollector_StopUnknownIsNoOp(t *testing.T) {
	t.Parallel()

	c := NewCollector(zaptest.NewLogger(t))
	c.Stop("nobody")
	c.StopAll()
}

func TestCollector_StopHaltsSampling(t *testing.T) {
	t.Parallel()

	c := NewCollector(zaptest.NewLogger(t))
	fn := &fakeNode{}

	c.Start("victim", "/tmp/dd", fn, 10*time.Millisecond, 0)
	time.Sleep(50 * time.Millisecond)
	c.Stop("victim")

	before := len(c.Snapshots("victim"))
	require.Positive(t, before)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, before, len(c.Snapshots("victim")),
		"no snapshots may be appended after Stop")
}

func TestCollector_FailedSampleAppendsNothing(t *testing.T) {
	t.Parallel()

	c := NewCollector(zaptest.NewLogger(t))
	fn := &fakeNode{}
	fn.setFail(true)

	c.Start("victim", "/tmp/dd", fn, 10*time.Millisecond, 0)
	time.Sleep(50 * time.Millisecond)
	c.Stop("victim")

	require.Empty(t, c.Snapshots("victim"), "failed cycles must not produce snapshots")
}

func TestCollector_DataSurvivesStop(t *testing.T) {
	t.Parallel()

	c := NewCollector(zaptest.NewLogger(t))
	fn := &fakeNode{}

	c.Start("victim", "/tmp/dd", fn, 10*time.Millisecond, 0)
	time.Sleep(40 * time.Millisecond)
	c.StopAll()

	require.Positive(t, c.Summary("victim").TotalSnapshots)
}

func TestSummary_UnknownNodeIsZeroValue(t *testing.T) {
	t.Parallel()

	c := NewCollector(zaptest.NewLogger(t))
	require.Equal(t, model.Summary{}, c.Summary("nobody"))
}

func TestSummarize_KnownValues(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	snaps := []model.Snapshot{
		{
			Timestamp: base,
			NodeName:  "victim",
			Chain:     model.ChainInfo{Blocks: 100},
			Peers:     []model.Peer{{ID: 1}},
		},
		{
			Timestamp: base.Add(10 * time.Second),
			NodeName:  "victim",
			Chain:     model.ChainInfo{Blocks: 101},
			Peers:     []model.Peer{{ID: 1}, {ID: 2}, {ID: 3}},
		},
	}

	s := Summarize(snaps)
	assert.Equal(t, 2, s.TotalSnapshots)
	assert.Equal(t, base, s.FirstSnapshot)
	assert.Equal(t, base.Add(10*time.Second), s.LastSnapshot)
	assert.Equal(t, 100, s.InitialBlockCount)
	assert.Equal(t, 101, s.FinalBlockCount)
	assert.Equal(t, 1, s.BlocksSynced)
	assert.Equal(t, 2.0, s.AvgPeerCount)
	assert.Equal(t, 3, s.MaxPeerCount)
}

func TestSummarize_Empty(t *testing.T) {
	t.Parallel()

	require.Equal(t, model.Summary{}, Summarize(nil))
}

func TestCollector_RestartAfterStop(t *testing.T) {
	t.Parallel()

	c := NewCollector(zaptest.NewLogger(t))
	fn := &fakeNode{}

	c.Start("victim", "/tmp/dd", fn, 10*time.Millisecond, 0)
	time.Sleep(30 * time.Millisecond)
	c.Stop("victim")

	// A fresh session resets the stored snapshots.
	c.Start("victim", "/tmp/dd", fn, time.Hour, 0)
	defer c.StopAll()
	require.LessOrEqual(t, len(c.Snapshots("victim")), 1)
}
