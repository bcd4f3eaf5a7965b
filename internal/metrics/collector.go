// Package metrics samples chain state and peer lists from running nodes,
// one background loop per node, and turns the collected snapshots into
// summaries and JSON exports.
package metrics

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"faultctl/internal/model"
	"faultctl/internal/node"
)

// joinTimeout caps how long Stop waits for a sampling loop to exit.
const joinTimeout = 5 * time.Second

// CommandInterface is the slice of the node manager the collector needs:
// one CLI call against a node. *node.Manager satisfies it.
type CommandInterface interface {
	CLI(dataDir, command string, opts node.CLIOptions) (string, error)
}

type session struct {
	nodeName string
	dataDir  string
	rpcPort  int
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// Collector owns the sampling sessions. Session bookkeeping and snapshot
// data live behind separate locks: Stop drops the session but the data
// stays retrievable until the caller saves or discards it.
type Collector struct {
	log *zap.Logger

	mu       sync.Mutex
	sessions map[string]*session

	dataMu sync.Mutex
	data   map[string][]model.Snapshot
}

func NewCollector(log *zap.Logger) *Collector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Collector{
		log:      log,
		sessions: make(map[string]*session),
		data:     make(map[string][]model.Snapshot),
	}
}

// Start begins sampling nodeName every interval. A second Start for a name
// with a live session is a logged no-op. Start returns immediately; the
// sampling loop runs in its own goroutine.
func (c *Collector) Start(nodeName, dataDir string, iface CommandInterface, interval time.Duration, rpcPort int) {
	c.mu.Lock()
	if _, ok := c.sessions[nodeName]; ok {
		c.mu.Unlock()
		c.log.Warn("metrics collection already running", zap.String("node", nodeName))
		return
	}
	s := &session{
		nodeName: nodeName,
		dataDir:  dataDir,
		rpcPort:  rpcPort,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	c.sessions[nodeName] = s
	c.mu.Unlock()

	c.dataMu.Lock()
	c.data[nodeName] = nil
	c.dataMu.Unlock()

	c.log.Info("starting metrics collection",
		zap.String("node", nodeName),
		zap.Duration("interval", interval))
	go c.loop(s, iface)
}

// Stop signals nodeName's sampling loop, waits up to joinTimeout for it to
// exit and drops the session. Stopping an unknown name is a logged no-op.
func (c *Collector) Stop(nodeName string) {
	c.mu.Lock()
	s, ok := c.sessions[nodeName]
	if !ok {
		c.mu.Unlock()
		c.log.Warn("no metrics collection running", zap.String("node", nodeName))
		return
	}
	delete(c.sessions, nodeName)
	c.mu.Unlock()

	c.log.Info("stopping metrics collection", zap.String("node", nodeName))
	close(s.stop)
	select {
	case <-s.done:
	case <-time.After(joinTimeout):
		c.log.Warn("metrics loop did not stop within join timeout",
			zap.String("node", nodeName))
	}
	c.log.Debug("metrics collection stopped", zap.String("node", nodeName))
}

// StopAll stops every active session. Safe with none active.
func (c *Collector) StopAll() {
	c.mu.Lock()
	names := make([]string, 0, len(c.sessions))
	for name := range c.sessions {
		names = append(names, name)
	}
	c.mu.Unlock()

	if len(names) > 0 {
		c.log.Info("stopping all metrics collection", zap.Int("sessions", len(names)))
	}
	for _, name := range names {
		c.Stop(name)
	}
}

// Active reports whether a sampling session exists for nodeName.
func (c *Collector) Active(nodeName string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.sessions[nodeName]
	return ok
}

// Snapshots returns a copy of the snapshots collected for nodeName.
func (c *Collector) Snapshots(nodeName string) []model.Snapshot {
	c.dataMu.Lock()
	defer c.dataMu.Unlock()
	snaps := c.data[nodeName]
	out := make([]model.Snapshot, len(snaps))
	copy(out, snaps)
	return out
}

// Summary computes aggregate statistics for nodeName's snapshots. Unknown
// names yield a zero-value summary.
func (c *Collector) Summary(nodeName string) model.Summary {
	return Summarize(c.Snapshots(nodeName))
}

func (c *Collector) loop(s *session, iface CommandInterface) {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		if snap, ok := c.sample(s, iface); ok {
			c.dataMu.Lock()
			c.data[s.nodeName] = append(c.data[s.nodeName], snap)
			c.dataMu.Unlock()
			c.log.Debug("collected snapshot",
				zap.String("node", s.nodeName),
				zap.Int("blocks", snap.Chain.Blocks),
				zap.Int("peers", len(snap.Peers)))
		}

		select {
		case <-s.stop:
			return
		case <-time.After(s.interval):
		}
	}
}

// sample queries the node once. Any failure means a skipped cycle, never a
// partial snapshot: the node may simply not be ready yet.
func (c *Collector) sample(s *session, iface CommandInterface) (model.Snapshot, bool) {
	snap := model.Snapshot{
		Timestamp: time.Now().UTC(),
		NodeName:  s.nodeName,
	}

	out, err := iface.CLI(s.dataDir, "getblockchaininfo", node.CLIOptions{RPCPort: s.rpcPort})
	if err != nil {
		c.log.Debug("sample skipped, chain info unavailable",
			zap.String("node", s.nodeName), zap.Error(err))
		return model.Snapshot{}, false
	}
	if err := json.Unmarshal([]byte(out), &snap.Chain); err != nil {
		c.log.Debug("sample skipped, chain info unparsable",
			zap.String("node", s.nodeName), zap.Error(err))
		return model.Snapshot{}, false
	}

	out, err = iface.CLI(s.dataDir, "getpeerinfo", node.CLIOptions{RPCPort: s.rpcPort})
	if err != nil {
		c.log.Debug("sample skipped, peer info unavailable",
			zap.String("node", s.nodeName), zap.Error(err))
		return model.Snapshot{}, false
	}
	if err := json.Unmarshal([]byte(out), &snap.Peers); err != nil {
		c.log.Debug("sample skipped, peer info unparsable",
			zap.String("node", s.nodeName), zap.Error(err))
		return model.Snapshot{}, false
	}

	return snap, true
}
