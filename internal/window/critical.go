package window

import (
	"context"
	"sync"

	"github.com/swarmstep/swarmstep/internal/catalog"
	"github.com/swarmstep/swarmstep/internal/wire"
)

// Critical is one master's full replica of every agent's critical
// sub-record, per I3: critical attributes are never fetched on demand,
// only eagerly broadcast whenever they change, so every master's replica
// is complete.
//
// Updates are staged rather than applied in place: PublishAttributes
// stages each changed critical sub-record inside a write epoch, and the
// staged records become visible to reads (local and remote) only after
// Apply runs at the end of that phase. This mirrors the original design's
// updated_critical_attributes_ staging buffer.
type Critical struct {
	epochGuard

	self  catalog.MasterID
	peers PeerDialer

	mu      sync.RWMutex
	records map[catalog.GlobalID][]byte
	staged  map[catalog.GlobalID][]byte
}

// NewCritical creates an empty Critical window.
func NewCritical(self catalog.MasterID, peers PeerDialer) *Critical {
	return &Critical{
		self:    self,
		peers:   peers,
		records: make(map[catalog.GlobalID][]byte),
		staged:  make(map[catalog.GlobalID][]byte),
	}
}

// Get returns the last-published critical sub-record for id, from this
// master's full replica.
func (c *Critical) Get(id catalog.GlobalID) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.records[id]
	return data, ok
}

// BeginWriteEpoch opens the critical window for staging, bracketing the
// publication phase (I7). Stage calls outside an open write epoch fail
// with ErrWrongEpoch.
func (c *Critical) BeginWriteEpoch() error { return c.beginWrite() }

// EndWriteEpoch closes the write epoch opened by BeginWriteEpoch.
func (c *Critical) EndWriteEpoch() error { return c.endWrite() }

// Stage buffers a critical attribute update for id, made during
// PublishAttributes inside an open write epoch. It does not become
// visible until Apply runs.
func (c *Critical) Stage(id catalog.GlobalID, data []byte) error {
	if err := c.requireWrite(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	c.staged[id] = buf
	return nil
}

// Bootstrap seeds the replica directly (used during partitioning, before
// any step has run, to install the initial critical records of every
// agent in the cluster).
func (c *Critical) Bootstrap(id catalog.GlobalID, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	c.records[id] = buf
}

// ApplyRemote installs a critical record pushed by its owning master via
// PutCritical. It is always applied immediately: the sender has already
// passed through its own Apply.
func (c *Critical) ApplyRemote(id catalog.GlobalID, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	c.records[id] = buf
}

// Apply promotes every staged update into the local replica and
// broadcasts it to every peer master via PutCritical, per the
// eager-publish discipline of I3. It clears the staging buffer on return.
func (c *Critical) Apply(ctx context.Context, step catalog.Time) error {
	c.mu.Lock()
	staged := c.staged
	c.staged = make(map[catalog.GlobalID][]byte, len(staged))
	for id, data := range staged {
		c.records[id] = data
	}
	c.mu.Unlock()

	if len(staged) == 0 {
		return nil
	}

	var firstErr error
	for _, masterID := range peerMasters(c.peers) {
		client, err := c.peers.Peer(masterID)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for id, data := range staged {
			if _, err := client.PutCritical(ctx, &wire.PutCriticalRequest{
				Agent: id,
				Step:  step,
				Data:  data,
			}); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// masterLister is implemented by internal/cluster.Cluster; kept narrow so
// the window package does not need to import cluster.
type masterLister interface {
	Masters() []catalog.MasterID
}

func peerMasters(peers PeerDialer) []catalog.MasterID {
	if lister, ok := peers.(masterLister); ok {
		return lister.Masters()
	}
	return nil
}
