package window

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/swarmstep/swarmstep/internal/cache"
	"github.com/swarmstep/swarmstep/internal/catalog"
	"github.com/swarmstep/swarmstep/internal/wire"
	metrics "github.com/swarmstep/swarmstep/pkg/observability"
	"github.com/swarmstep/swarmstep/pkg/security"
)

// wholeRecordAttr is the cache-key sentinel for "the entire public
// sub-record", since a remote fetch retrieves the whole record in one
// round trip rather than one attribute at a time.
const wholeRecordAttr = catalog.Attribute(^uint64(0))

// PeerDialer resolves a master id to the stub used to call its PeerService.
// internal/cluster.Cluster satisfies this; tests supply fakes.
type PeerDialer interface {
	Peer(catalog.MasterID) (wire.PeerServiceClient, error)
}

// OwnerFunc reports which master currently owns a given global id.
type OwnerFunc func(catalog.GlobalID) (catalog.MasterID, bool)

// Public is one master's view of the public attribute window: the
// sub-records it owns and exposes to remote readers, plus a per-step cache
// of records fetched from peers.
type Public struct {
	epochGuard

	self  catalog.MasterID
	peers PeerDialer
	owner OwnerFunc
	step  *cache.Step

	limiter *security.RateLimiter
	breaker *security.CircuitBreaker

	mu    sync.RWMutex
	local map[catalog.GlobalID][]byte
}

// NewPublic creates a Public window for a master. ratePerSecond/burst bound
// the rate of outgoing RMA fetches per peer master; maxFailures/resetAfter
// configure the circuit breaker guarding peer calls.
func NewPublic(self catalog.MasterID, peers PeerDialer, owner OwnerFunc, step *cache.Step, ratePerSecond float64, burst int, maxFailures int, resetAfter time.Duration) *Public {
	return &Public{
		self:    self,
		peers:   peers,
		owner:   owner,
		step:    step,
		limiter: security.NewRateLimiter(ratePerSecond, burst),
		breaker: security.NewCircuitBreaker(maxFailures, resetAfter),
		local:   make(map[catalog.GlobalID][]byte),
	}
}

// BeginReadEpoch opens the window for remote fetches, for the duration of
// ExchangeInteractions/RunBehaviors.
func (p *Public) BeginReadEpoch() error { return p.beginRead() }

// EndReadEpoch closes the read epoch.
func (p *Public) EndReadEpoch() error { return p.endRead() }

// BeginWriteEpoch opens the window for this master to publish its own
// agents' public sub-records, for the duration of PublishAttributes.
func (p *Public) BeginWriteEpoch() error { return p.beginWrite() }

// EndWriteEpoch closes the write epoch.
func (p *Public) EndWriteEpoch() error { return p.endWrite() }

// Publish sets the public sub-record for a locally owned agent. Only
// permitted during the write epoch.
func (p *Public) Publish(id catalog.GlobalID, data []byte) error {
	if err := p.requireWrite(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	p.local[id] = buf
	return nil
}

// GetLocal serves an incoming GetPublic RPC: it returns this master's
// current public sub-record for id, if id is locally owned. GetLocal is
// callable during the read epoch only, mirroring the discipline a real
// one-sided RMA fence would impose on the exposed window.
func (p *Public) GetLocal(id catalog.GlobalID) ([]byte, bool, error) {
	if err := p.requireRead(); err != nil {
		return nil, false, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	data, ok := p.local[id]
	return data, ok, nil
}

// Fetch returns the public sub-record for id, reading the local copy
// directly if this master owns it, or issuing (at most once per step, per
// P4) a rate-limited, circuit-broken RMA-style RPC to the owning master
// otherwise.
func (p *Public) Fetch(ctx context.Context, id catalog.GlobalID) ([]byte, error) {
	if err := p.requireRead(); err != nil {
		return nil, err
	}

	ownerID, ok := p.owner(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrAgentNotFound, id)
	}
	if ownerID == p.self {
		p.mu.RLock()
		data, found := p.local[id]
		p.mu.RUnlock()
		if !found {
			return nil, fmt.Errorf("%w: %d", ErrAgentNotFound, id)
		}
		return data, nil
	}

	key := cache.Key{Agent: id, Attr: wholeRecordAttr}
	_, hit := p.step.Peek(key)
	metrics.RecordWindowCacheResult(int32(p.self), hit)

	return p.step.Get(key, func() ([]byte, error) {
		return p.fetchRemote(ctx, ownerID, id)
	})
}

func (p *Public) fetchRemote(ctx context.Context, owner catalog.MasterID, id catalog.GlobalID) ([]byte, error) {
	start := time.Now()
	status := "ok"
	defer func() {
		metrics.RecordWindowFetch(int32(p.self), status, time.Since(start))
		metrics.SetCircuitBreakerOpen(int32(p.self), int32(owner), p.breaker.GetState() == security.CircuitOpen)
	}()

	if err := p.limiter.Wait(ctx, strconv.Itoa(int(owner))); err != nil {
		status = "rate_limited"
		return nil, fmt.Errorf("rma rate limit: %w", err)
	}

	var data []byte
	err := p.breaker.Execute(func() error {
		client, err := p.peers.Peer(owner)
		if err != nil {
			return err
		}
		resp, err := client.GetPublic(ctx, &wire.GetPublicRequest{Agent: id})
		if err != nil {
			return err
		}
		if !resp.Found {
			return fmt.Errorf("%w: %d", ErrAgentNotFound, id)
		}
		data = resp.Data
		return nil
	})
	if err != nil {
		status = "error"
		return nil, err
	}
	return data, nil
}

// Forget drops a locally owned agent's public record, e.g. after it dies
// or migrates.
func (p *Public) Forget(id catalog.GlobalID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.local, id)
}

// Allow is re-exported for callers that want to pre-flight a fetch without
// actually invoking it (e.g. metrics sampling).
func (p *Public) Allow(owner catalog.MasterID) bool {
	return p.limiter.Allow(strconv.Itoa(int(owner)))
}
