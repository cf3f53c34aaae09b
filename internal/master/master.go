// Package master implements the per-peer state machine of a swarmstep
// run: the fixed five-phase step pipeline of §4.6
// (Synchronize/Distribute/PublishAttributes/ExchangeInteractions/
// RunBehaviors), the gRPC server every master exposes to every other
// master, and the wiring between internal/window, internal/cache,
// internal/handler, internal/interaction, internal/partition and the
// agent package that realizes it.
package master

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"

	publicAgent "github.com/swarmstep/swarmstep/agent"
	"github.com/swarmstep/swarmstep/internal/cache"
	"github.com/swarmstep/swarmstep/internal/catalog"
	"github.com/swarmstep/swarmstep/internal/handler"
	"github.com/swarmstep/swarmstep/internal/interaction"
	"github.com/swarmstep/swarmstep/internal/partition"
	"github.com/swarmstep/swarmstep/internal/wire"
	"github.com/swarmstep/swarmstep/internal/window"
	"github.com/swarmstep/swarmstep/pkg/snapshot"
)

// ErrAlreadyStarted is returned by Start when the master's gRPC server is
// already serving.
var ErrAlreadyStarted = errors.New("master: already started")

// PeerDialer resolves a master id to its PeerService stub and lists every
// peer master in the run, excluding self. internal/cluster.Cluster
// satisfies this directly.
type PeerDialer interface {
	Peer(catalog.MasterID) (wire.PeerServiceClient, error)
	Masters() []catalog.MasterID
}

// ControlSink receives control-plane opcodes broadcast by the
// coordinator, dispatched through the same peer gRPC fabric Synchronize
// and the window RMA calls use. internal/control.Follower implements
// this; it is optional, since a master can run its fixed step pipeline
// without ever being told to by a coordinator (e.g. in tests).
type ControlSink interface {
	HandleOpcode(ctx context.Context, op wire.Opcode, payload []byte) error
}

// ExportSink serializes this master's locally owned agents on a
// GatherExport request. pkg/snapshot implements this; nil is valid and
// answers every GatherExport with an empty document.
type ExportSink interface {
	Export(ctx context.Context, step catalog.Time) ([]byte, error)
}

// Config bundles a Master's fixed construction parameters.
type Config struct {
	Self       catalog.MasterID
	NbMasters  int
	Catalog    *catalog.Catalog
	Peers      PeerDialer
	ListenAddr string

	// Groups is the number of handler.Pool worker groups this master
	// fans its agents out across each step. Defaults to 1 if <= 0;
	// cmd/swarmstep-node sizes this from runtime.NumCPU() (§4.4).
	Groups int

	// RateLimit/Burst/MaxFailures/ResetAfter configure the public
	// window's RMA fetch guards (internal/window.NewPublic).
	RateLimit      float64
	Burst          int
	MaxFailures    int
	ResetAfterSecs float64
}

// Master is one peer process's runtime state: its share of the agent
// population, the two attribute windows, the per-step cache, the
// handler pool, the interaction router/outbox, the partition table, and
// the gRPC server every other master's Cluster dials into.
//
// Master implements wire.PeerServiceServer in full; Start registers it as
// the PeerService of the gRPC server it opens.
type Master struct {
	self      catalog.MasterID
	nbMasters int
	cat       *catalog.Catalog
	peers     PeerDialer

	table    *partition.Table
	registry publicAgent.Registry
	public   *window.Public
	critical *window.Critical
	step     *cache.Step
	pool     *handler.Pool
	outbox   *interaction.Outbox
	router   *interaction.Router

	barriers *barrierTable

	controlSink ControlSink
	exportSink  ExportSink

	curStep uint64 // atomic; catalog.Time of the step about to run

	listenAddr string
	mu         sync.Mutex
	server     *grpc.Server
	listener   net.Listener
}

// New constructs a Master wired with fresh windows, cache, pool, router
// and an empty partition table and agent registry. Call SetControlSink
// and SetExportSink before Start if the run needs a control plane or
// export support.
func New(cfg Config) *Master {
	groups := cfg.Groups
	if groups < 1 {
		groups = 1
	}

	table := partition.New(cfg.Catalog, cfg.Self)
	registry := publicAgent.NewLocalRegistry()

	m := &Master{
		self:       cfg.Self,
		nbMasters:  cfg.NbMasters,
		cat:        cfg.Catalog,
		peers:      cfg.Peers,
		table:      table,
		registry:   registry,
		step:       cache.New(),
		pool:       handler.NewPool(groups),
		outbox:     interaction.NewOutbox(),
		router:     interaction.NewRouter(cfg.Self, cfg.Peers),
		barriers:   newBarrierTable(),
		listenAddr: cfg.ListenAddr,
	}
	m.public = window.NewPublic(cfg.Self, cfg.Peers, m.table.Owner, m.step,
		nonZero(cfg.RateLimit, 1000), nonZeroInt(cfg.Burst, 100),
		nonZeroInt(cfg.MaxFailures, 3), durationSecs(nonZero(cfg.ResetAfterSecs, 5)))
	m.critical = window.NewCritical(cfg.Self, cfg.Peers)
	return m
}

// SetControlSink installs the control-plane dispatcher that ControlOpcode
// RPCs are forwarded to.
func (m *Master) SetControlSink(s ControlSink) { m.controlSink = s }

// SetExportSink installs the snapshot serializer that GatherExport RPCs
// are forwarded to.
func (m *Master) SetExportSink(s ExportSink) { m.exportSink = s }

// Self returns this master's id.
func (m *Master) Self() catalog.MasterID { return m.self }

// Catalog returns the frozen layout table this master was built with.
func (m *Master) Catalog() *catalog.Catalog { return m.cat }

// Table returns the partition ownership table.
func (m *Master) Table() *partition.Table { return m.table }

// Registry returns the local agent registry.
func (m *Master) Registry() publicAgent.Registry { return m.registry }

// Pool returns the handler pool this master fans RunBehaviors out
// across, so a coordinator process can wire it into
// internal/control.Dispatcher's SET_THREADS handling.
func (m *Master) Pool() *handler.Pool { return m.pool }

// Public returns the public attribute window.
func (m *Master) Public() *window.Public { return m.public }

// Critical returns the critical attribute window.
func (m *Master) Critical() *window.Critical { return m.critical }

// Outbox returns the interaction outbox local behaviors queue sends on.
func (m *Master) Outbox() *interaction.Outbox { return m.outbox }

// Step returns the current step counter (the step RunTimeStep will run
// next).
func (m *Master) Step() catalog.Time { return catalog.Time(atomic.LoadUint64(&m.curStep)) }

func (m *Master) masters() []catalog.MasterID { return m.peers.Masters() }

// AssignPartition computes and installs the round-robin ownership for one
// agent type's total population (§4.8), pushing it to every peer master if
// this master is the coordinator (self == 0). internal/control.Coordinator
// calls this once per agent type named in an init document before
// constructing any agent, so every master's Table agrees on ownership
// before ConstructPopulation runs anywhere.
func (m *Master) AssignPartition(ctx context.Context, typ catalog.AgentType, total uint64) error {
	return partition.Assign(ctx, m.table, m.peers, m.self, m.peers.Masters(), typ, total, m.nbMasters)
}

// ConstructPopulation builds every agent this master owns out of doc and
// installs them into the local registry (§4.8), using the partition table's
// own ownership predicate. Callers must have already assigned ownership for
// every agent type named in doc (AssignPartition), or every agent is
// skipped.
func (m *Master) ConstructPopulation(doc *snapshot.InitDocument) error {
	owns := func(id catalog.GlobalID) bool {
		owner, ok := m.table.Owner(id)
		return ok && owner == m.self
	}
	return snapshot.Init(doc, m.cat, m.registry, owns)
}

// Start opens the gRPC listener and begins serving PeerService RPCs on a
// background goroutine, mirroring DistributedRuntime.Start's
// listen-then-serve-in-goroutine shape. register, if given, is called
// against the same *grpc.Server before it starts serving, so a
// coordinator process can additionally register wire.OrderServiceServer
// on the same listener its peers already dial (§6).
func (m *Master) Start(register ...func(*grpc.Server)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.server != nil {
		return ErrAlreadyStarted
	}

	lis, err := net.Listen("tcp", m.listenAddr)
	if err != nil {
		return fmt.Errorf("master: listen on %s: %w", m.listenAddr, err)
	}

	var opts []grpc.ServerOption
	if provider, ok := m.peers.(interface {
		BuildServerOptions() ([]grpc.ServerOption, error)
	}); ok {
		opts, err = provider.BuildServerOptions()
		if err != nil {
			_ = lis.Close()
			return fmt.Errorf("master: configure server: %w", err)
		}
	}

	srv := grpc.NewServer(opts...)
	wire.RegisterPeerServiceServer(srv, m)
	for _, reg := range register {
		reg(srv)
	}

	m.server = srv
	m.listener = lis

	go func() {
		log.Printf("[master %d] PeerService listening on %s", m.self, m.listenAddr)
		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Printf("[master %d] PeerService server error: %v", m.self, err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the gRPC server.
func (m *Master) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.server == nil {
		return
	}
	m.server.GracefulStop()
	m.server = nil
}

func nonZero(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func durationSecs(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}
