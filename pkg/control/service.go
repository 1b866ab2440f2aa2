package control

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wayneeseguin/convergent/log"
	"github.com/wayneeseguin/convergent/pkg/generation"
	"github.com/wayneeseguin/convergent/pkg/hash"
	"github.com/wayneeseguin/convergent/pkg/tree"
)

// Config tunes the broadcast service's batching, send timeout, tracker
// capacity, and per-source fragment rate limiting.
type Config struct {
	// BatchingDelay is how long schedule_update waits, once armed, before
	// snapshotting the pending set and sending. Spec default: 1s.
	BatchingDelay time.Duration

	// SendTimeout bounds how long a single connection's update send may
	// take before it's treated as failed.
	SendTimeout time.Duration

	// TrackerCapacity bounds each of the configuration and state
	// generation trackers.
	TrackerCapacity int

	// FragmentRate and FragmentBurst configure the per-source token
	// bucket on_state_fragment enforces against misbehaving or
	// excessively chatty agents.
	FragmentRate  rate.Limit
	FragmentBurst int
}

// DefaultConfig matches the spec's literal defaults.
func DefaultConfig() Config {
	return Config{
		BatchingDelay:   time.Second,
		SendTimeout:     10 * time.Second,
		TrackerCapacity: generation.DefaultCapacity,
		FragmentRate:    50,
		FragmentBurst:   100,
	}
}

// Service is the controller's broadcast service (spec C5): connection
// registry, two generation trackers, per-connection ack bookkeeping, and
// the debounced batching scheduler.
type Service struct {
	cfg Config

	mu sync.Mutex

	cfgTracker   *generation.Tracker
	stateTracker *generation.Tracker

	conns    map[ConnID]*connRecord
	inflight map[ConnID]*inflightRecord

	pending map[ConnID]bool
	timer   *time.Timer

	fragments map[string]tree.Value // source id -> latest folded fragment
	nodeEras  map[string]string     // node uuid -> current era

	blockdeviceOwners map[string]string // dataset id -> blockdevice id

	limiters map[string]*rate.Limiter
}

// NewService constructs a broadcast service seeded with the initial
// configuration tree. The aggregate state tracker starts with an empty
// mapping as its latest, so a freshly-connected agent always has a real
// (if empty) state snapshot to be handed via UPDATE_FULL.
func NewService(cfg Config, initialConfig tree.Value) (*Service, error) {
	if cfg.BatchingDelay <= 0 {
		cfg.BatchingDelay = time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}

	s := &Service{
		cfg:               cfg,
		cfgTracker:        generation.New(cfg.TrackerCapacity),
		stateTracker:      generation.New(cfg.TrackerCapacity),
		conns:             make(map[ConnID]*connRecord),
		inflight:          make(map[ConnID]*inflightRecord),
		pending:           make(map[ConnID]bool),
		fragments:         make(map[string]tree.Value),
		nodeEras:          make(map[string]string),
		blockdeviceOwners: make(map[string]string),
		limiters:          make(map[string]*rate.Limiter),
	}

	if err := s.cfgTracker.InsertLatest(initialConfig); err != nil {
		return nil, err
	}
	if err := s.stateTracker.InsertLatest(tree.NewMapping(nil)); err != nil {
		return nil, err
	}

	return s, nil
}

// CurrentHashes returns the controller's current configuration and
// aggregate state hashes, the pair an agent-initiated command's response
// carries back so the agent can tell whether it's already caught up.
func (s *Service) CurrentHashes() (hash.Sum, hash.Sum) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfgHash, _ := s.cfgTracker.GetLatestHash()
	stateHash, _ := s.stateTracker.GetLatestHash()
	return cfgHash, stateHash
}

// OnAgentConnected registers a newly connected agent and schedules its
// first update (always an UPDATE_FULL, since it has no acked hash yet).
func (s *Service) OnAgentConnected(id ConnID, sender Sender) {
	s.mu.Lock()
	s.conns[id] = &connRecord{id: id, sender: sender, lastActivity: now()}
	s.mu.Unlock()

	log.NewAction("agent_connected").With("conn", string(id)).Log()
	s.scheduleUpdate(id)
}

// OnAgentDisconnected deregisters id, dropping its record and any
// in-flight bookkeeping without blocking subsequent broadcasts to other
// connections.
func (s *Service) OnAgentDisconnected(id ConnID) {
	s.mu.Lock()
	delete(s.conns, id)
	delete(s.inflight, id)
	delete(s.pending, id)
	s.mu.Unlock()

	log.NewAction("agent_disconnected").With("conn", string(id)).Log()
}

// Close stops the batching timer. Safe to call even if no timer is armed.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// now is a seam so tests could substitute a fake clock; production always
// uses wall time. (No fake-clock dependency is wired here: the batching
// window is long enough, and the keepalive tests already establish the
// pattern of shrinking intervals via package vars rather than mocking
// time.Now.)
func now() time.Time { return time.Now() }
