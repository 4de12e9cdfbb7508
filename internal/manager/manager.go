package manager

import (
	"context"
	"sync"
	"time"

	"visionchat/internal/imageres"
	"visionchat/internal/prompt"
	"visionchat/pkg/types"
)

// ImageSource resolves image references from HTTP requests.
type ImageSource interface {
	Resolve(ctx context.Context, source string) (*imageres.Image, error)
	Decode(source string, data []byte) (*imageres.Image, error)
}

type Manager struct {
	mu    sync.RWMutex
	state State
	err   string

	cfg       ManagerConfig
	formatter prompt.Formatter
	pub       EventPublisher
	startTime time.Time

	// Queueing primitives
	genCh   chan struct{} // size 1: single in-flight generation
	queueCh chan struct{} // buffered: queue slots
	maxWait time.Duration

	requests uint64
	failures uint64
	rejected uint64
}

// New constructs a Manager from cfg, applying package defaults.
func New(cfg ManagerConfig) *Manager {
	if cfg.MaxQueueDepth <= 0 {
		cfg.MaxQueueDepth = defaultMaxQueueDepth
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = defaultMaxWait
	}
	f := cfg.Formatter
	if f.Marker == "" {
		f = prompt.NewFormatter(prompt.ImageMarker)
	}
	m := &Manager{
		state:     StateReady,
		cfg:       cfg,
		formatter: f,
		pub:       noopPublisher{},
		startTime: time.Now(),
		genCh:     make(chan struct{}, 1),
		queueCh:   make(chan struct{}, cfg.MaxQueueDepth),
		maxWait:   cfg.MaxWait,
	}
	if cfg.Generator == nil {
		m.state = StateError
		m.err = "no inference backend configured"
	}
	return m
}

// SetEventPublisher installs p; nil restores the no-op publisher.
func (m *Manager) SetEventPublisher(p EventPublisher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p == nil {
		p = noopPublisher{}
	}
	m.pub = p
}

func (m *Manager) publish(e Event) {
	m.mu.RLock()
	p := m.pub
	m.mu.RUnlock()
	p.Publish(e)
}

// Ready reports whether requests can be served. A configured probe is
// consulted on every call.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	st := m.state
	probe := m.cfg.Probe
	m.mu.RUnlock()
	if st != StateReady {
		return false
	}
	if probe != nil {
		if err := probe(); err != nil {
			m.setErr(err)
			return false
		}
	}
	return true
}

// Model returns the served model description.
func (m *Manager) Model() types.ModelInfo { return m.cfg.Model }

// Drain stops admitting new requests and waits for queued ones to finish or
// ctx to end.
func (m *Manager) Drain(ctx context.Context) error {
	m.mu.Lock()
	m.state = StateDraining
	m.mu.Unlock()
	m.publish(Event{Name: "drain_start"})
	t := time.NewTicker(10 * time.Millisecond)
	defer t.Stop()
	for len(m.queueCh) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	m.publish(Event{Name: "drain_done"})
	return nil
}

func (m *Manager) setErr(err error) {
	m.mu.Lock()
	m.err = err.Error()
	m.mu.Unlock()
}
