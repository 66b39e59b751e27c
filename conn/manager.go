// Package conn manages live connections to out-of-process capability
// providers.
package conn

import (
	"errors"
	"sync"

	"github.com/bpowers/go-modelcontext/capability"
	"github.com/bpowers/go-modelcontext/internal/logging"
)

// ErrUnknownProcess is returned by dialers asked to reach a process that is
// not installed.
var ErrUnknownProcess = errors.New("unknown provider process")

// State is the lifecycle state of a connection.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Link is an established connection: a provider proxy that can be torn down
// and reports when the remote side goes away on its own.
type Link interface {
	capability.Provider
	Close() error
	Done() <-chan struct{}
}

// Dialer starts connection attempts.
type Dialer interface {
	// Dial initiates a connection to d and returns without waiting for it.
	// A non-nil error means no attempt was started and done will not be
	// called. Otherwise done is called exactly once, from another goroutine,
	// with either a live link or the reason the attempt failed.
	Dial(d capability.Descriptor, done func(Link, error)) error
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(d capability.Descriptor, done func(Link, error)) error

func (f DialerFunc) Dial(d capability.Descriptor, done func(Link, error)) error {
	return f(d, done)
}

type attempt struct {
	desc capability.Descriptor
}

type entry struct {
	desc capability.Descriptor
	link Link
}

// Manager tracks connection attempts and live connections, keyed by the
// descriptor identity. One mutex guards all of its maps.
type Manager struct {
	dialer Dialer

	mu      sync.Mutex
	pending map[string]*attempt
	active  map[string]*entry
	order   []string
}

// NewManager returns a manager that opens connections through dialer.
func NewManager(dialer Dialer) *Manager {
	return &Manager{
		dialer:  dialer,
		pending: make(map[string]*attempt),
		active:  make(map[string]*entry),
	}
}

// Connect ensures a connection to d exists or is being established. It
// returns true if d is already connected, an attempt is already pending, or
// a new attempt was started; false if the attempt could not be started.
func (m *Manager) Connect(d capability.Descriptor) bool {
	log := logging.For("conn")
	key := d.Key()

	m.mu.Lock()
	if _, ok := m.active[key]; ok {
		m.mu.Unlock()
		return true
	}
	if _, ok := m.pending[key]; ok {
		m.mu.Unlock()
		return true
	}
	if m.dialer == nil {
		m.mu.Unlock()
		log.Warn("no dialer configured", "descriptor", d.String())
		return false
	}
	a := &attempt{desc: d}
	m.pending[key] = a
	m.mu.Unlock()

	err := m.dialer.Dial(d, func(link Link, err error) {
		m.complete(a, link, err)
	})
	if err != nil {
		m.mu.Lock()
		if m.pending[key] == a {
			delete(m.pending, key)
		}
		m.mu.Unlock()
		log.Warn("connection attempt not started", "descriptor", d.String(), "error", err)
		return false
	}
	log.Debug("connection attempt started", "descriptor", d.String())
	return true
}

// complete records a finished attempt if it is still the current one for its
// key. Links from abandoned attempts are closed.
func (m *Manager) complete(a *attempt, link Link, err error) {
	log := logging.For("conn")
	key := a.desc.Key()

	m.mu.Lock()
	current := m.pending[key] == a
	if current {
		delete(m.pending, key)
	}
	if err != nil || link == nil {
		m.mu.Unlock()
		if err == nil {
			err = errors.New("dialer returned no link")
		}
		log.Warn("connection attempt failed", "descriptor", a.desc.String(), "error", err)
		return
	}
	if !current {
		m.mu.Unlock()
		log.Debug("closing link from abandoned attempt", "descriptor", a.desc.String())
		if cerr := link.Close(); cerr != nil {
			log.Warn("closing abandoned link failed", "descriptor", a.desc.String(), "error", cerr)
		}
		return
	}
	e := &entry{desc: a.desc, link: link}
	m.active[key] = e
	m.order = append(m.order, key)
	m.mu.Unlock()

	log.Info("provider connected", "descriptor", a.desc.String())
	go m.watch(e)
}

// watch removes e once its link reports that the remote side went away.
func (m *Manager) watch(e *entry) {
	<-e.link.Done()
	key := e.desc.Key()

	m.mu.Lock()
	removed := m.active[key] == e
	if removed {
		m.removeLocked(key)
	}
	m.mu.Unlock()

	if removed {
		logging.For("conn").Info("provider connection lost", "descriptor", e.desc.String())
	}
}

func (m *Manager) removeLocked(key string) {
	delete(m.active, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i:i], m.order[i+1:]...)
			break
		}
	}
}

// Disconnect tears down any connection to d and abandons a pending attempt.
// It is a no-op if there is neither. Teardown errors are logged; the entry is
// removed regardless.
func (m *Manager) Disconnect(d capability.Descriptor) {
	key := d.Key()

	m.mu.Lock()
	delete(m.pending, key)
	e, ok := m.active[key]
	if ok {
		m.removeLocked(key)
	}
	m.mu.Unlock()

	if ok {
		m.closeEntry(e)
	}
}

// DisconnectAll tears down every connection and abandons pending attempts.
func (m *Manager) DisconnectAll() {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.order))
	for _, key := range m.order {
		entries = append(entries, m.active[key])
	}
	m.active = make(map[string]*entry)
	m.pending = make(map[string]*attempt)
	m.order = nil
	m.mu.Unlock()

	for _, e := range entries {
		m.closeEntry(e)
	}
}

func (m *Manager) closeEntry(e *entry) {
	log := logging.For("conn")
	if err := e.link.Close(); err != nil {
		log.Warn("provider teardown failed", "descriptor", e.desc.String(), "error", err)
		return
	}
	log.Info("provider disconnected", "descriptor", e.desc.String())
}

// IsConnected reports whether d has a live connection.
func (m *Manager) IsConnected(d capability.Descriptor) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[d.Key()]
	return ok
}

// State reports the lifecycle state of d.
func (m *Manager) State(d capability.Descriptor) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := d.Key()
	if _, ok := m.active[key]; ok {
		return Connected
	}
	if _, ok := m.pending[key]; ok {
		return Connecting
	}
	return Disconnected
}

// FirstByType returns the earliest-connected live link whose descriptor has
// the given capability type.
func (m *Manager) FirstByType(capType string) (Link, capability.Descriptor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range m.order {
		e := m.active[key]
		if e.desc.CapabilityType == capType {
			return e.link, e.desc, true
		}
	}
	return nil, capability.Descriptor{}, false
}

// Connected returns the descriptors of live connections in connection order.
func (m *Manager) Connected() []capability.Descriptor {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]capability.Descriptor, 0, len(m.order))
	for _, key := range m.order {
		out = append(out, m.active[key].desc)
	}
	return out
}
