package conn

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/bpowers/go-modelcontext/capability"
	"github.com/bpowers/go-modelcontext/internal/logging"
	"github.com/bpowers/go-modelcontext/mcp"
)

// HandshakeTimeout bounds the initialize exchange on a new link.
const HandshakeTimeout = 10 * time.Second

// ProviderDialer reaches providers living in this process. Each dial serves
// the provider over an in-memory pipe and links to it with the same wire
// client used for child processes, so calls cross a real message boundary.
type ProviderDialer struct {
	mu        sync.Mutex
	providers map[string]capability.Provider
}

// NewProviderDialer returns a dialer with no providers.
func NewProviderDialer() *ProviderDialer {
	return &ProviderDialer{providers: make(map[string]capability.Provider)}
}

// Add makes p reachable under d's identity.
func (pd *ProviderDialer) Add(d capability.Descriptor, p capability.Provider) {
	pd.mu.Lock()
	defer pd.mu.Unlock()
	pd.providers[d.Key()] = p
}

// Remove makes d unreachable for future dials.
func (pd *ProviderDialer) Remove(d capability.Descriptor) {
	pd.mu.Lock()
	defer pd.mu.Unlock()
	delete(pd.providers, d.Key())
}

// Dial implements Dialer.
func (pd *ProviderDialer) Dial(d capability.Descriptor, done func(Link, error)) error {
	pd.mu.Lock()
	p, ok := pd.providers[d.Key()]
	pd.mu.Unlock()
	if !ok {
		return fmt.Errorf("dial %s: %w", d.Key(), ErrUnknownProcess)
	}

	server, err := mcp.NewServer(p, mcp.Implementation{Name: d.ProcessID, Version: mcp.ClientVersion})
	if err != nil {
		return fmt.Errorf("dial %s: %w", d.Key(), err)
	}

	go func() {
		client, err := Pipe(server)
		if err != nil {
			done(nil, err)
			return
		}
		done(client, nil)
	}()
	return nil
}

// Pipe serves server over an in-memory pipe and returns an initialized
// client for the other end.
func Pipe(server *mcp.Server) (*mcp.Client, error) {
	serverConn, clientConn := net.Pipe()
	go func() {
		if err := server.Serve(context.Background(), serverConn, serverConn); err != nil {
			logging.For("conn").Debug("pipe server stopped", "error", err)
		}
		serverConn.Close()
	}()

	client := mcp.NewClient(clientConn, clientConn, clientConn)
	ctx, cancel := context.WithTimeout(context.Background(), HandshakeTimeout)
	defer cancel()
	if _, err := client.Initialize(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("handshake: %w", err)
	}
	return client, nil
}
