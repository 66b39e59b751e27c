package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bpowers/go-modelcontext/capability"
	"github.com/bpowers/go-modelcontext/conn"
	"github.com/bpowers/go-modelcontext/internal/logging"
	"github.com/bpowers/go-modelcontext/mcp"
	"github.com/bpowers/go-modelcontext/sdkbridge"
)

// EntryEnv names the environment variable carrying the entry a launched
// process should serve.
const EntryEnv = "MODELCONTEXT_ENTRY"

// StopGrace is how long a provider process has to exit after its stdin is
// closed before it is killed.
const StopGrace = 2 * time.Second

// ProcessDialer launches provider processes declared in a Registry and
// links to them over stdio.
type ProcessDialer struct {
	registry *Registry
	lookPath func(string) (string, error)
}

var _ conn.Dialer = (*ProcessDialer)(nil)

// NewProcessDialer returns a dialer for processes declared in registry.
func NewProcessDialer(registry *Registry) *ProcessDialer {
	return &ProcessDialer{registry: registry, lookPath: exec.LookPath}
}

// Dial implements conn.Dialer. Unknown processes and missing executables
// are reported synchronously; the launch and handshake run in the
// background.
func (pd *ProcessDialer) Dial(d capability.Descriptor, done func(conn.Link, error)) error {
	m, ok := pd.registry.Manifest(d.ProcessID)
	if !ok || len(m.Command) == 0 {
		return fmt.Errorf("dial %s: %w", d.Key(), conn.ErrUnknownProcess)
	}
	if _, ok := m.Entry(d.EntryID); !ok {
		return fmt.Errorf("dial %s: no entry %q: %w", d.Key(), d.EntryID, conn.ErrUnknownProcess)
	}
	bin, err := pd.lookPath(m.Command[0])
	if err != nil {
		return fmt.Errorf("dial %s: %w", d.Key(), err)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), conn.HandshakeTimeout)
		defer cancel()

		var link conn.Link
		var err error
		switch m.Protocol {
		case ProtocolMCP:
			link, err = dialMCP(ctx, d, bin, m.Command[1:])
		default:
			link, err = dialNative(ctx, d, bin, m.Command[1:])
		}
		if err != nil {
			done(nil, err)
			return
		}
		done(link, nil)
	}()
	return nil
}

func command(d capability.Descriptor, bin string, args []string) *exec.Cmd {
	cmd := exec.Command(bin, args...)
	cmd.Env = append(os.Environ(), EntryEnv+"="+d.EntryID)
	return cmd
}

func dialMCP(ctx context.Context, d capability.Descriptor, bin string, args []string) (conn.Link, error) {
	cmd := command(d, bin, args)
	cmd.Stderr = newStderrLog(d)
	sp, err := sdkbridge.Dial(ctx, &sdk.CommandTransport{Command: cmd})
	if err != nil {
		return nil, fmt.Errorf("launch %s: %w", d.Key(), err)
	}
	return sp, nil
}

func dialNative(ctx context.Context, d capability.Descriptor, bin string, args []string) (conn.Link, error) {
	cmd := command(d, bin, args)
	cmd.Stderr = newStderrLog(d)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launch %s: %w", d.Key(), err)
	}

	out := newDrainReader(stdout)
	proc := &process{cmd: cmd, stdin: stdin, drained: out.done, key: d.Key()}
	client := mcp.NewClient(out, stdin, proc)
	go func() {
		<-client.Done()
		_ = proc.Close()
	}()

	if _, err := client.Initialize(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("handshake %s: %w", d.Key(), err)
	}
	return client, nil
}

// process stops a child: close stdin, wait out the grace period, then kill.
// cmd.Wait closes the stdout pipe, so it only runs once the client has read
// stdout to its end or the child has been killed.
type process struct {
	cmd     *exec.Cmd
	stdin   io.Closer
	drained <-chan struct{}
	key     string

	once sync.Once
	err  error
}

func (p *process) Close() error {
	p.once.Do(func() {
		_ = p.stdin.Close()

		grace := time.NewTimer(StopGrace)
		defer grace.Stop()

		killed := false
		select {
		case <-p.drained:
		case <-grace.C:
			_ = p.cmd.Process.Kill()
			killed = true
		}

		exited := make(chan error, 1)
		go func() { exited <- p.cmd.Wait() }()

		select {
		case err := <-exited:
			p.err = ignoreExit(err)
		case <-grace.C:
			_ = p.cmd.Process.Kill()
			killed = true
			<-exited
		}
		logging.For("host").Debug("provider process stopped", "process", p.key, "killed", killed, "error", p.err)
	})
	return p.err
}

// drainReader closes done once the underlying reader reports EOF or an
// error.
type drainReader struct {
	r    io.Reader
	once sync.Once
	done chan struct{}
}

func newDrainReader(r io.Reader) *drainReader {
	return &drainReader{r: r, done: make(chan struct{})}
}

func (d *drainReader) Read(b []byte) (int, error) {
	n, err := d.r.Read(b)
	if err != nil {
		d.once.Do(func() { close(d.done) })
	}
	return n, err
}

func ignoreExit(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

// stderrLog logs whatever a provider writes to stderr.
type stderrLog struct {
	log *slog.Logger
}

func newStderrLog(d capability.Descriptor) io.Writer {
	return &stderrLog{log: logging.For("host").With("process", d.Key())}
}

func (s *stderrLog) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		s.log.Debug("provider stderr", "line", line)
	}
	return len(p), nil
}
