package modelcontext

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpowers/go-modelcontext/capability"
	"github.com/bpowers/go-modelcontext/conn"
	"github.com/bpowers/go-modelcontext/discovery"
	"github.com/bpowers/go-modelcontext/dispatch"
	"github.com/bpowers/go-modelcontext/host"
	"github.com/bpowers/go-modelcontext/persistence"
	"github.com/bpowers/go-modelcontext/persistence/sqlitestore"
	"github.com/bpowers/go-modelcontext/providers/calendar"
	"github.com/bpowers/go-modelcontext/providers/datecalc"
	"github.com/bpowers/go-modelcontext/providers/timecalc"
)

const testWindow = 50 * time.Millisecond

var (
	calendarDesc = capability.Descriptor{ProcessID: "com.example.calendar", EntryID: "CalendarService", CapabilityType: calendar.ServiceType}
	remoteDate   = capability.Descriptor{ProcessID: "com.example.date", EntryID: "DateService", CapabilityType: datecalc.ServiceType}
)

// remoteHost simulates provider processes: each answers discovery on the bus
// and is reachable through an in-process dialer.
type remoteHost struct {
	bus    *discovery.MemoryBus
	dialer *conn.ProviderDialer
}

func newRemoteHost(t *testing.T, providers map[capability.Descriptor]capability.Provider) *remoteHost {
	t.Helper()
	h := &remoteHost{bus: discovery.NewMemoryBus(), dialer: conn.NewProviderDialer()}
	for d, p := range providers {
		h.dialer.Add(d, p)
		r := discovery.NewResponder(h.bus, d, "test")
		require.NoError(t, r.Start(context.Background()))
		t.Cleanup(r.Stop)
	}
	return h
}

func (h *remoteHost) options() []Option {
	return []Option{WithBus(h.bus), WithDialer(h.dialer), WithCollectionWindow(testWindow)}
}

func newRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	r, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func connectAndWait(t *testing.T, r *Registry, d capability.Descriptor) {
	t.Helper()
	require.True(t, r.Connect(d))
	require.Eventually(t, func() bool {
		return r.ConnectionState(d) == conn.Connected
	}, 5*time.Second, 5*time.Millisecond)
}

func TestDiscoverConnectAndCall(t *testing.T) {
	h := newRemoteHost(t, map[capability.Descriptor]capability.Provider{
		calendarDesc: calendar.New(calendar.NewMemorySurface(), calendar.WithLocation(time.UTC)),
	})
	r := newRegistry(t, h.options()...)
	ctx := context.Background()

	found, err := r.DiscoverNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, []capability.Descriptor{calendarDesc}, found)
	assert.Equal(t, []capability.Descriptor{calendarDesc}, r.ProvidersByType(calendar.ServiceType))
	assert.Empty(t, r.ProvidersByType(datecalc.ServiceType))

	assert.False(t, r.IsConnected(calendar.ServiceType))
	connectAndWait(t, r, calendarDesc)
	assert.True(t, r.IsConnected(calendar.ServiceType))
	assert.Equal(t, calendar.Version, r.Version(ctx, calendar.ServiceType))

	got := r.CallTool(ctx, calendar.ServiceType, "add_event",
		`{"title":"Standup","day":"2024-01-10","startTime":"09:00","durationMinutes":30}`)
	require.Len(t, got, 1)
	assert.False(t, got[0].IsError)
	assert.Contains(t, got[0].Payload, "Success")

	got = r.CallTool(ctx, calendar.ServiceType, "add_event",
		`{"title":"Standup","startTime":"09:00","durationMinutes":30}`)
	require.Len(t, got, 1)
	assert.True(t, got[0].IsError)
	assert.Contains(t, got[0].Payload, `"day"`)

	got = r.CallTool(ctx, calendar.ServiceType, "add_event", `{"title":`)
	require.Len(t, got, 1)
	assert.True(t, got[0].IsError)
	assert.Contains(t, got[0].Payload, "Invalid arguments")

	assert.True(t, r.HasCapability(ctx, calendar.ServiceType, capability.CapabilityResources))
	resources := r.ListResources(ctx, calendar.ServiceType)
	require.Len(t, resources, 1)
	assert.Equal(t, calendar.UpcomingURI, resources[0].URI)
}

func TestBuiltinPreferred(t *testing.T) {
	h := newRemoteHost(t, map[capability.Descriptor]capability.Provider{
		remoteDate: &versionedDate{Provider: datecalc.New(nil), version: "remote date"},
	})
	r := newRegistry(t, append(h.options(), WithBuiltin(datecalc.New(nil)))...)
	ctx := context.Background()

	assert.True(t, r.IsConnected(datecalc.ServiceType))
	_, err := r.DiscoverNow(ctx)
	require.NoError(t, err)
	connectAndWait(t, r, remoteDate)

	assert.Equal(t, datecalc.Version, r.Version(ctx, datecalc.ServiceType))
	assert.Len(t, r.ProvidersByType(datecalc.ServiceType), 2)

	got := r.CallTool(ctx, datecalc.ServiceType, "unknown_tool", "{}")
	require.Len(t, got, 1)
	assert.True(t, got[0].IsError)
	assert.Contains(t, got[0].Payload, "unknown_tool")
}

type versionedDate struct {
	*datecalc.Provider
	version string
}

func (v *versionedDate) ServiceVersion(context.Context) (string, error) {
	return v.version, nil
}

func TestNotAvailable(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()

	assert.False(t, r.IsConnected("date"))
	assert.Equal(t, dispatch.NotConnectedMessage, r.Calculate(ctx, "date", "1"))
	assert.Equal(t, dispatch.UnknownVersion, r.Version(ctx, "date"))
	assert.Empty(t, r.ListTools(ctx, "date"))
	assert.False(t, r.HasCapability(ctx, "date", capability.CapabilityTools))

	got := r.ReadResource(ctx, "date", datecalc.CurrentURI)
	require.Len(t, got, 1)
	assert.True(t, got[0].IsError)
}

func TestConnectTwiceSingleConnection(t *testing.T) {
	h := newRemoteHost(t, map[capability.Descriptor]capability.Provider{
		remoteDate: datecalc.New(nil),
	})
	r := newRegistry(t, h.options()...)

	assert.True(t, r.Connect(remoteDate))
	assert.True(t, r.Connect(remoteDate))
	require.Eventually(t, func() bool {
		return r.ConnectionState(remoteDate) == conn.Connected
	}, 5*time.Second, 5*time.Millisecond)
	assert.True(t, r.Connect(remoteDate))
	assert.Equal(t, []capability.Descriptor{remoteDate}, r.conns.Connected())

	r.Disconnect(remoteDate)
	r.Disconnect(remoteDate)
	assert.Equal(t, conn.Disconnected, r.ConnectionState(remoteDate))
	assert.False(t, r.IsConnected(datecalc.ServiceType))
}

func TestConnectUnknownFails(t *testing.T) {
	r := newRegistry(t)
	assert.False(t, r.Connect(remoteDate))
	assert.Equal(t, conn.Disconnected, r.ConnectionState(remoteDate))
}

func TestDiscoverNobodyAnswers(t *testing.T) {
	r := newRegistry(t, WithBus(discovery.NewMemoryBus()), WithCollectionWindow(testWindow))

	start := time.Now()
	found, err := r.DiscoverNow(context.Background())
	require.NoError(t, err)
	assert.Empty(t, found)
	assert.GreaterOrEqual(t, time.Since(start), testWindow)
}

func TestDiscoverEnumerationOnly(t *testing.T) {
	enum := discovery.EnumeratorFunc(func(context.Context) ([]discovery.Component, error) {
		return []discovery.Component{
			{ProcessID: "com.example.TimeCalculator", EntryID: "TimeService", Actions: []string{discovery.MarkerAction}},
			{ProcessID: "com.example.launcher", EntryID: "Main", Actions: []string{"main"}},
		}, nil
	})
	r := newRegistry(t, WithBus(discovery.NewMemoryBus()), WithEnumerator(enum), WithCollectionWindow(testWindow))

	found, err := r.DiscoverNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []capability.Descriptor{
		{ProcessID: "com.example.TimeCalculator", EntryID: "TimeService", CapabilityType: timecalc.ServiceType},
	}, found)
}

func TestDiscoverCallbackOnce(t *testing.T) {
	h := newRemoteHost(t, map[capability.Descriptor]capability.Provider{
		remoteDate: datecalc.New(nil),
	})
	r := newRegistry(t, h.options()...)

	results := make(chan []capability.Descriptor, 4)
	r.Discover(context.Background(), func(ds []capability.Descriptor) { results <- ds })
	r.Discover(context.Background(), func(ds []capability.Descriptor) { results <- ds })

	for range 2 {
		select {
		case ds := <-results:
			assert.Equal(t, []capability.Descriptor{remoteDate}, ds)
		case <-time.After(5 * time.Second):
			t.Fatal("discovery callback not called")
		}
	}
	select {
	case <-results:
		t.Fatal("callback called more than once per discovery")
	case <-time.After(2 * testWindow):
	}
}

func TestCacheRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "registry.db")
	h := newRemoteHost(t, map[capability.Descriptor]capability.Provider{
		calendarDesc: calendar.New(calendar.NewMemorySurface()),
		remoteDate:   datecalc.New(nil),
	})

	store, err := sqlitestore.New(dbPath)
	require.NoError(t, err)
	r, err := New(append(h.options(), WithCache(store), WithBuiltin(timecalc.New()))...)
	require.NoError(t, err)
	found, err := r.DiscoverNow(context.Background())
	require.NoError(t, err)
	assert.Len(t, found, 3)
	require.NoError(t, r.Close())

	// everything still installed
	store, err = sqlitestore.New(dbPath)
	require.NoError(t, err)
	r = newRegistry(t, WithCache(store), WithBuiltin(timecalc.New()))
	assert.ElementsMatch(t, found, r.Providers())
	require.NoError(t, r.Close())

	// the calendar process is gone
	store, err = sqlitestore.New(dbPath)
	require.NoError(t, err)
	r = newRegistry(t, WithCache(store), WithProcessChecker(ProcessCheckerFunc(func(processID string) bool {
		return processID != calendarDesc.ProcessID
	})))
	assert.Empty(t, r.ProvidersByType(calendar.ServiceType))
	assert.Equal(t, []capability.Descriptor{remoteDate}, r.ProvidersByType(datecalc.ServiceType))
	// the time built-in was cached but is no longer configured
	assert.Empty(t, r.ProvidersByType(timecalc.ServiceType))
	assert.False(t, r.IsConnected(timecalc.ServiceType))
}

func TestCachedBuiltinNotConfiguredIsDropped(t *testing.T) {
	cache := persistence.NewMemoryCache()
	stale := capability.Descriptor{ProcessID: BuiltinProcess, EntryID: timecalc.ServiceType, CapabilityType: timecalc.ServiceType}
	kept := capability.Descriptor{ProcessID: BuiltinProcess, EntryID: datecalc.ServiceType, CapabilityType: datecalc.ServiceType}
	require.NoError(t, cache.Put(persistence.DiscoveredServicesKey,
		`[{"processId":"modelcontext.builtin","entryId":"time","capabilityType":"time"},`+
			`{"processId":"modelcontext.builtin","entryId":"date","capabilityType":"date"}]`))

	r := newRegistry(t, WithCache(cache), WithBuiltin(datecalc.New(nil)))
	assert.Equal(t, []capability.Descriptor{kept}, r.Providers())
	assert.NotContains(t, r.Providers(), stale)

	got := r.CallTool(context.Background(), timecalc.ServiceType, "current_time", `{}`)
	require.Len(t, got, 1)
	assert.True(t, got[0].IsError)
}

func TestCorruptCacheRecordSkipped(t *testing.T) {
	cache := persistence.NewMemoryCache()
	require.NoError(t, cache.Put(persistence.DiscoveredServicesKey,
		`[{"processId":"a","entryId":"A","capabilityType":"date"},{"processId":7},{"processId":"b","entryId":"B","capabilityType":"time"}]`))

	r := newRegistry(t, WithCache(cache))
	assert.Len(t, r.Providers(), 2)
}

func TestProcessRemoved(t *testing.T) {
	h := newRemoteHost(t, map[capability.Descriptor]capability.Provider{
		calendarDesc: calendar.New(calendar.NewMemorySurface()),
		remoteDate:   datecalc.New(nil),
	})
	cache := persistence.NewMemoryCache()
	r := newRegistry(t, append(h.options(), WithCache(cache))...)
	ctx := context.Background()

	_, err := r.DiscoverNow(ctx)
	require.NoError(t, err)
	connectAndWait(t, r, calendarDesc)

	r.HandleProcessEvent(ctx, host.Event{Kind: host.Removed, ProcessID: calendarDesc.ProcessID})
	assert.Empty(t, r.ProvidersByType(calendar.ServiceType))
	assert.Equal(t, conn.Disconnected, r.ConnectionState(calendarDesc))
	assert.False(t, r.IsConnected(calendar.ServiceType))

	data, ok, err := cache.Get(persistence.DiscoveredServicesKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, data, calendarDesc.ProcessID)
	assert.Contains(t, data, remoteDate.ProcessID)
}

func TestProcessInstalledTriggersDiscovery(t *testing.T) {
	h := newRemoteHost(t, nil)
	r := newRegistry(t, h.options()...)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan host.Event)
	go r.WatchProcesses(ctx, events)

	// the new process starts answering discovery once installed
	h.dialer.Add(remoteDate, datecalc.New(nil))
	resp := discovery.NewResponder(h.bus, remoteDate, "test")
	require.NoError(t, resp.Start(context.Background()))
	defer resp.Stop()

	events <- host.Event{Kind: host.Installed, ProcessID: remoteDate.ProcessID}
	require.Eventually(t, func() bool {
		return len(r.ProvidersByType(datecalc.ServiceType)) == 1
	}, 5*time.Second, 5*time.Millisecond)
}
