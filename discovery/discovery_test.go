package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpowers/go-modelcontext/capability"
	"github.com/bpowers/go-modelcontext/catalog"
)

const testWindow = 50 * time.Millisecond

func startResponder(t *testing.T, bus Bus, d capability.Descriptor) *Responder {
	t.Helper()
	r := NewResponder(bus, d, "test v1")
	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(r.Stop)
	return r
}

func TestMemoryBusFanOut(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	a, err := bus.Subscribe(ctx, "t")
	require.NoError(t, err)
	b, err := bus.Subscribe(ctx, "t")
	require.NoError(t, err)
	other, err := bus.Subscribe(ctx, "other")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "t", Message{Action: "x"}))

	assert.Equal(t, "x", (<-a.C()).Action)
	assert.Equal(t, "x", (<-b.C()).Action)
	select {
	case <-other.C():
		t.Fatal("message leaked across topics")
	default:
	}

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	_, open := <-a.C()
	assert.False(t, open)
	assert.Equal(t, 1, bus.Subscribers("t"))
}

func TestMemoryBusContextEndsSubscription(t *testing.T) {
	bus := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := bus.Subscribe(ctx, "t")
	require.NoError(t, err)

	cancel()
	select {
	case _, open := <-sub.C():
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed on cancel")
	}
	assert.Equal(t, 0, bus.Subscribers("t"))
}

func TestMemoryBusFullBufferDrops(t *testing.T) {
	bus := NewMemoryBus()
	sub, err := bus.Subscribe(context.Background(), "t")
	require.NoError(t, err)
	for i := 0; i < subscriptionBuffer+10; i++ {
		require.NoError(t, bus.Publish(context.Background(), "t", Message{}))
	}
	assert.Len(t, sub.C(), subscriptionBuffer)
}

func TestRunCollectsBroadcastAnswers(t *testing.T) {
	bus := NewMemoryBus()
	startResponder(t, bus, capability.Descriptor{ProcessID: "com.a", EntryID: "Date", CapabilityType: "date"})
	startResponder(t, bus, capability.Descriptor{ProcessID: "com.b", EntryID: "Mystery"})

	var saved []capability.Descriptor
	store := catalog.New()
	d, err := New(store, WithBus(bus), WithWindow(testWindow), WithSaver(func(ds []capability.Descriptor) error {
		saved = ds
		return nil
	}))
	require.NoError(t, err)

	got, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []capability.Descriptor{
		{ProcessID: "com.a", EntryID: "Date", CapabilityType: "date"},
		{ProcessID: "com.b", EntryID: "Mystery", CapabilityType: capability.UnknownType},
	}, got)
	assert.Equal(t, got, saved)
	assert.Equal(t, 0, bus.Subscribers(TopicResponse), "window subscription must be released")
}

func TestRunIgnoresBadResponses(t *testing.T) {
	bus := NewMemoryBus()
	store := catalog.New()
	d, err := New(store, WithBus(bus), WithWindow(testWindow))
	require.NoError(t, err)

	// answer every request with junk
	sub, err := bus.Subscribe(context.Background(), TopicRequest)
	require.NoError(t, err)
	defer sub.Close()
	go func() {
		for range sub.C() {
			ctx := context.Background()
			_ = bus.Publish(ctx, TopicResponse, Message{Action: "other", ProcessID: "p", EntryID: "e"})
			_ = bus.Publish(ctx, TopicResponse, Message{Action: ActionResponse, EntryID: "e"})
			_ = bus.Publish(ctx, TopicResponse, Message{Action: ActionResponse, ProcessID: "p"})
		}
	}()

	got, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRunZeroResponders(t *testing.T) {
	store := catalog.New()
	store.AddIfAbsent(capability.Descriptor{ProcessID: "cached", EntryID: "e", CapabilityType: "date"})

	d, err := New(store, WithBus(NewMemoryBus()), WithWindow(testWindow))
	require.NoError(t, err)

	start := time.Now()
	got, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), testWindow, "the window always elapses")
	assert.Len(t, got, 1, "previously known descriptors are returned")
}

func TestRunEnumerationPhase(t *testing.T) {
	enum := EnumeratorFunc(func(ctx context.Context) ([]Component, error) {
		return []Component{
			{ProcessID: "com.example.DateCalculator", EntryID: "Svc", Actions: []string{MarkerAction}},
			{ProcessID: "com.example.app", EntryID: "Typed", Actions: []string{MarkerAction}, Metadata: map[string]string{MetadataType: "schedule"}},
			{ProcessID: "com.example.unrelated", EntryID: "Svc", Actions: []string{"other"}},
			{ProcessID: "com.example.widget", EntryID: "Svc", Actions: []string{MarkerAction}},
		}, nil
	})

	bus := NewMemoryBus()
	startResponder(t, bus, capability.Descriptor{ProcessID: "com.example.app", EntryID: "Typed", CapabilityType: "calendar-broadcast"})

	store := catalog.New()
	d, err := New(store, WithBus(bus), WithEnumerator(enum), WithWindow(testWindow))
	require.NoError(t, err)

	got, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)
	// the broadcast answer was recorded first and keeps its type
	assert.Equal(t, "calendar-broadcast", got[0].CapabilityType)
	assert.Equal(t, "date", got[1].CapabilityType)
	assert.Equal(t, capability.UnknownType, got[2].CapabilityType)
}

func TestRunEnumerationFailureIsNotFatal(t *testing.T) {
	enum := EnumeratorFunc(func(ctx context.Context) ([]Component, error) {
		return nil, errors.New("registry unavailable")
	})
	saveErr := errors.New("disk full")
	d, err := New(catalog.New(), WithEnumerator(enum), WithSaver(func([]capability.Descriptor) error { return saveErr }))
	require.NoError(t, err)

	got, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRunCancelled(t *testing.T) {
	d, err := New(catalog.New(), WithBus(NewMemoryBus()), WithWindow(time.Minute))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), testWindow)
	defer cancel()
	_, err = d.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProbeTargetsOneProcess(t *testing.T) {
	bus := NewMemoryBus()
	startResponder(t, bus, capability.Descriptor{ProcessID: "com.new", EntryID: "Time", CapabilityType: "time"})
	startResponder(t, bus, capability.Descriptor{ProcessID: "com.other", EntryID: "Date", CapabilityType: "date"})

	store := catalog.New()
	d, err := New(store, WithBus(bus), WithWindow(testWindow))
	require.NoError(t, err)

	added := d.Probe(context.Background(), "com.new")
	assert.Equal(t, []capability.Descriptor{{ProcessID: "com.new", EntryID: "Time", CapabilityType: "time"}}, added)
	assert.Equal(t, 1, store.Len())

	assert.Nil(t, d.Probe(context.Background(), "com.new"), "already known")
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestGuessType(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"com.example.DateCalculator", "date"},
		{"com.example.datecalc", "date"},
		{"time-provider", "time"},
		{"org.acme.TimeZoneTool", "time"},
		{"com.acme.CalendarSync", "schedule"},
		{"scheduler_service", "schedule"},
		{"files.reader", "file"},
		{"com.example.mydatecalc", "date"},
		{"com.acme.worldtimeservice", "time"},
		{"com.example.update", "date"},
		{"com.example.DateTimeTool", "date"},
		{"com.example.weather", capability.UnknownType},
		{"", capability.UnknownType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GuessType(tt.name))
		})
	}
}

func TestResolveTypePrefersMetadata(t *testing.T) {
	c := Component{ProcessID: "com.example.date", Metadata: map[string]string{MetadataType: "time"}}
	assert.Equal(t, "time", ResolveType(c))
	c.Metadata[MetadataType] = "  "
	assert.Equal(t, "date", ResolveType(c))

	for _, key := range []string{"serviceType", "ServiceType", "service_type"} {
		c := Component{ProcessID: "com.example.date", Metadata: map[string]string{key: "schedule"}}
		assert.Equal(t, "schedule", ResolveType(c), "key %q", key)
	}
}

func TestNewRedisBusBadURL(t *testing.T) {
	_, err := NewRedisBus("not a url", "host")
	require.Error(t, err)

	bus, err := NewRedisBus("redis://localhost:6379/0", "host")
	require.NoError(t, err)
	assert.Equal(t, "host:"+TopicRequest, bus.channel(TopicRequest))
	require.NoError(t, bus.Close())
}
