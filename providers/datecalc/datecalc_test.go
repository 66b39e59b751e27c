package datecalc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpowers/go-modelcontext/capability"
)

var fixedNow = time.Date(2025, 1, 31, 13, 45, 10, 0, time.UTC)

func newTestProvider() *Provider {
	return New(func() time.Time { return fixedNow })
}

func TestCalculate(t *testing.T) {
	p := newTestProvider()
	ctx := context.Background()

	got, err := p.Calculate(ctx, "3")
	require.NoError(t, err)
	assert.Equal(t, "2025-02-03 13:45:10", got)

	got, err = p.Calculate(ctx, "-31")
	require.NoError(t, err)
	assert.Equal(t, "2024-12-31 13:45:10", got)

	got, err = p.Calculate(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, InvalidNumber, got)
}

func TestTools(t *testing.T) {
	p := newTestProvider()
	ctx := context.Background()

	got, err := p.CallTool(ctx, "add_days", `{"days":1}`)
	require.NoError(t, err)
	assert.Equal(t, []capability.Content{capability.TextContent("2025-02-01 13:45:10")}, got)

	got, err = p.CallTool(ctx, "add_months", `{"months":1}`)
	require.NoError(t, err)
	assert.Equal(t, []capability.Content{capability.TextContent("2025-02-28 13:45:10")}, got)

	got, err = p.CallTool(ctx, "add_days", `{"weeks":1}`)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].IsError)
	assert.Contains(t, got[0].Payload, "Invalid arguments")

	got, err = p.CallTool(ctx, "add_years", `{}`)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Unknown tool: add_years", got[0].Payload)
}

func TestAddMonths(t *testing.T) {
	tests := []struct {
		from   time.Time
		months int
		want   time.Time
	}{
		{time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), 1, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
		{time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), -1, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)},
		{time.Date(2025, 5, 15, 0, 0, 0, 0, time.UTC), 12, time.Date(2026, 5, 15, 0, 0, 0, 0, time.UTC)},
		{time.Date(2025, 11, 30, 0, 0, 0, 0, time.UTC), 3, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AddMonths(tt.from, tt.months), "%s + %d", tt.from, tt.months)
	}
}

func TestResources(t *testing.T) {
	p := newTestProvider()
	ctx := context.Background()

	resources, err := p.ListResources(ctx)
	require.NoError(t, err)
	require.Len(t, resources, 2)
	assert.Equal(t, CurrentURI, resources[0].URI)
	assert.Equal(t, CalendarURI, resources[1].URI)

	got, err := p.ReadResource(ctx, CurrentURI)
	require.NoError(t, err)
	assert.Equal(t, []capability.Content{capability.TextContent("2025-01-31")}, got)

	got, err = p.ReadResource(ctx, CalendarURI)
	require.NoError(t, err)
	require.Len(t, got, 1)
	// 2025-01-31 is a Friday.
	assert.JSONEq(t, `{"year":2025,"month":1,"day":31,"dayOfWeek":6,"dayOfYear":31}`, got[0].Payload)

	got, err = p.ReadResource(ctx, "data://calendar")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].IsError)
}
