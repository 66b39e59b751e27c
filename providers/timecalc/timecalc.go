// Package timecalc is the bundled time-of-day arithmetic provider.
package timecalc

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/bpowers/go-modelcontext/capability"
	"github.com/bpowers/go-modelcontext/internal/logging"
	"github.com/bpowers/go-modelcontext/providers"
	"github.com/bpowers/go-modelcontext/schema"
)

const (
	ServiceType = "time"
	Version     = "TimeCalculator Service v1.1"

	CurrentURI = "time://current"
	ZonesURI   = "time://zones"

	ResultLayout = "2006-01-02 15:04:05"

	maxZones = 50
)

const InvalidNumber = "Error: Invalid number format"

// Zones is the list published by time://zones. The runtime cannot enumerate
// the tz database, so the list is fixed.
var Zones = []string{
	"UTC",
	"Africa/Cairo",
	"Africa/Johannesburg",
	"Africa/Lagos",
	"Africa/Nairobi",
	"America/Anchorage",
	"America/Argentina/Buenos_Aires",
	"America/Bogota",
	"America/Chicago",
	"America/Denver",
	"America/Halifax",
	"America/Los_Angeles",
	"America/Mexico_City",
	"America/New_York",
	"America/Phoenix",
	"America/Santiago",
	"America/Sao_Paulo",
	"America/Toronto",
	"America/Vancouver",
	"Asia/Bangkok",
	"Asia/Dhaka",
	"Asia/Dubai",
	"Asia/Hong_Kong",
	"Asia/Jakarta",
	"Asia/Jerusalem",
	"Asia/Karachi",
	"Asia/Kolkata",
	"Asia/Manila",
	"Asia/Seoul",
	"Asia/Shanghai",
	"Asia/Singapore",
	"Asia/Taipei",
	"Asia/Tehran",
	"Asia/Tokyo",
	"Atlantic/Reykjavik",
	"Australia/Adelaide",
	"Australia/Brisbane",
	"Australia/Perth",
	"Australia/Sydney",
	"Europe/Amsterdam",
	"Europe/Athens",
	"Europe/Berlin",
	"Europe/Istanbul",
	"Europe/London",
	"Europe/Madrid",
	"Europe/Moscow",
	"Europe/Paris",
	"Europe/Rome",
	"Pacific/Auckland",
	"Pacific/Honolulu",
}

// Option configures a Provider.
type Option func(*Provider)

// WithClock overrides time.Now.
func WithClock(now providers.Clock) Option {
	return func(p *Provider) {
		p.now = now
	}
}

// WithDefaultZone overrides the zone reported as defaultZone.
func WithDefaultZone(name string) Option {
	return func(p *Provider) {
		p.defaultZone = name
	}
}

// Provider answers time arithmetic relative to the current time.
type Provider struct {
	providers.Base
	now         providers.Clock
	defaultZone string
}

var _ capability.Provider = (*Provider)(nil)

// New returns a time provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		Base:        providers.NewBase(ServiceType, Version),
		now:         time.Now,
		defaultZone: time.Local.String(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	p.MustRegister(capability.Tool{
		Name:        "add_hours",
		Description: "Adds specified number of hours to the current time",
		InputSchema: schema.NewObject(map[string]*schema.JSON{
			"hours": schema.Prop(schema.Number, "Number of hours to add"),
		}, "hours").String(),
	}, func(_ context.Context, args *capability.Args) []capability.Content {
		hours := args.Int("hours")
		if args.Err() != nil {
			return nil
		}
		return []capability.Content{capability.TextContent(p.add(time.Duration(hours) * time.Hour))}
	})

	p.MustRegister(capability.Tool{
		Name:        "add_minutes",
		Description: "Adds specified number of minutes to the current time",
		InputSchema: schema.NewObject(map[string]*schema.JSON{
			"minutes": schema.Prop(schema.Number, "Number of minutes to add"),
		}, "minutes").String(),
	}, func(_ context.Context, args *capability.Args) []capability.Content {
		minutes := args.Int("minutes")
		if args.Err() != nil {
			return nil
		}
		return []capability.Content{capability.TextContent(p.add(time.Duration(minutes) * time.Minute))}
	})

	p.MustRegisterResource(capability.Resource{
		URI:         CurrentURI,
		Name:        "Current Time",
		Description: "Current time information",
		MIMEType:    "text/plain",
	}, func(context.Context) []capability.Content {
		return []capability.Content{capability.TextContent(p.now().Format("15:04:05"))}
	})

	p.MustRegisterResource(capability.Resource{
		URI:         ZonesURI,
		Name:        "Time Zones",
		Description: "List of available time zones",
		MIMEType:    "application/json",
	}, func(context.Context) []capability.Content {
		return []capability.Content{p.zones()}
	})

	return p
}

// Calculate adds the given number of hours to the current time.
func (p *Provider) Calculate(_ context.Context, value string) (string, error) {
	hours, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return InvalidNumber, nil
	}
	return p.add(time.Duration(hours) * time.Hour), nil
}

func (p *Provider) add(d time.Duration) string {
	result := p.now().Add(d).Format(ResultLayout)
	logging.For("timecalc").Debug("added duration", "duration", d, "result", result)
	return result
}

func (p *Provider) zones() capability.Content {
	zones := Zones
	if len(zones) > maxZones {
		zones = zones[:maxZones]
	}
	data, err := json.Marshal(struct {
		Zones       []string `json:"zones"`
		DefaultZone string   `json:"defaultZone"`
	}{zones, p.defaultZone})
	if err != nil {
		return capability.ErrorContent("encode zones: %v", err)
	}
	return capability.JSONContent(string(data))
}
