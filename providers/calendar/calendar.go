// Package calendar provides the scheduling capability: adding events to an
// external calendar and querying what is coming up.
package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bpowers/go-modelcontext/capability"
	"github.com/bpowers/go-modelcontext/internal/logging"
	"github.com/bpowers/go-modelcontext/providers"
	"github.com/bpowers/go-modelcontext/schema"
)

const (
	ServiceType = "schedule"
	Version     = "CalendarScheduler Adapter v1.1"
	// Layout is the expected format of day + " " + startTime.
	Layout = "2006-01-02 15:04"

	UpcomingURI  = "calendar://upcoming"
	upcomingDays = 7
)

// SuccessMessage is returned when an event was created.
const SuccessMessage = "Success: Event scheduled"

// Option configures a Provider.
type Option func(*Provider)

// WithClock overrides time.Now.
func WithClock(now providers.Clock) Option {
	return func(p *Provider) {
		p.now = now
	}
}

// WithLocation sets the zone event times are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(p *Provider) {
		p.loc = loc
	}
}

// Provider implements capability.Provider for the scheduling domain.
type Provider struct {
	providers.Base
	surface Surface
	now     providers.Clock
	loc     *time.Location
}

var _ capability.Provider = (*Provider)(nil)

// New returns a scheduling provider writing to surface.
func New(surface Surface, opts ...Option) *Provider {
	p := &Provider{
		Base:    providers.NewBase(ServiceType, Version),
		surface: surface,
		now:     time.Now,
		loc:     time.Local,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	p.MustRegister(capability.Tool{
		Name:        "add_event",
		Description: "Adds an event to the calendar",
		InputSchema: schema.NewObject(map[string]*schema.JSON{
			"title":           schema.Prop(schema.String, "Event title"),
			"location":        schema.Prop(schema.String, "Event location"),
			"day":             schema.Prop(schema.String, "Event date (YYYY-MM-DD)"),
			"startTime":       schema.Prop(schema.String, "Start time (HH:mm)"),
			"durationMinutes": schema.Prop(schema.Number, "Duration in minutes"),
		}, "title", "day", "startTime", "durationMinutes").String(),
	}, p.addEventTool)

	p.MustRegister(capability.Tool{
		Name:        "query_events",
		Description: "Queries upcoming events from the calendar",
		InputSchema: schema.NewObject(map[string]*schema.JSON{
			"days": schema.Prop(schema.Number, "Number of days to look ahead"),
		}, "days").String(),
	}, p.queryEventsTool)

	p.MustRegisterResource(capability.Resource{
		URI:         UpcomingURI,
		Name:        "Upcoming Events",
		Description: "List of upcoming calendar events",
		MIMEType:    "application/json",
	}, func(ctx context.Context) []capability.Content {
		return p.query(ctx, upcomingDays)
	})

	return p
}

// EventRequest is the argument shape of add_event, also accepted by Calculate.
type EventRequest struct {
	Title           string `json:"title"`
	Location        string `json:"location,omitzero"`
	Day             string `json:"day"`
	StartTime       string `json:"startTime"`
	DurationMinutes int    `json:"durationMinutes"`
}

func (p *Provider) addEventTool(ctx context.Context, args *capability.Args) []capability.Content {
	req := EventRequest{
		Title:           args.String("title"),
		Location:        args.OptString("location", ""),
		Day:             args.String("day"),
		StartTime:       args.String("startTime"),
		DurationMinutes: args.Int("durationMinutes"),
	}
	if args.Err() != nil {
		return nil
	}

	if _, err := p.addEvent(ctx, req); err != nil {
		return []capability.Content{capability.ErrorContent("%v", err)}
	}
	return []capability.Content{capability.TextContent(SuccessMessage)}
}

func (p *Provider) addEvent(ctx context.Context, req EventRequest) (string, error) {
	log := logging.For("calendar")

	start, err := time.ParseInLocation(Layout, req.Day+" "+req.StartTime, p.loc)
	if err != nil {
		return "", err
	}
	if req.DurationMinutes < 0 {
		return "", fmt.Errorf("durationMinutes must not be negative, got %d", req.DurationMinutes)
	}

	event := Event{
		Title:    req.Title,
		Location: req.Location,
		Start:    start,
		End:      start.Add(time.Duration(req.DurationMinutes) * time.Minute),
	}
	id, err := p.surface.Insert(ctx, event)
	if err != nil {
		return "", fmt.Errorf("calendar insert failed: %w", err)
	}
	log.Debug("event scheduled", "id", id, "title", req.Title, "start", start)
	return id, nil
}

func (p *Provider) queryEventsTool(ctx context.Context, args *capability.Args) []capability.Content {
	days := args.Int("days")
	if args.Err() != nil {
		return nil
	}
	if days < 0 {
		return []capability.Content{capability.ErrorContent("days must not be negative, got %d", days)}
	}
	return p.query(ctx, days)
}

type eventSummary struct {
	Title     string `json:"title"`
	Date      string `json:"date"`
	StartTime string `json:"startTime"`
	Duration  string `json:"duration"`
	Location  string `json:"location"`
}

type eventsDocument struct {
	Period string         `json:"period"`
	Events []eventSummary `json:"events"`
}

func (p *Provider) query(ctx context.Context, days int) []capability.Content {
	from := p.now().In(p.loc)
	events, err := p.surface.Between(ctx, from, from.AddDate(0, 0, days))
	if err != nil {
		return []capability.Content{capability.ErrorContent("calendar query failed: %v", err)}
	}

	doc := eventsDocument{
		Period: fmt.Sprintf("%d days", days),
		Events: make([]eventSummary, 0, len(events)),
	}
	for _, e := range events {
		start := e.Start.In(p.loc)
		doc.Events = append(doc.Events, eventSummary{
			Title:     e.Title,
			Date:      start.Format("2006-01-02"),
			StartTime: start.Format("15:04"),
			Duration:  fmt.Sprintf("%d minutes", int(e.Duration()/time.Minute)),
			Location:  e.Location,
		})
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return []capability.Content{capability.ErrorContent("encode events: %v", err)}
	}
	return []capability.Content{capability.JSONContent(string(data))}
}

// Calculate accepts an EventRequest as JSON and schedules it.
func (p *Provider) Calculate(ctx context.Context, value string) (string, error) {
	var req EventRequest
	if err := json.Unmarshal([]byte(value), &req); err != nil {
		return "Error: " + err.Error(), nil
	}
	if _, err := p.addEvent(ctx, req); err != nil {
		return "Error: " + err.Error(), nil
	}
	return SuccessMessage, nil
}

// FormatStart renders t the way add_event expects day and startTime.
func FormatStart(t time.Time) (day, startTime string) {
	s := t.Format(Layout)
	day, startTime, _ = strings.Cut(s, " ")
	return day, startTime
}

