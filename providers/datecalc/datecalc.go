// Package datecalc is the bundled date arithmetic provider.
package datecalc

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
	ServiceType = "date"
	Version     = "DateCalculator Service v1.1"

	CurrentURI  = "date://current"
	CalendarURI = "date://calendar"

	// ResultLayout formats the results of add_days and add_months.
	ResultLayout = "2006-01-02 15:04:05"
)

// InvalidNumber is the Calculate result for a non-integer input.
const InvalidNumber = "Error: Invalid number format"

// Provider answers date arithmetic relative to the current time.
type Provider struct {
	providers.Base
	now providers.Clock
}

var _ capability.Provider = (*Provider)(nil)

// New returns a date provider. A nil clock means time.Now.
func New(now providers.Clock) *Provider {
	if now == nil {
		now = time.Now
	}
	p := &Provider{Base: providers.NewBase(ServiceType, Version), now: now}

	p.MustRegister(capability.Tool{
		Name:        "add_days",
		Description: "Adds specified number of days to the current date",
		InputSchema: schema.NewObject(map[string]*schema.JSON{
			"days": schema.Prop(schema.Number, "Number of days to add"),
		}, "days").String(),
	}, func(_ context.Context, args *capability.Args) []capability.Content {
		days := args.Int("days")
		if args.Err() != nil {
			return nil
		}
		return []capability.Content{capability.TextContent(p.addDays(days))}
	})

	p.MustRegister(capability.Tool{
		Name:        "add_months",
		Description: "Adds specified number of months to the current date",
		InputSchema: schema.NewObject(map[string]*schema.JSON{
			"months": schema.Prop(schema.Number, "Number of months to add"),
		}, "months").String(),
	}, func(_ context.Context, args *capability.Args) []capability.Content {
		months := args.Int("months")
		if args.Err() != nil {
			return nil
		}
		return []capability.Content{capability.TextContent(p.addMonths(months))}
	})

	p.MustRegisterResource(capability.Resource{
		URI:         CurrentURI,
		Name:        "Current Date",
		Description: "Current date information",
		MIMEType:    "text/plain",
	}, func(context.Context) []capability.Content {
		return []capability.Content{capability.TextContent(p.now().Format("2006-01-02"))}
	})

	p.MustRegisterResource(capability.Resource{
		URI:         CalendarURI,
		Name:        "Calendar Information",
		Description: "Current calendar information including year, month, day",
		MIMEType:    "application/json",
	}, func(context.Context) []capability.Content {
		return []capability.Content{p.calendarInfo()}
	})

	return p
}

// Calculate adds the given number of days to today.
func (p *Provider) Calculate(_ context.Context, value string) (string, error) {
	days, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return InvalidNumber, nil
	}
	return p.addDays(days), nil
}

func (p *Provider) addDays(days int) string {
	result := p.now().AddDate(0, 0, days).Format(ResultLayout)
	logging.For("datecalc").Debug("added days", "days", days, "result", result)
	return result
}

func (p *Provider) addMonths(months int) string {
	result := AddMonths(p.now(), months).Format(ResultLayout)
	logging.For("datecalc").Debug("added months", "months", months, "result", result)
	return result
}

// AddMonths moves t by n calendar months, clamping the day to the length of
// the target month: Jan 31 + 1 month is the last day of February.
func AddMonths(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	first := time.Date(year, month+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first); day > last {
		day = last
	}
	return first.AddDate(0, 0, day-1)
}

func daysIn(firstOfMonth time.Time) int {
	return firstOfMonth.AddDate(0, 1, -1).Day()
}

type calendarDoc struct {
	Year      int `json:"year"`
	Month     int `json:"month"`
	Day       int `json:"day"`
	DayOfWeek int `json:"dayOfWeek"`
	DayOfYear int `json:"dayOfYear"`
}

func (p *Provider) calendarInfo() capability.Content {
	now := p.now()
	doc := calendarDoc{
		Year:  now.Year(),
		Month: int(now.Month()),
		Day:   now.Day(),
		// Sunday is 1.
		DayOfWeek: int(now.Weekday()) + 1,
		DayOfYear: now.YearDay(),
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return capability.ErrorContent("encode calendar: %v", err)
	}
	return capability.JSONContent(string(data))
}
