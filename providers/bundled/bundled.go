// Package bundled looks up the providers shipped with this module by
// capability type, so binaries can select them from flags.
package bundled

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/bpowers/go-modelcontext/capability"
	"github.com/bpowers/go-modelcontext/providers/calendar"
	"github.com/bpowers/go-modelcontext/providers/datecalc"
	"github.com/bpowers/go-modelcontext/providers/fsprovider"
	"github.com/bpowers/go-modelcontext/providers/timecalc"
)

// Options carries the settings a factory may need.
type Options struct {
	// FilesRoot is the directory served by the file provider.
	FilesRoot string
	// Zone names the time zone used by the time and schedule providers.
	// Empty means the local zone.
	Zone string
}

// Factory builds a provider.
type Factory func(opts Options) (capability.Provider, error)

var factories = map[string]Factory{
	datecalc.ServiceType: func(Options) (capability.Provider, error) {
		return datecalc.New(nil), nil
	},
	timecalc.ServiceType: func(opts Options) (capability.Provider, error) {
		if opts.Zone == "" {
			return timecalc.New(), nil
		}
		if _, err := time.LoadLocation(opts.Zone); err != nil {
			return nil, fmt.Errorf("time provider: %w", err)
		}
		return timecalc.New(timecalc.WithDefaultZone(opts.Zone)), nil
	},
	calendar.ServiceType: func(opts Options) (capability.Provider, error) {
		loc := time.Local
		if opts.Zone != "" {
			var err error
			if loc, err = time.LoadLocation(opts.Zone); err != nil {
				return nil, fmt.Errorf("schedule provider: %w", err)
			}
		}
		return calendar.New(calendar.NewMemorySurface(), calendar.WithLocation(loc)), nil
	},
	fsprovider.ServiceType: func(opts Options) (capability.Provider, error) {
		root := opts.FilesRoot
		if root == "" {
			wd, err := os.Getwd()
			if err != nil {
				return nil, fmt.Errorf("file provider: %w", err)
			}
			root = wd
		}
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("file provider: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("file provider: %s is not a directory", root)
		}
		return fsprovider.New(os.DirFS(root)), nil
	},
}

// Lookup returns the factory for capType.
func Lookup(capType string) (Factory, bool) {
	f, ok := factories[capType]
	return f, ok
}

// New builds the provider for capType.
func New(capType string, opts Options) (capability.Provider, error) {
	f, ok := Lookup(capType)
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (known: %v)", capType, Types())
	}
	return f(opts)
}

// Types returns the bundled capability types in lexical order.
func Types() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
