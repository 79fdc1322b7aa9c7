package events

import (
	"strings"

	"github.com/ahmedelshiha/NextAccounting229/pkg/sdk"
)

// Filter selects which event types a subscriber receives.
type Filter struct {
	all   bool
	types map[sdk.EventType]struct{}
}

// NewFilter builds a filter from requested names. No names, or any name
// equal to "all", matches everything. Unknown names are kept and never match.
func NewFilter(names []string) Filter {
	f := Filter{types: make(map[sdk.EventType]struct{}, len(names))}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if n == sdk.AllEvents {
			return Filter{all: true}
		}
		f.types[sdk.EventType(n)] = struct{}{}
	}
	if len(f.types) == 0 {
		return Filter{all: true}
	}
	return f
}

// ParseFilter splits a comma separated query value.
func ParseFilter(raw string) Filter {
	return NewFilter(strings.Split(raw, ","))
}

func (f Filter) Matches(t sdk.EventType) bool {
	if f.all {
		return true
	}
	_, ok := f.types[t]
	return ok
}

func (f Filter) All() bool { return f.all }

// Names returns the requested types for logging.
func (f Filter) Names() []string {
	if f.all {
		return []string{sdk.AllEvents}
	}
	out := make([]string, 0, len(f.types))
	for _, et := range sdk.EventTypes {
		if _, ok := f.types[et]; ok {
			out = append(out, string(et))
		}
	}
	for t := range f.types {
		if !t.Known() {
			out = append(out, string(t))
		}
	}
	return out
}
