package plugin

import (
	"errors"
	"fmt"
	"regexp"
	"slices"

	"github.com/kantek-org/kantek/events"
)

// Which direction of events a registration receives.
type OutgoingFilter int

const (
	Any OutgoingFilter = iota
	// Only events authored by the operator
	OnlyOutgoing
	// Only events from other accounts
	OnlyIncoming
)

func (f OutgoingFilter) accepts(outgoing bool) bool {
	switch f {
	case OnlyOutgoing:
		return outgoing
	case OnlyIncoming:
		return !outgoing
	default:
		return true
	}
}

type Handler func(c *Context) error

type Registration struct {
	Name string
	// Matched against the start of the event's raw text. Empty matches every event, including chat actions (which have no text).
	Pattern string
	// Event kinds the registration receives. Empty means message events only.
	Kinds    []events.Kind
	Outgoing OutgoingFilter
	Handler  Handler
	// Usage text shown by the help command. Registrations without help text are not listed.
	Help string
	// Run the handler on its own goroutine once started, so long workflows do not hold up later events of the same chat.
	Async bool

	re *regexp.Regexp
}

// The registration is invalid (bad pattern, missing handler, or registered after the registry was built).
type ConfigError struct {
	Name    string
	Pattern string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Pattern != "" {
		return fmt.Sprintf("registering %q (pattern %q): %s", e.Name, e.Pattern, e.Err)
	}
	return fmt.Sprintf("registering %q: %s", e.Name, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var ErrRegistryBuilt = errors.New("registry already built")

func (r *Registration) accepts(evt *events.Event) bool {
	kinds := r.Kinds
	if len(kinds) == 0 {
		kinds = []events.Kind{events.KindMessage}
	}
	return slices.Contains(kinds, evt.Kind()) && r.Outgoing.accepts(evt.Outgoing)
}

// Returns the submatches of the pattern against the event text, or nil if it does not match.
func (r *Registration) match(evt *events.Event) []string {
	if r.re == nil {
		return []string{evt.RawText()}
	}
	return r.re.FindStringSubmatch(evt.RawText())
}

// Collects registrations at startup. Not safe for concurrent use.
type Builder struct {
	regs  []Registration
	built bool
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) Register(reg Registration) error {
	if b.built {
		return &ConfigError{Name: reg.Name, Err: ErrRegistryBuilt}
	}
	if reg.Name == "" {
		return &ConfigError{Pattern: reg.Pattern, Err: errors.New("missing name")}
	}
	if reg.Handler == nil {
		return &ConfigError{Name: reg.Name, Pattern: reg.Pattern, Err: errors.New("missing handler")}
	}
	if reg.Pattern != "" {
		re, err := regexp.Compile(`^(?:` + reg.Pattern + `)`)
		if err != nil {
			return &ConfigError{Name: reg.Name, Pattern: reg.Pattern, Err: err}
		}
		reg.re = re
	}
	reg.Kinds = slices.Clone(reg.Kinds)
	b.regs = append(b.regs, reg)
	return nil
}

// Freezes the registrations, in registration order. The builder rejects further registrations.
func (b *Builder) Build() *Registry {
	b.built = true
	return &Registry{regs: slices.Clone(b.regs)}
}

// Immutable, ordered set of registrations. Safe for concurrent use.
type Registry struct {
	regs []Registration
}

type Match struct {
	Registration *Registration
	Groups       []string
}

// Registrations which fire for the event, in registration order.
func (r *Registry) Match(evt *events.Event) []Match {
	var out []Match
	for i := range r.regs {
		reg := &r.regs[i]
		if !reg.accepts(evt) {
			continue
		}
		if groups := reg.match(evt); groups != nil {
			out = append(out, Match{Registration: reg, Groups: groups})
		}
	}
	return out
}

// Copies of all registrations, in order.
func (r *Registry) Registrations() []Registration {
	return slices.Clone(r.regs)
}
