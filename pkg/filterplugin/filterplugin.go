// Package filterplugin loads Filter Chain predicates (spec.md §2, §4.10)
// from two sources: builtin Go functions registered at init() time, and
// hot-reloaded YAML rule files watched with fsnotify.
package filterplugin

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/fmuellner/telepathy-mission-control/pkg/filterchain"
)

// Source identifies where a Plugin's predicate came from.
type Source string

const (
	SourceBuiltin Source = "builtin"
	SourceFile    Source = "file"
)

// Plugin is one loaded filter: the channel type/direction it applies to,
// its compiled predicate, and bookkeeping about where it came from.
type Plugin struct {
	Name        string
	ChannelType string
	Direction   filterchain.Direction
	Enabled     bool
	Source      Source
	FilePath    string // set when Source == SourceFile

	Predicate filterchain.Filter
}

// BuiltinFunc constructs a channel-property predicate. Builtins are
// compiled in and registered via RegisterBuiltin from an init() function.
type BuiltinFunc func() filterchain.Filter

var (
	builtinsMu sync.RWMutex
	builtins   = make(map[string]BuiltinFunc)
)

// RegisterBuiltin adds a named builtin predicate constructor to the
// process-wide registry. Intended to be called from init().
func RegisterBuiltin(name string, fn BuiltinFunc) {
	builtinsMu.Lock()
	defer builtinsMu.Unlock()
	if _, exists := builtins[name]; exists {
		panic(fmt.Sprintf("filterplugin: builtin %q already registered", name))
	}
	builtins[name] = fn
}

// Builtin looks up a registered builtin by name.
func Builtin(name string) (BuiltinFunc, bool) {
	builtinsMu.RLock()
	defer builtinsMu.RUnlock()
	fn, ok := builtins[name]
	return fn, ok
}

// BuiltinNames returns every currently registered builtin name.
func BuiltinNames() []string {
	builtinsMu.RLock()
	defer builtinsMu.RUnlock()
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	return names
}

// LoadBuiltin instantiates a Plugin wrapping a registered builtin,
// installing it into chain under (channelType, direction).
func LoadBuiltin(chain *filterchain.Chain, name, channelType string, direction filterchain.Direction) (*Plugin, error) {
	fn, ok := Builtin(name)
	if !ok {
		return nil, fmt.Errorf("filterplugin: no builtin registered as %q", name)
	}

	predicate := fn()
	chain.Add(channelType, direction, name, predicate)

	return &Plugin{
		Name:        name,
		ChannelType: channelType,
		Direction:   direction,
		Enabled:     true,
		Source:      SourceBuiltin,
		Predicate:   predicate,
	}, nil
}

// matchRule is one property-matching clause of a rule file entry. Exactly
// one of Equals or Regex should be set.
type matchRule struct {
	Property string `yaml:"property" json:"property" jsonschema:"required,description=channel property key to inspect"`
	Equals   string `yaml:"equals,omitempty" json:"equals,omitempty" jsonschema:"description=exact string match against the property value"`
	Regex    string `yaml:"regex,omitempty" json:"regex,omitempty" jsonschema:"description=regular expression match against the property value"`
}

func (r matchRule) compile() (func(map[string]any) bool, error) {
	if r.Property == "" {
		return nil, fmt.Errorf("match rule missing property")
	}

	if r.Regex != "" {
		re, err := regexp.Compile(r.Regex)
		if err != nil {
			return nil, fmt.Errorf("invalid regex %q for property %q: %w", r.Regex, r.Property, err)
		}
		property := r.Property
		return func(props map[string]any) bool {
			v, ok := props[property]
			if !ok {
				return false
			}
			s, ok := v.(string)
			if !ok {
				return false
			}
			return re.MatchString(s)
		}, nil
	}

	property, want := r.Property, r.Equals
	return func(props map[string]any) bool {
		v, ok := props[property]
		if !ok {
			return false
		}
		s, ok := v.(string)
		if !ok {
			return false
		}
		return s == want
	}, nil
}

// Rule is one named predicate declared in a hot-loaded YAML rule file.
// All Match clauses must pass (logical AND) for the rule to accept a
// channel.
type Rule struct {
	Name        string      `yaml:"name" json:"name" jsonschema:"required,description=unique filter name within this file"`
	ChannelType string      `yaml:"channel_type" json:"channel_type" jsonschema:"required,description=channel type this filter applies to, e.g. org.example.Call"`
	Direction   string      `yaml:"direction" json:"direction" jsonschema:"required,enum=incoming,enum=outgoing,description=channel direction this filter applies to"`
	Enabled     *bool       `yaml:"enabled,omitempty" json:"enabled,omitempty" jsonschema:"description=defaults to true when omitted"`
	Match       []matchRule `yaml:"match" json:"match" jsonschema:"required,minItems=1,description=property-matching clauses, all of which must pass"`
}

func (r Rule) enabled() bool {
	return r.Enabled == nil || *r.Enabled
}

func (r Rule) compile() (filterchain.Filter, error) {
	if len(r.Match) == 0 {
		return nil, fmt.Errorf("rule %q has no match clauses", r.Name)
	}

	compiled := make([]func(map[string]any) bool, 0, len(r.Match))
	for _, m := range r.Match {
		fn, err := m.compile()
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		compiled = append(compiled, fn)
	}

	return func(props map[string]any) bool {
		for _, fn := range compiled {
			if !fn(props) {
				return false
			}
		}
		return true
	}, nil
}

// RuleFile is the top-level shape of a hot-loaded YAML rule file, and the
// type reflected into the JSON Schema `dispatchctl filters schema` prints.
type RuleFile struct {
	Rules []Rule `yaml:"rules" json:"rules" jsonschema:"required,minItems=1,description=filter rules declared in this file"`
}
