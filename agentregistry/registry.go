// Package agentregistry resolves the symbolic agent names a workflow
// references to concrete agent definitions the host runtime can start a
// session for. It never starts or manages sessions itself.
package agentregistry

import (
	"sort"

	"github.com/gomind-flow/flowcore/flowerrors"
)

// AgentDefinition describes one agent the host or a workflow author has
// registered.
type AgentDefinition struct {
	Name         string
	SystemPrompt string
	Model        string
	Custom       bool // true if registered by the workflow author, not the host
}

// ResolvedAgent is the outcome of a successful Resolve call. Model is
// carried through for callers that report or log which model an agent is
// bound to; it is the host's concern at session-start, not a parameter
// the AgentAdapter's session.create/session.prompt calls take per §4.5.
type ResolvedAgent struct {
	Name         string
	SystemPrompt string
	Model        string
}

// AgentRegistry is a read-only resolver. Implementations must not mutate
// state from Resolve; registration happens out of band (construction or
// a builder, never through this interface).
type AgentRegistry interface {
	Resolve(name string) (ResolvedAgent, error)
	Names() []string
}

// HostLister is the narrow host contract a StaticRegistry delegates to for
// builtin agent definitions it does not own. The host, not the registry,
// is the source of truth for what's built in; a StaticRegistry never
// copies the host's list into its own state, so a host whose builtins
// change between calls is reflected without reconstructing the registry.
type HostLister interface {
	ListAgents() []AgentDefinition
}

// StaticHostLister is a HostLister backed by a fixed slice, for callers
// (tests, flowctl) that have no live host to delegate to.
type StaticHostLister []AgentDefinition

func (l StaticHostLister) ListAgents() []AgentDefinition { return l }

// StaticRegistry resolves against a fixed set of workflow-scoped custom
// definitions plus whatever a delegated HostLister currently reports,
// preferring a custom (workflow-author) definition over a host-builtin
// one of the same name.
type StaticRegistry struct {
	custom map[string]AgentDefinition
	host   HostLister
}

// NewStaticRegistry builds a registry from custom (workflow-scoped)
// definitions and a host the registry delegates builtin lookups to. A
// name present in both custom and the host's list resolves to custom.
// host may be nil, meaning no builtins are available.
func NewStaticRegistry(custom map[string]AgentDefinition, host HostLister) *StaticRegistry {
	c := make(map[string]AgentDefinition, len(custom))
	for name, d := range custom {
		c[name] = d
	}
	return &StaticRegistry{custom: c, host: host}
}

func (r *StaticRegistry) Resolve(name string) (ResolvedAgent, error) {
	if d, ok := r.custom[name]; ok {
		return ResolvedAgent{Name: d.Name, SystemPrompt: d.SystemPrompt, Model: d.Model}, nil
	}
	if r.host != nil {
		for _, d := range r.host.ListAgents() {
			if d.Name == name {
				return ResolvedAgent{Name: d.Name, SystemPrompt: d.SystemPrompt, Model: d.Model}, nil
			}
		}
	}
	return ResolvedAgent{}, &flowerrors.AgentResolutionError{Name: name, KnownNames: r.Names()}
}

func (r *StaticRegistry) Names() []string {
	seen := make(map[string]bool, len(r.custom))
	for n := range r.custom {
		seen[n] = true
	}
	if r.host != nil {
		for _, d := range r.host.ListAgents() {
			seen[d.Name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
