// Package routing provides per-recipient gateway resolution for smshub.
//
// Resolution is extensible through an ordered list of resolvers registered at
// startup. Each resolver may propose zero or more (gateway, priority)
// candidates for a recipient; the highest priority wins, and on a priority
// tie the resolver registered last wins. The tie rule is deliberate: a
// later-registered override (for example a test resolver) always beats an
// earlier site-wide rule of equal priority.
package routing

import (
	"context"

	"github.com/kart-io/smshub/pkg/errors"
	"github.com/kart-io/smshub/pkg/gateway"
	"github.com/kart-io/smshub/pkg/logger"
)

// Candidate pairs a gateway id with a resolution priority. Candidates are
// transient and never persisted.
type Candidate struct {
	GatewayID string `json:"gateway_id"`
	Priority  int    `json:"priority"`
}

// Resolver proposes gateway candidates for a recipient phone number.
type Resolver interface {
	// ResolveGateway returns candidates for the recipient, possibly none.
	ResolveGateway(ctx context.Context, recipient string) []Candidate
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, recipient string) []Candidate

// ResolveGateway implements Resolver.
func (f ResolverFunc) ResolveGateway(ctx context.Context, recipient string) []Candidate {
	return f(ctx, recipient)
}

// Engine resolves each recipient to exactly one gateway or fails explicitly.
type Engine struct {
	resolvers []Resolver
	registry  *gateway.Registry
	logger    logger.Logger
}

// NewEngine creates a resolution engine backed by the given registry.
func NewEngine(registry *gateway.Registry, log logger.Logger) *Engine {
	if log == nil {
		log = logger.Discard
	}
	return &Engine{
		resolvers: make([]Resolver, 0),
		registry:  registry,
		logger:    log,
	}
}

// AddResolver appends a resolver. Registration order matters: on equal
// priority a later resolver's candidate wins.
func (e *Engine) AddResolver(r Resolver) {
	e.resolvers = append(e.resolvers, r)
}

// ResolveGateway returns the single gateway that should handle the recipient.
// When no resolver proposes a candidate the registry default is used; when
// there is no default either, resolution fails with NO_GATEWAY_FOR_RECIPIENT.
func (e *Engine) ResolveGateway(ctx context.Context, recipient string) (gateway.Gateway, error) {
	var best *Candidate
	for _, resolver := range e.resolvers {
		for _, cand := range resolver.ResolveGateway(ctx, recipient) {
			cand := cand
			// >= makes the last candidate at equal priority win.
			if best == nil || cand.Priority >= best.Priority {
				best = &cand
			}
		}
	}

	if best != nil {
		gw, err := e.registry.Gateway(best.GatewayID)
		if err != nil {
			return nil, err
		}
		e.logger.Debug("Gateway resolved",
			"recipient", recipient,
			"gateway", best.GatewayID,
			"priority", best.Priority)
		return gw, nil
	}

	gw, err := e.registry.Default()
	if err != nil {
		return nil, err
	}
	if gw == nil {
		return nil, errors.Newf(errors.ErrNoGatewayForRecipient,
			"no gateway for recipient %s", recipient).WithRecipient(recipient)
	}

	e.logger.Debug("Gateway resolution fell back to default",
		"recipient", recipient, "gateway", gw.ID())
	return gw, nil
}

// StaticResolver maps exact recipient numbers to a gateway at a fixed
// priority. Useful for per-number overrides and tests.
type StaticResolver struct {
	routes   map[string]string
	priority int
}

// NewStaticResolver creates a static per-recipient resolver.
func NewStaticResolver(routes map[string]string, priority int) *StaticResolver {
	return &StaticResolver{routes: routes, priority: priority}
}

// ResolveGateway implements Resolver.
func (s *StaticResolver) ResolveGateway(_ context.Context, recipient string) []Candidate {
	if id, ok := s.routes[recipient]; ok {
		return []Candidate{{GatewayID: id, Priority: s.priority}}
	}
	return nil
}

// PrefixResolver routes recipients by phone number prefix, longest prefix
// first. Typically used for country-code based routing.
type PrefixResolver struct {
	prefixes map[string]string
	priority int
}

// NewPrefixResolver creates a prefix-based resolver.
func NewPrefixResolver(prefixes map[string]string, priority int) *PrefixResolver {
	return &PrefixResolver{prefixes: prefixes, priority: priority}
}

// ResolveGateway implements Resolver.
func (p *PrefixResolver) ResolveGateway(_ context.Context, recipient string) []Candidate {
	bestLen := -1
	bestID := ""
	for prefix, id := range p.prefixes {
		if len(prefix) > bestLen && hasPrefix(recipient, prefix) {
			bestLen = len(prefix)
			bestID = id
		}
	}
	if bestLen < 0 {
		return nil
	}
	return []Candidate{{GatewayID: bestID, Priority: p.priority}}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
