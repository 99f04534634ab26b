package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/smshub/pkg/errors"
	"github.com/kart-io/smshub/pkg/gateway"
	"github.com/kart-io/smshub/pkg/message"
	"github.com/kart-io/smshub/pkg/report"
)

type stubGateway struct{ id string }

func (s *stubGateway) ID() string                         { return s.id }
func (s *stubGateway) Capabilities() gateway.Capabilities { return gateway.Capabilities{} }
func (s *stubGateway) IsHealthy(context.Context) error    { return nil }
func (s *stubGateway) Close() error                       { return nil }

func (s *stubGateway) Send(context.Context, *message.Message) (*report.Result, error) {
	return report.NewResult(), nil
}

func newRegistryWithGateways(t *testing.T, ids ...string) *gateway.Registry {
	t.Helper()
	registry := gateway.NewRegistry(nil)
	require.NoError(t, registry.RegisterPlugin("stub", func(cfg *gateway.Config) (gateway.Gateway, error) {
		return &stubGateway{id: cfg.ID}, nil
	}))
	for _, id := range ids {
		require.NoError(t, registry.AddGateway(&gateway.Config{ID: id, Plugin: "stub"}))
	}
	return registry
}

func TestResolveGateway_HighestPriorityWins(t *testing.T) {
	registry := newRegistryWithGateways(t, "low", "high")
	engine := NewEngine(registry, nil)
	engine.AddResolver(NewStaticResolver(map[string]string{"+1": "low"}, 1))
	engine.AddResolver(NewStaticResolver(map[string]string{"+1": "high"}, 10))

	gw, err := engine.ResolveGateway(context.Background(), "+1")
	require.NoError(t, err)
	assert.Equal(t, "high", gw.ID())
}

func TestResolveGateway_PriorityBeatsRegistrationOrder(t *testing.T) {
	registry := newRegistryWithGateways(t, "low", "high")
	engine := NewEngine(registry, nil)
	engine.AddResolver(NewStaticResolver(map[string]string{"+1": "high"}, 10))
	engine.AddResolver(NewStaticResolver(map[string]string{"+1": "low"}, 1))

	gw, err := engine.ResolveGateway(context.Background(), "+1")
	require.NoError(t, err)
	assert.Equal(t, "high", gw.ID())
}

func TestResolveGateway_TieBreakIsLastRegistered(t *testing.T) {
	registry := newRegistryWithGateways(t, "first", "second")
	engine := NewEngine(registry, nil)
	engine.AddResolver(NewStaticResolver(map[string]string{"+1": "first"}, 5))
	engine.AddResolver(NewStaticResolver(map[string]string{"+1": "second"}, 5))

	// The outcome must be stable across repeated resolutions.
	for i := 0; i < 100; i++ {
		gw, err := engine.ResolveGateway(context.Background(), "+1")
		require.NoError(t, err)
		require.Equal(t, "second", gw.ID())
	}
}

func TestResolveGateway_FallsBackToDefault(t *testing.T) {
	registry := newRegistryWithGateways(t, "fallback")
	require.NoError(t, registry.SetDefault("fallback"))
	engine := NewEngine(registry, nil)
	engine.AddResolver(NewStaticResolver(map[string]string{"+1": "fallback"}, 1))

	gw, err := engine.ResolveGateway(context.Background(), "+999")
	require.NoError(t, err)
	assert.Equal(t, "fallback", gw.ID())
}

func TestResolveGateway_NoMatchNoDefault(t *testing.T) {
	registry := newRegistryWithGateways(t, "gw")
	engine := NewEngine(registry, nil)

	gw, err := engine.ResolveGateway(context.Background(), "+999")
	assert.Nil(t, gw)
	require.Error(t, err)
	assert.Equal(t, errors.ErrNoGatewayForRecipient, errors.CodeOf(err))
}

func TestResolveGateway_UnknownCandidateGateway(t *testing.T) {
	registry := newRegistryWithGateways(t, "gw")
	engine := NewEngine(registry, nil)
	engine.AddResolver(NewStaticResolver(map[string]string{"+1": "missing"}, 1))

	gw, err := engine.ResolveGateway(context.Background(), "+1")
	assert.Nil(t, gw)
	require.Error(t, err)
	assert.Equal(t, errors.ErrGatewayNotFound, errors.CodeOf(err))
}

func TestResolverFunc(t *testing.T) {
	registry := newRegistryWithGateways(t, "custom")
	engine := NewEngine(registry, nil)
	engine.AddResolver(ResolverFunc(func(_ context.Context, recipient string) []Candidate {
		if recipient == "+49123" {
			return []Candidate{{GatewayID: "custom", Priority: 100}}
		}
		return nil
	}))

	gw, err := engine.ResolveGateway(context.Background(), "+49123")
	require.NoError(t, err)
	assert.Equal(t, "custom", gw.ID())
}

func TestResolveGateway_MultiCandidateResolver(t *testing.T) {
	registry := newRegistryWithGateways(t, "cheap", "fast")
	engine := NewEngine(registry, nil)
	engine.AddResolver(ResolverFunc(func(context.Context, string) []Candidate {
		return []Candidate{
			{GatewayID: "cheap", Priority: 1},
			{GatewayID: "fast", Priority: 9},
		}
	}))

	gw, err := engine.ResolveGateway(context.Background(), "+1")
	require.NoError(t, err)
	assert.Equal(t, "fast", gw.ID())
}

func TestPrefixResolver_LongestPrefixWins(t *testing.T) {
	resolver := NewPrefixResolver(map[string]string{
		"+1":    "us",
		"+1555": "us-test",
		"+44":   "uk",
	}, 5)

	tests := []struct {
		recipient string
		want      string
		match     bool
	}{
		{"+15551234", "us-test", true},
		{"+12025550100", "us", true},
		{"+442071234567", "uk", true},
		{"+33123", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.recipient, func(t *testing.T) {
			cands := resolver.ResolveGateway(context.Background(), tt.recipient)
			if !tt.match {
				assert.Empty(t, cands)
				return
			}
			require.Len(t, cands, 1)
			assert.Equal(t, tt.want, cands[0].GatewayID)
			assert.Equal(t, 5, cands[0].Priority)
		})
	}
}
