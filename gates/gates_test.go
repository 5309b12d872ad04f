package gates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allSignalsOn() Signals {
	return Signals{
		ReplayEquivalent:      true,
		CapEnforcementActive:  true,
		HeartbeatPolicyActive: true,
		TrustGatingActive:     true,
		MutableGraphEnabled:   true,
		ReconcileEnabled:      true,
	}
}

func TestEvaluateMvpRegressionGates(t *testing.T) {
	t.Run("passes when every signal is true", func(t *testing.T) {
		report := EvaluateMvpRegressionGates(allSignalsOn())

		assert.True(t, report.Passed)
		require.Len(t, report.Gates, 6)
		for _, g := range report.Gates {
			assert.True(t, g.Passed, "gate %s", g.Name)
		}
	})

	t.Run("fails when every signal is false", func(t *testing.T) {
		report := EvaluateMvpRegressionGates(Signals{})
		assert.False(t, report.Passed)
		for _, g := range report.Gates {
			assert.False(t, g.Passed, "gate %s", g.Name)
		}
	})

	t.Run("gate names are snake_case in declaration order", func(t *testing.T) {
		report := EvaluateMvpRegressionGates(allSignalsOn())
		want := []string{
			"replay_equivalent",
			"cap_enforcement_active",
			"heartbeat_policy_active",
			"trust_gating_active",
			"mutable_graph_enabled",
			"reconcile_enabled",
		}
		require.Len(t, report.Gates, len(want))
		for i, name := range want {
			assert.Equal(t, name, report.Gates[i].Name)
		}
	})

	t.Run("flipping any one signal fails exactly that gate", func(t *testing.T) {
		flips := []struct {
			name string
			mut  func(*Signals)
		}{
			{"replay_equivalent", func(s *Signals) { s.ReplayEquivalent = false }},
			{"cap_enforcement_active", func(s *Signals) { s.CapEnforcementActive = false }},
			{"heartbeat_policy_active", func(s *Signals) { s.HeartbeatPolicyActive = false }},
			{"trust_gating_active", func(s *Signals) { s.TrustGatingActive = false }},
			{"mutable_graph_enabled", func(s *Signals) { s.MutableGraphEnabled = false }},
			{"reconcile_enabled", func(s *Signals) { s.ReconcileEnabled = false }},
		}

		for _, flip := range flips {
			t.Run(flip.name, func(t *testing.T) {
				signals := allSignalsOn()
				flip.mut(&signals)

				report := EvaluateMvpRegressionGates(signals)
				assert.False(t, report.Passed)

				failed := 0
				for _, g := range report.Gates {
					if !g.Passed {
						failed++
						assert.Equal(t, flip.name, g.Name)
					}
				}
				assert.Equal(t, 1, failed)
			})
		}
	})

	t.Run("has no state between calls", func(t *testing.T) {
		signals := allSignalsOn()
		signals.ReconcileEnabled = false
		EvaluateMvpRegressionGates(signals)

		assert.True(t, EvaluateMvpRegressionGates(allSignalsOn()).Passed)
	})
}
