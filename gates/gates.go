package gates

// Signals are the boolean operational guarantees a run configuration must
// hold simultaneously before it is trusted.
type Signals struct {
	ReplayEquivalent      bool `json:"replay_equivalent"`
	CapEnforcementActive  bool `json:"cap_enforcement_active"`
	HeartbeatPolicyActive bool `json:"heartbeat_policy_active"`
	TrustGatingActive     bool `json:"trust_gating_active"`
	MutableGraphEnabled   bool `json:"mutable_graph_enabled"`
	ReconcileEnabled      bool `json:"reconcile_enabled"`
}

// GateResult is the verdict for a single signal.
type GateResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
}

// Report is the overall gate verdict: Passed is the AND of every gate.
type Report struct {
	Passed bool         `json:"passed"`
	Gates  []GateResult `json:"gates"`
}

// EvaluateMvpRegressionGates certifies, in one stateless call, that every
// required operational guarantee is enabled. One gate per signal, in the
// order the signals are declared; flipping any single signal to false flips
// the overall verdict.
func EvaluateMvpRegressionGates(s Signals) Report {
	results := []GateResult{
		{Name: "replay_equivalent", Passed: s.ReplayEquivalent},
		{Name: "cap_enforcement_active", Passed: s.CapEnforcementActive},
		{Name: "heartbeat_policy_active", Passed: s.HeartbeatPolicyActive},
		{Name: "trust_gating_active", Passed: s.TrustGatingActive},
		{Name: "mutable_graph_enabled", Passed: s.MutableGraphEnabled},
		{Name: "reconcile_enabled", Passed: s.ReconcileEnabled},
	}

	passed := true
	for _, g := range results {
		if !g.Passed {
			passed = false
			break
		}
	}

	return Report{Passed: passed, Gates: results}
}
