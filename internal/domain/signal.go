package domain

// Signal bus channels.
const (
	ChannelOpportunity = "arb:opportunity"
	ChannelTrade       = "arb:trade"
	ChannelRisk        = "arb:risk"
)

// Event is the envelope published on the signal bus.
type Event struct {
	Type string `json:"event"`
	Data any    `json:"data"`
}

// EngineStatus is a summary of the engine's current operational state.
type EngineStatus struct {
	Mode             string `json:"mode"`
	Running          bool   `json:"running"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
	Cycles           int64  `json:"cycles"`
	FailedCycles     int64  `json:"failed_cycles"`
	OpportunityCount int64  `json:"opportunities"`
	Executions       int64  `json:"executions"`
}
