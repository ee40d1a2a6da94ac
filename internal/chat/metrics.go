package chat

// Metrics tracks per-conversation counters and response latencies in
// milliseconds. The greeting counts as the first bot message with a
// synthetic duration of zero, so TotalBotMessages == TotalUserMessages+1
// holds after every completed round-trip.
type Metrics struct {
	TotalUserMessages   uint64  `json:"totalUserMessages"`
	TotalBotMessages    uint64  `json:"totalBotMessages"`
	LastResponseTime    float64 `json:"lastResponseTime"`
	AverageResponseTime float64 `json:"averageResponseTime"`
}

// NewMetrics returns the counters of a fresh conversation: the greeting has
// already been delivered, nothing else happened yet.
func NewMetrics() Metrics {
	return Metrics{TotalBotMessages: 1}
}

// Record folds one completed round-trip into the counters. The average is
// maintained incrementally: avg' = (avg*(n-1) + d) / n with n counting bot
// messages after the increment.
func (m *Metrics) Record(durationMS float64) {
	m.TotalBotMessages++
	m.TotalUserMessages++
	n := float64(m.TotalBotMessages)
	m.AverageResponseTime = (m.AverageResponseTime*(n-1) + durationMS) / n
	m.LastResponseTime = durationMS
}
