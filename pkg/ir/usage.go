package ir

// Usage reports token accounting for one request, trimmed from the
// teacher's far more detailed Usage type (no cache/reasoning breakdowns —
// neither dialect this proxy speaks exposes them) to the counts both
// dialects actually carry on the wire.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

// Add sums two Usage values.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		TotalTokens:  u.TotalTokens + other.TotalTokens,
	}
}
