package continuation

// MaxIterationsReason is the force-completion reason when the cap is hit.
const MaxIterationsReason = "max iterations reached"

// State tracks one session's "until done" loop. Created when the mode is
// enabled on a query; destroyed when the task is judged complete or the
// iteration cap is reached.
type State struct {
	Enabled         bool
	Iteration       int
	MaxIterations   int
	OriginalPrompt  string
	AccumulatedCost float64
}

// NewState enables the loop for a session.
func NewState(prompt string, maxIterations int) *State {
	return &State{
		Enabled:        true,
		MaxIterations:  maxIterations,
		OriginalPrompt: prompt,
	}
}

// Advance consumes one continuation slot. It reports whether another cycle
// is allowed and, when it is, increments the iteration counter.
func (s *State) Advance() bool {
	if s.Iteration >= s.MaxIterations {
		return false
	}
	s.Iteration++
	return true
}

// AddCost accumulates a turn's cost onto the loop total.
func (s *State) AddCost(usd float64) {
	s.AccumulatedCost += usd
}
