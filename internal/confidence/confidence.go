// Package confidence estimates how well a persona predicts its user from
// a short rolling history of answer correctness.
package confidence

// Level is a qualitative confidence label.
type Level string

const (
	Low    Level = "low"
	Medium Level = "medium"
	High   Level = "high"
)

// Window is the number of most recent answers considered.
const Window = 10

// maxWrongForMedium is the most misses a full window may hold and still
// rate medium.
const maxWrongForMedium = 3

// Estimate rates a correctness history. Fewer than Window entries is
// always Low; otherwise the last Window entries decide.
func Estimate(history []bool) Level {
	if len(history) < Window {
		return Low
	}

	wrong := 0
	for _, ok := range history[len(history)-Window:] {
		if !ok {
			wrong++
		}
	}

	switch {
	case wrong == 0:
		return High
	case wrong > maxWrongForMedium:
		return Low
	default:
		return Medium
	}
}

// Record appends correct to history and keeps only the last Window
// entries. The input slice is never modified.
func Record(history []bool, correct bool) []bool {
	start := 0
	if len(history) >= Window {
		start = len(history) - Window + 1
	}
	out := make([]bool, 0, Window)
	out = append(out, history[start:]...)
	return append(out, correct)
}
