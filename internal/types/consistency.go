package types

// DefaultConsistencyTolerance is the largest score spread across repeated runs that still passes.
const DefaultConsistencyTolerance = 5

// ConsistencyReport summarizes repeated evaluations of one document.
type ConsistencyReport struct {
	Position int     `json:"position"`
	Label    string  `json:"label,omitempty"`
	Scores   []Score `json:"scores"`
	Mean     float64 `json:"mean"`
	Min      int     `json:"min"`
	Max      int     `json:"max"`
	Spread   int     `json:"spread"`
	Errors   int     `json:"errors"`
	Passed   bool    `json:"passed"`
}

// NewConsistencyReport computes mean and spread over the numeric scores. A report with
// fewer than two numeric scores does not pass.
func NewConsistencyReport(position int, label string, scores []Score, tolerance int) ConsistencyReport {
	r := ConsistencyReport{Position: position, Label: label, Scores: scores}
	numeric := 0
	sum := 0
	for _, s := range scores {
		v, ok := s.Value()
		if !ok {
			r.Errors++
			continue
		}
		if numeric == 0 || v < r.Min {
			r.Min = v
		}
		if numeric == 0 || v > r.Max {
			r.Max = v
		}
		sum += v
		numeric++
	}
	if numeric == 0 {
		return r
	}
	r.Mean = float64(sum) / float64(numeric)
	r.Spread = r.Max - r.Min
	r.Passed = numeric >= 2 && r.Errors == 0 && r.Spread <= tolerance
	return r
}
