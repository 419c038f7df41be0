package dealer

import "math"

// Policy names.
const (
	PolicyEquidistant = "Equidistant"
	PolicyMinMax      = "MinMax"
)

// Policy computes the values for n candidates.
type Policy interface {
	Name() string
	Values(n int) []int
}

// Equidistant yields Offset, Offset+Step, Offset+2*Step, ...
type Equidistant struct {
	Offset int
	Step   int
}

// Name returns PolicyEquidistant.
func (Equidistant) Name() string { return PolicyEquidistant }

// Values returns n values starting at Offset, Step apart.
func (p Equidistant) Values(n int) []int {
	if n <= 0 {
		return nil
	}
	out := make([]int, n)
	for i := range out {
		out[i] = p.Offset + i*p.Step
	}
	return out
}

// MinMax yields n values evenly spaced from Min to Max inclusive, rounded
// to the nearest integer.
type MinMax struct {
	Min int
	Max int
}

// Name returns PolicyMinMax.
func (MinMax) Name() string { return PolicyMinMax }

// Values returns n evenly spaced values; a single candidate gets Min.
func (p MinMax) Values(n int) []int {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []int{p.Min}
	}
	out := make([]int, n)
	span := float64(p.Max - p.Min)
	for i := range out {
		out[i] = p.Min + int(math.Round(span*float64(i)/float64(n-1)))
	}
	return out
}
