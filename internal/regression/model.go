package regression

import (
	"fmt"
)

// Family is the declared model family of a trained artifact. It decides
// whether features are scaled before scoring.
type Family string

const (
	FamilyLinear   Family = "linear"
	FamilyEnsemble Family = "ensemble"
)

// Model scores a feature vector ordered per the artifact's feature schema.
type Model interface {
	Predict(x []float64) float64
}

// Linear is an ordinary least squares model fitted on scaled features.
type Linear struct {
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
}

func (l *Linear) Predict(x []float64) float64 {
	y := l.Intercept
	for i, c := range l.Coefficients {
		y += c * x[i]
	}
	return y
}

// Node is a single node of a regression tree. Leaves carry Value; inner
// nodes send x[Feature] <= Threshold to Left and everything else to Right.
type Node struct {
	Leaf      bool    `json:"leaf,omitempty"`
	Value     float64 `json:"value,omitempty"`
	Feature   int     `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
}

// Tree is a regression tree stored in pre-order; node 0 is the root.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) Predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

func (t *Tree) validate(features int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("tree has no nodes")
	}
	for i, n := range t.Nodes {
		if n.Leaf {
			continue
		}
		if n.Feature < 0 || n.Feature >= features {
			return fmt.Errorf("node %d: feature index %d out of range", i, n.Feature)
		}
		// children always follow their parent, which also rules out cycles
		if n.Left <= i || n.Left >= len(t.Nodes) || n.Right <= i || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d: invalid child index", i)
		}
	}
	return nil
}

// Ensemble combines regression trees either by averaging them (random
// forest) or by boosting: Init + LearningRate * sum of tree outputs.
type Ensemble struct {
	Average      bool    `json:"average"`
	Init         float64 `json:"init,omitempty"`
	LearningRate float64 `json:"learning_rate,omitempty"`
	Trees        []Tree  `json:"trees"`
}

func (e *Ensemble) Predict(x []float64) float64 {
	var sum float64
	for i := range e.Trees {
		sum += e.Trees[i].Predict(x)
	}
	if e.Average {
		return sum / float64(len(e.Trees))
	}
	return e.Init + e.LearningRate*sum
}

// Scaler standardizes features: (x - Mean) / Scale.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Transform returns a scaled copy of x. Zero scales leave the centered value
// untouched.
func (s *Scaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.Mean) || len(x) != len(s.Scale) {
		return nil, fmt.Errorf("scaler expects %d features, got %d", len(s.Mean), len(x))
	}
	out := make([]float64, len(x))
	for i, v := range x {
		scale := s.Scale[i]
		if scale == 0 {
			scale = 1
		}
		out[i] = (v - s.Mean[i]) / scale
	}
	return out, nil
}
