package ml

import (
	"math"
	"sort"

	"github.com/huntred/circle/internal/model"
)

// Bucket thresholds for size and revenue features.
const (
	largeEmployees = 100
	midEmployees   = 50
	highRevenue    = 1_000_000
	midRevenue     = 500_000
)

// features turns a company profile into the sparse binary feature set the
// linear model scores.
func features(employees int, revenue float64, signals []string) []string {
	var out []string
	seen := make(map[string]bool, len(signals))
	for _, s := range signals {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, "signal:"+s)
	}
	switch {
	case employees >= largeEmployees:
		out = append(out, "size:large")
	case employees >= midEmployees:
		out = append(out, "size:mid")
	}
	switch {
	case revenue >= highRevenue:
		out = append(out, "rev:high")
	case revenue >= midRevenue:
		out = append(out, "rev:mid")
	}
	sort.Strings(out)
	return out
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func (s *ModelState) predict(feats []string) float64 {
	z := s.Bias
	for _, f := range feats {
		z += s.Weights[f]
	}
	return sigmoid(z)
}

func (s *ModelState) predictOutcome(o model.Outcome) float64 {
	return s.predict(features(o.EmployeeCount, o.RevenueEstimate, o.Signals))
}

// accuracy is the share of labelled outcomes classified correctly at 0.5.
// With no outcomes the model is no better than a coin flip.
func (s *ModelState) accuracy() float64 {
	if len(s.Outcomes) == 0 {
		return 0.5
	}
	correct := 0
	for _, o := range s.Outcomes {
		if (s.predictOutcome(o) >= 0.5) == o.Converted {
			correct++
		}
	}
	return float64(correct) / float64(len(s.Outcomes))
}

// train runs logistic-regression SGD over every stored outcome.
func (s *ModelState) train(epochs int, lr float64) {
	for range epochs {
		for _, o := range s.Outcomes {
			feats := features(o.EmployeeCount, o.RevenueEstimate, o.Signals)
			y := 0.0
			if o.Converted {
				y = 1
			}
			g := y - s.predict(feats)
			for _, f := range feats {
				s.Weights[f] += lr * g
			}
			s.Bias += lr * g
		}
	}
	s.Trained = len(s.Outcomes)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
