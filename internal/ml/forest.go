package ml

import (
	"context"
	"fmt"

	"cipher-scan/internal/features"
)

// forestModel is a tree ensemble exported from a fitted random forest or
// extra-trees classifier. Each leaf stores per-class weights; a tree's vote is
// its leaf normalized to sum to 1 and the forest averages the votes.
type forestModel struct {
	NClasses int    `json:"n_classes"`
	Trees    []tree `json:"trees"`
}

type tree struct {
	Nodes []treeNode `json:"nodes"`
}

// treeNode follows the fitted-tree layout: Left and Right are -1 on leaves.
type treeNode struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Value     []float64 `json:"value,omitempty"`
}

func (n treeNode) isLeaf() bool { return n.Left < 0 && n.Right < 0 }

func (m *forestModel) validate() error {
	if m.NClasses < 2 {
		return fmt.Errorf("forest model needs at least 2 classes, got %d", m.NClasses)
	}
	if len(m.Trees) == 0 {
		return fmt.Errorf("forest model has no trees")
	}
	for ti, t := range m.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("tree %d is empty", ti)
		}
		for ni, n := range t.Nodes {
			if n.isLeaf() {
				if len(n.Value) != m.NClasses {
					return fmt.Errorf("tree %d leaf %d has %d values, expected %d", ti, ni, len(n.Value), m.NClasses)
				}
				var s float64
				for _, v := range n.Value {
					if v < 0 {
						return fmt.Errorf("tree %d leaf %d has a negative weight", ti, ni)
					}
					s += v
				}
				if s == 0 {
					return fmt.Errorf("tree %d leaf %d has no weight", ti, ni)
				}
				continue
			}
			if n.Feature < 0 || n.Feature >= features.Size {
				return fmt.Errorf("tree %d node %d splits on feature %d", ti, ni, n.Feature)
			}
			// Children must point forward so traversal always terminates.
			if n.Left <= ni || n.Right <= ni || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
				return fmt.Errorf("tree %d node %d has invalid children %d/%d", ti, ni, n.Left, n.Right)
			}
		}
	}
	return nil
}

func (m *forestModel) Classes() int { return m.NClasses }

func (m *forestModel) PredictProba(_ context.Context, x []float64) ([]float64, error) {
	if len(x) != features.Size {
		return nil, fmt.Errorf("expected %d features, got %d", features.Size, len(x))
	}

	out := make([]float64, m.NClasses)
	for _, t := range m.Trees {
		leaf := t.leaf(x)
		var s float64
		for _, v := range leaf.Value {
			s += v
		}
		for c, v := range leaf.Value {
			out[c] += v / s
		}
	}

	n := float64(len(m.Trees))
	for c := range out {
		out[c] /= n
	}
	return out, nil
}

func (t tree) leaf(x []float64) treeNode {
	i := 0
	for {
		n := t.Nodes[i]
		if n.isLeaf() {
			return n
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}
