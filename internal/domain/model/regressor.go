package model

import (
	"errors"
	"fmt"
)

// Regressor predicts a single target value from a scaled, ordered feature row.
type Regressor interface {
	Predict(x []float64) (float64, error)
	Kind() string
}

// Linear is an ordinary linear model.
type Linear struct {
	Coefficients []float64
	Intercept    float64
}

func (m *Linear) Kind() string { return "linear" }

func (m *Linear) Predict(x []float64) (float64, error) {
	if len(x) != len(m.Coefficients) {
		return 0, fmt.Errorf("linear: got %d features, want %d", len(x), len(m.Coefficients))
	}
	sum := m.Intercept
	for i, c := range m.Coefficients {
		sum += c * x[i]
	}
	return sum, nil
}

// TreeNode is one node of a binary regression tree. Leaves have Left == Right == -1.
type TreeNode struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
}

// Tree is a flattened regression tree rooted at node 0.
type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

func (t Tree) eval(x []float64) (float64, error) {
	idx := 0
	for steps := 0; steps <= len(t.Nodes); steps++ {
		if idx < 0 || idx >= len(t.Nodes) {
			return 0, fmt.Errorf("tree: node %d out of range", idx)
		}
		node := t.Nodes[idx]
		if node.Left < 0 && node.Right < 0 {
			return node.Value, nil
		}
		if node.Feature < 0 || node.Feature >= len(x) {
			return 0, fmt.Errorf("tree: feature %d out of range", node.Feature)
		}
		if x[node.Feature] <= node.Threshold {
			idx = node.Left
		} else {
			idx = node.Right
		}
	}
	return 0, errors.New("tree: cycle detected")
}

// TreeEnsemble is an additive ensemble of regression trees, as produced by gradient boosting.
type TreeEnsemble struct {
	BaseValue    float64
	LearningRate float64
	Trees        []Tree
}

func (m *TreeEnsemble) Kind() string { return "tree_ensemble" }

func (m *TreeEnsemble) Predict(x []float64) (float64, error) {
	sum := 0.0
	for i, tree := range m.Trees {
		v, err := tree.eval(x)
		if err != nil {
			return 0, fmt.Errorf("tree %d: %w", i, err)
		}
		sum += v
	}
	return m.BaseValue + m.LearningRate*sum, nil
}

// WeightedMember pairs a model with its blending weight.
type WeightedMember struct {
	Model  Regressor
	Weight float64
}

// Weighted blends member predictions as Σ weight·prediction.
type Weighted struct {
	Members []WeightedMember
}

func (m *Weighted) Kind() string { return "weighted" }

func (m *Weighted) Predict(x []float64) (float64, error) {
	if len(m.Members) == 0 {
		return 0, errors.New("weighted: no members")
	}
	sum := 0.0
	for i, member := range m.Members {
		v, err := member.Model.Predict(x)
		if err != nil {
			return 0, fmt.Errorf("member %d: %w", i, err)
		}
		sum += member.Weight * v
	}
	return sum, nil
}

// regressorSpec is the tagged JSON form of a Regressor.
type regressorSpec struct {
	Type         string       `json:"type"`
	Coefficients []float64    `json:"coefficients,omitempty"`
	Intercept    float64      `json:"intercept,omitempty"`
	BaseValue    float64      `json:"base_value,omitempty"`
	LearningRate *float64     `json:"learning_rate,omitempty"`
	Trees        []Tree       `json:"trees,omitempty"`
	Members      []memberSpec `json:"members,omitempty"`
}

type memberSpec struct {
	Weight float64       `json:"weight"`
	Model  regressorSpec `json:"model"`
}

const maxDepth = 8

func decodeRegressor(spec regressorSpec, features int, depth int) (Regressor, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("model nesting exceeds %d levels", maxDepth)
	}
	switch spec.Type {
	case "linear":
		if len(spec.Coefficients) != features {
			return nil, fmt.Errorf("linear: %d coefficients for %d features", len(spec.Coefficients), features)
		}
		return &Linear{Coefficients: spec.Coefficients, Intercept: spec.Intercept}, nil
	case "tree_ensemble":
		if len(spec.Trees) == 0 {
			return nil, errors.New("tree_ensemble: no trees")
		}
		lr := 1.0
		if spec.LearningRate != nil {
			lr = *spec.LearningRate
		}
		for i, tree := range spec.Trees {
			if err := validateTree(tree, features); err != nil {
				return nil, fmt.Errorf("tree %d: %w", i, err)
			}
		}
		return &TreeEnsemble{BaseValue: spec.BaseValue, LearningRate: lr, Trees: spec.Trees}, nil
	case "weighted":
		if len(spec.Members) == 0 {
			return nil, errors.New("weighted: no members")
		}
		members := make([]WeightedMember, 0, len(spec.Members))
		for i, m := range spec.Members {
			inner, err := decodeRegressor(m.Model, features, depth+1)
			if err != nil {
				return nil, fmt.Errorf("member %d: %w", i, err)
			}
			members = append(members, WeightedMember{Model: inner, Weight: m.Weight})
		}
		return &Weighted{Members: members}, nil
	case "":
		return nil, errors.New("model type missing")
	default:
		return nil, fmt.Errorf("unknown model type %q", spec.Type)
	}
}

func validateTree(tree Tree, features int) error {
	if len(tree.Nodes) == 0 {
		return errors.New("empty tree")
	}
	for i, node := range tree.Nodes {
		leaf := node.Left < 0 && node.Right < 0
		if leaf {
			continue
		}
		if node.Left < 0 || node.Right < 0 || node.Left >= len(tree.Nodes) || node.Right >= len(tree.Nodes) {
			return fmt.Errorf("node %d has invalid children", i)
		}
		if node.Feature < 0 || node.Feature >= features {
			return fmt.Errorf("node %d splits on feature %d of %d", i, node.Feature, features)
		}
	}
	return nil
}
