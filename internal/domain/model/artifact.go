package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ArtifactVersion is the only artifact layout this build understands.
const ArtifactVersion = 1

// Target transforms applied at training time.
const (
	TransformLog1p    = "log1p"
	TransformIdentity = "identity"
)

// Metrics are the training scores stored with the artifact.
type Metrics struct {
	R2   float64 `json:"r2"`
	MAE  float64 `json:"mae,omitempty"`
	RMSE float64 `json:"rmse,omitempty"`
}

// Scaler is a fitted standard scaler.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Transform standardizes a row. Zero scales are treated as 1.
func (s Scaler) Transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		scale := s.Scale[i]
		if scale == 0 {
			scale = 1
		}
		out[i] = (v - s.Mean[i]) / scale
	}
	return out
}

type artifactFile struct {
	Version         int           `json:"version"`
	Name            string        `json:"name"`
	FeatureNames    []string      `json:"feature_names"`
	Scaler          Scaler        `json:"scaler"`
	Model           regressorSpec `json:"model"`
	TargetTransform string        `json:"target_transform"`
	Metrics         Metrics       `json:"metrics"`
}

// Decode parses and validates a JSON model artifact.
func Decode(data []byte) (*Runtime, error) {
	var file artifactFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if file.Version != ArtifactVersion {
		return nil, fmt.Errorf("unsupported artifact version %d", file.Version)
	}
	n := len(file.FeatureNames)
	if n == 0 {
		return nil, errors.New("artifact declares no features")
	}
	seen := make(map[string]struct{}, n)
	for _, name := range file.FeatureNames {
		if name == "" {
			return nil, errors.New("artifact declares an empty feature name")
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate feature %q", name)
		}
		seen[name] = struct{}{}
	}
	if len(file.Scaler.Mean) != n || len(file.Scaler.Scale) != n {
		return nil, fmt.Errorf("scaler has %d/%d statistics for %d features", len(file.Scaler.Mean), len(file.Scaler.Scale), n)
	}
	transform := file.TargetTransform
	switch transform {
	case "":
		transform = TransformLog1p
	case TransformLog1p, TransformIdentity:
	default:
		return nil, fmt.Errorf("unknown target transform %q", transform)
	}
	reg, err := decodeRegressor(file.Model, n, 0)
	if err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	name := file.Name
	if name == "" {
		name = reg.Kind()
	}
	return NewRuntime(name, file.FeatureNames, file.Scaler, reg, transform, file.Metrics), nil
}
