package model

import (
	"errors"
	"fmt"
	"math"
)

// Info describes the loaded model for API consumers.
type Info struct {
	Name            string   `json:"name"`
	Type            string   `json:"type"`
	R2Score         float64  `json:"r2_score"`
	FeatureCount    int      `json:"features_used"`
	FeatureNames    []string `json:"feature_names,omitempty"`
	TargetTransform string   `json:"target_transform"`
	Metrics         Metrics  `json:"metrics"`
}

// Prediction is the model output for one feature vector.
type Prediction struct {
	KW float64
	// Missing lists declared features absent from the input, which were scored as 0.
	Missing []string
}

// Runtime wraps an immutable scaler and regressor pair.
type Runtime struct {
	name      string
	features  []string
	scaler    Scaler
	regressor Regressor
	transform string
	metrics   Metrics
}

// NewRuntime assembles a runtime from already validated parts.
func NewRuntime(name string, features []string, scaler Scaler, reg Regressor, transform string, metrics Metrics) *Runtime {
	if transform == "" {
		transform = TransformLog1p
	}
	return &Runtime{
		name:      name,
		features:  append([]string(nil), features...),
		scaler:    scaler,
		regressor: reg,
		transform: transform,
		metrics:   metrics,
	}
}

// FeatureNames returns the training-time feature order.
func (r *Runtime) FeatureNames() []string {
	return append([]string(nil), r.features...)
}

// Info summarizes the runtime.
func (r *Runtime) Info() Info {
	return Info{
		Name:            r.name,
		Type:            r.regressor.Kind(),
		R2Score:         r.metrics.R2,
		FeatureCount:    len(r.features),
		FeatureNames:    r.FeatureNames(),
		TargetTransform: r.transform,
		Metrics:         r.metrics,
	}
}

// Predict orders the features, scales them, runs the regressor and maps the output back to kW.
func (r *Runtime) Predict(values map[string]float64) (Prediction, error) {
	if r == nil || r.regressor == nil {
		return Prediction{}, errors.New("model not loaded")
	}
	row := make([]float64, len(r.features))
	var missing []string
	for i, name := range r.features {
		v, ok := values[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		row[i] = v
	}

	raw, err := r.regressor.Predict(r.scaler.Transform(row))
	if err != nil {
		return Prediction{}, fmt.Errorf("%s predict: %w", r.regressor.Kind(), err)
	}
	kw := raw
	if r.transform == TransformLog1p {
		kw = math.Expm1(raw)
	}
	if math.IsNaN(kw) || math.IsInf(kw, 0) {
		return Prediction{}, fmt.Errorf("non-finite prediction %v", kw)
	}
	return Prediction{KW: math.Max(0, kw), Missing: missing}, nil
}
