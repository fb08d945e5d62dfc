/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package improvement

import (
	"fmt"
	"math"

	v1 "github.com/AMD-AIG-AIMA/AVS/pkg/apis/v1"
	avserrors "github.com/AMD-AIG-AIMA/AVS/pkg/errors"
	"github.com/AMD-AIG-AIMA/AVS/pkg/utils/floatutil"
)

// StepAdjuster is the platform's reference vector adjuster. It walks each
// vector a bounded number of fixed-size steps along the similarity gradient:
// clicked vectors climb toward the query, non-clicked vectors descend away.
type StepAdjuster struct {
	Steps    int
	StepSize float64
}

func NewStepAdjuster(steps int, stepSize float64) *StepAdjuster {
	return &StepAdjuster{Steps: steps, StepSize: stepSize}
}

func (a *StepAdjuster) Adjust(inputs []*v1.ImprovementInput, metric v1.MetricType) error {
	grad, err := gradientOf(metric)
	if err != nil {
		return err
	}
	for _, input := range inputs {
		if len(input.QueryVector) == 0 {
			continue
		}
		for i := range input.Clicked {
			a.adjustElement(&input.Clicked[i], input.QueryVector, grad, 1)
		}
		for i := range input.NonClicked {
			a.adjustElement(&input.NonClicked[i], input.QueryVector, grad, -1)
		}
	}
	return nil
}

func (a *StepAdjuster) adjustElement(element *v1.ImprovementElement, query []float32, grad gradientFunc, sign float64) {
	for vi, vector := range element.Vectors {
		if len(vector) != len(query) {
			continue
		}
		for step := 0; step < a.Steps; step++ {
			g := grad(query, vector)
			if vanished(g) {
				break
			}
			for d := range vector {
				vector[d] += float32(sign * a.StepSize * g[d])
			}
		}
		element.Vectors[vi] = vector
	}
}

// vanished reports a gradient with no usable direction, such as a degenerate
// query. Stepping along it would only accumulate rounding noise.
func vanished(g []float64) bool {
	for _, v := range g {
		if !floatutil.IsZero(v) {
			return false
		}
	}
	return true
}

// gradientFunc returns d(similarity)/d(vector) for one query/vector pair.
type gradientFunc func(query, vector []float32) []float64

func gradientOf(metric v1.MetricType) (gradientFunc, error) {
	switch metric {
	case v1.MetricCosine:
		return cosineGradient, nil
	case v1.MetricDot:
		return dotGradient, nil
	case v1.MetricEuclid:
		return euclidGradient, nil
	}
	return nil, avserrors.NewBadRequest(fmt.Sprintf("unknown metric type %q", metric))
}

// dotGradient: sim = q·v, so the gradient is the query itself.
func dotGradient(query, vector []float32) []float64 {
	g := make([]float64, len(query))
	for d := range query {
		g[d] = float64(query[d])
	}
	return g
}

// euclidGradient: sim = -||q-v||, gradient points from the vector to the
// query with unit length.
func euclidGradient(query, vector []float32) []float64 {
	g := make([]float64, len(query))
	var norm float64
	for d := range query {
		g[d] = float64(query[d]) - float64(vector[d])
		norm += g[d] * g[d]
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return g
	}
	for d := range g {
		g[d] /= norm
	}
	return g
}

// cosineGradient: sim = q·v/(|q||v|), gradient is the component of the query
// direction orthogonal to the vector, scaled by the vector's norm.
func cosineGradient(query, vector []float32) []float64 {
	var dot, qq, vv float64
	for d := range query {
		dot += float64(query[d]) * float64(vector[d])
		qq += float64(query[d]) * float64(query[d])
		vv += float64(vector[d]) * float64(vector[d])
	}
	g := make([]float64, len(query))
	qNorm := math.Sqrt(qq)
	vNorm := math.Sqrt(vv)
	if qNorm == 0 || vNorm == 0 {
		return g
	}
	for d := range g {
		g[d] = float64(query[d])/(qNorm*vNorm) - dot*float64(vector[d])/(qNorm*vNorm*vNorm*vNorm)
	}
	return g
}

// Similarity computes the metric's similarity for one pair. Higher is always
// closer, so EUCLID is reported as the negated distance.
func Similarity(metric v1.MetricType, query, vector []float32) float64 {
	var dot, qq, vv, dist float64
	for d := range query {
		q := float64(query[d])
		v := float64(vector[d])
		dot += q * v
		qq += q * q
		vv += v * v
		dist += (q - v) * (q - v)
	}
	switch metric {
	case v1.MetricCosine:
		if qq == 0 || vv == 0 {
			return 0
		}
		return dot / (math.Sqrt(qq) * math.Sqrt(vv))
	case v1.MetricDot:
		return dot
	default:
		return -math.Sqrt(dist)
	}
}
