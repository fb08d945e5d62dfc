/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package improvement

import (
	"testing"

	"gotest.tools/assert"

	v1 "github.com/AMD-AIG-AIMA/AVS/pkg/apis/v1"
	avserrors "github.com/AMD-AIG-AIMA/AVS/pkg/errors"
)

func adjusterInput() *v1.ImprovementInput {
	return &v1.ImprovementInput{
		SessionId:   "s1",
		QueryVector: []float32{1, 0, 0},
		Clicked: []v1.ImprovementElement{{
			ObjectId:  "p",
			UserId:    "u",
			Vectors:   [][]float32{{0.2, 0.9, 0}},
			IsAverage: []bool{false},
		}},
		NonClicked: []v1.ImprovementElement{{
			ObjectId:  "n",
			UserId:    "u",
			Vectors:   [][]float32{{0.8, 0.3, 0}},
			IsAverage: []bool{false},
		}},
	}
}

func TestAdjustCosine(t *testing.T) {
	input := adjusterInput()
	query := input.QueryVector
	clickedBefore := Similarity(v1.MetricCosine, query, input.Clicked[0].Vectors[0])
	nonClickedBefore := Similarity(v1.MetricCosine, query, input.NonClicked[0].Vectors[0])

	a := NewStepAdjuster(10, 0.05)
	assert.NilError(t, a.Adjust([]*v1.ImprovementInput{input}, v1.MetricCosine))

	clickedAfter := Similarity(v1.MetricCosine, query, input.Clicked[0].Vectors[0])
	nonClickedAfter := Similarity(v1.MetricCosine, query, input.NonClicked[0].Vectors[0])
	assert.Assert(t, clickedAfter > clickedBefore)
	assert.Assert(t, nonClickedAfter < nonClickedBefore)
}

func TestAdjustDot(t *testing.T) {
	input := adjusterInput()
	query := input.QueryVector
	clickedBefore := Similarity(v1.MetricDot, query, input.Clicked[0].Vectors[0])

	a := NewStepAdjuster(5, 0.1)
	assert.NilError(t, a.Adjust([]*v1.ImprovementInput{input}, v1.MetricDot))
	assert.Assert(t, Similarity(v1.MetricDot, query, input.Clicked[0].Vectors[0]) > clickedBefore)
}

func TestAdjustEuclid(t *testing.T) {
	input := adjusterInput()
	query := input.QueryVector
	clickedBefore := Similarity(v1.MetricEuclid, query, input.Clicked[0].Vectors[0])
	nonClickedBefore := Similarity(v1.MetricEuclid, query, input.NonClicked[0].Vectors[0])

	a := NewStepAdjuster(10, 0.05)
	assert.NilError(t, a.Adjust([]*v1.ImprovementInput{input}, v1.MetricEuclid))
	assert.Assert(t, Similarity(v1.MetricEuclid, query, input.Clicked[0].Vectors[0]) > clickedBefore)
	assert.Assert(t, Similarity(v1.MetricEuclid, query, input.NonClicked[0].Vectors[0]) < nonClickedBefore)
}

func TestAdjustUnknownMetric(t *testing.T) {
	a := NewStepAdjuster(1, 0.1)
	err := a.Adjust(nil, v1.MetricType("HAMMING"))
	assert.Assert(t, avserrors.IsBadRequest(err))
}

func TestAdjustStopsOnVanishingGradient(t *testing.T) {
	input := adjusterInput()
	input.QueryVector = []float32{0, 0, 0}
	before := append([]float32{}, input.Clicked[0].Vectors[0]...)

	a := NewStepAdjuster(10, 0.05)
	assert.NilError(t, a.Adjust([]*v1.ImprovementInput{input}, v1.MetricDot))
	assert.DeepEqual(t, input.Clicked[0].Vectors[0], before)
}

func TestAdjustSkipsMismatchedDimensions(t *testing.T) {
	input := adjusterInput()
	input.Clicked[0].Vectors = [][]float32{{1, 2}}
	a := NewStepAdjuster(3, 0.1)
	assert.NilError(t, a.Adjust([]*v1.ImprovementInput{input}, v1.MetricCosine))
	assert.DeepEqual(t, input.Clicked[0].Vectors[0], []float32{1, 2})
}
