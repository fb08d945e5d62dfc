/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package floatutil

import (
	"math"
)

const (
	epsilon = 1e-9
)

// FloatEqual reports whether two floats are equal within the platform
// tolerance.
func FloatEqual(f1, f2 float64) bool {
	return math.Abs(f1-f2) < epsilon
}

// IsZero reports whether the float vanishes within the platform tolerance.
func IsZero(f float64) bool {
	return FloatEqual(f, 0)
}
