/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package concurrent

import (
	"fmt"
	"sync/atomic"
	"testing"

	"gotest.tools/assert"
)

func TestExecRunsEveryIndex(t *testing.T) {
	var seen [8]atomic.Int32
	successes, err := Exec(len(seen), func(i int) error {
		seen[i].Add(1)
		return nil
	})
	assert.NilError(t, err)
	assert.Equal(t, successes, len(seen))
	for i := range seen {
		assert.Equal(t, seen[i].Load(), int32(1))
	}
}

func TestExecReportsFailures(t *testing.T) {
	successes, err := Exec(5, func(i int) error {
		if i%2 == 1 {
			return fmt.Errorf("run %d failed", i)
		}
		return nil
	})
	assert.Equal(t, successes, 3)
	assert.ErrorContains(t, err, "failed")
}

func TestExecZeroCount(t *testing.T) {
	successes, err := Exec(0, func(int) error { return nil })
	assert.NilError(t, err)
	assert.Equal(t, successes, 0)
}
