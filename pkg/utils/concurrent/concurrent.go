/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package concurrent

import (
	"sync"
)

// Exec runs fn once per index in [0, count) on its own goroutine and waits
// for all of them. It returns the number of successful runs and one of the
// errors when any run failed.
func Exec(count int, fn func(i int) error) (int, error) {
	if count <= 0 || fn == nil {
		return 0, nil
	}
	var wg sync.WaitGroup
	wg.Add(count)
	errCh := make(chan error, count)

	for i := 0; i < count; i++ {
		go func(i int) {
			defer wg.Done()
			if err := fn(i); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)

	failures := len(errCh)
	if failures > 0 {
		return count - failures, <-errCh
	}
	return count, nil
}
