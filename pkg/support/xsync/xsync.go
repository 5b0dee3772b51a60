// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package xsync implements synchronization helpers.
package xsync

import (
	"sync"

	"github.com/pkg/errors"
)

// ParallelFor calls fn(ii) for every ii in [0, n), running at most workers calls concurrently,
// and returns when all calls are done. If workers <= 1 the calls are sequential, in order.
//
// If any call panics, the remaining calls not yet started are skipped, and ParallelFor re-panics
// with the first panic value once the running calls finish.
func ParallelFor(n, workers int, fn func(ii int)) {
	if workers <= 1 {
		for ii := range n {
			fn(ii)
		}
		return
	}

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		firstPanic any
		panicked   bool
	)
	semaphore := make(chan struct{}, workers)
	for ii := range n {
		mu.Lock()
		stop := panicked
		mu.Unlock()
		if stop {
			break
		}
		semaphore <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					if !panicked {
						panicked, firstPanic = true, r
					}
					mu.Unlock()
				}
				<-semaphore
				wg.Done()
			}()
			fn(ii)
		}()
	}
	wg.Wait()
	if panicked {
		if firstPanic == nil {
			firstPanic = errors.New("xsync.ParallelFor: nil panic")
		}
		panic(firstPanic)
	}
}
