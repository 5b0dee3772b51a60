// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	// Sets are created empty.
	s := Make[int](10)
	assert.Len(t, s, 0)

	// Check inserting and recovery.
	s.Insert(3, 7)
	assert.Len(t, s, 2)
	assert.True(t, s.Has(3))
	assert.True(t, s.Has(7))
	assert.False(t, s.Has(5))

	s2 := MakeWith(5, 7)
	s3 := s.Sub(s2)
	assert.Len(t, s3, 1)
	assert.True(t, s3.Has(3))

	delete(s, 7)
	assert.True(t, s.Equal(s3))
	assert.False(t, s.Equal(s2))
	assert.False(t, s.Equal(MakeWith(-3)))
}

func TestSetAlgebra(t *testing.T) {
	big := MakeWith(0, 1, 2)
	small := MakeWith(2, 0)
	assert.True(t, small.IsSubsetOf(big))
	assert.False(t, big.IsSubsetOf(small))
	assert.Equal(t, []int{0, 2}, Sorted(big.Intersect(small)))
	assert.Equal(t, []int{1}, Sorted(big.Sub(small)))
	assert.Equal(t, []int{0, 1, 2, 5}, Sorted(small.Union(MakeWith(5, 1))))
	assert.Empty(t, Sorted(Make[int]()))
}
