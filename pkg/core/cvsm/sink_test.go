// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cvsm_test

import (
	"testing"

	. "github.com/gomlx/cvsm/pkg/core/cvsm"
	"github.com/gomlx/cvsm/pkg/core/tensors"
	"github.com/gomlx/exceptions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGradientSink(t *testing.T) {
	sink := NewGradientSink()
	assert.Equal(t, 0, sink.Len())
	assert.Empty(t, sink.Names())

	sink.Increment("b", tensors.Vector(0, 1, 2))
	sink.Increment("a", tensors.Scalar(3))
	sink.Increment("b", tensors.Vector(0, 10, 20))
	assert.Equal(t, []string{"a", "b"}, sink.Names())
	assert.Equal(t, []float64{11, 22}, sink.Get("b").Flat())
	assert.True(t, sink.Has("a"))
	assert.False(t, sink.Has("c"))

	other := NewGradientSink()
	other.Increment("a", tensors.Scalar(1))
	other.Increment("c", tensors.Vector(2, 5))
	sink.Merge(other)
	assert.Equal(t, 3, sink.Len())
	assert.Equal(t, 4.0, sink.Get("a").Value())
	assert.Equal(t, []float64{5}, sink.Get("c").Flat())
	// other is unchanged.
	assert.Equal(t, 1.0, other.Get("a").Value())

	err := exceptions.TryCatch[error](func() { sink.Increment("b", tensors.Vector(1, 1, 2)) })
	require.ErrorIs(t, err, ErrShapeMismatch)
}
