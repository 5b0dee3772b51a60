// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fsutil

import (
	"os"
	"os/user"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandHome(t *testing.T) {
	usr, err := user.Current()
	require.NoError(t, err)

	got, err := ExpandHome("~/plots/x.png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(usr.HomeDir, "plots", "x.png"), got)

	got, err = ExpandHome("~")
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(usr.HomeDir), got)

	got, err = ExpandHome("relative/x.png")
	require.NoError(t, err)
	assert.Equal(t, "relative/x.png", got)

	_, err = ExpandHome("~user-that-does-not-exist-1234/x")
	require.Error(t, err)
}

func TestPrepareOutputFile(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "a", "b", "plot.png")
	expanded, exists, err := PrepareOutputFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, filePath, expanded)
	assert.False(t, exists)
	dirExists, err := FileExists(filepath.Join(dir, "a", "b"))
	require.NoError(t, err)
	assert.True(t, dirExists)

	require.NoError(t, os.WriteFile(filePath, []byte("x"), 0o644))
	_, exists, err = PrepareOutputFile(filePath)
	require.NoError(t, err)
	assert.True(t, exists)
}
