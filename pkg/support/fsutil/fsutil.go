// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fsutil contains utilities for working with the file system.
package fsutil

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// FileExists returns whether the file or directory exists or an error if something went wrong in the filesystem.
func FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, errors.Wrapf(err, "failed to FileExists(%q)", path)
}

// ExpandHome replaces a leading "~" or "~user" in filePath by the corresponding home directory.
// Paths not starting with "~" are returned unchanged.
func ExpandHome(filePath string) (string, error) {
	if !strings.HasPrefix(filePath, "~") {
		return filePath, nil
	}
	userName, rest, _ := strings.Cut(filePath[1:], string(filepath.Separator))
	var usr *user.User
	var err error
	if userName == "" {
		usr, err = user.Current()
	} else {
		usr, err = user.Lookup(userName)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to lookup home directory for path %q", filePath)
	}
	return filepath.Join(usr.HomeDir, rest), nil
}

// PrepareOutputFile expands the home directory in filePath and creates its parent directories.
// It returns the expanded path, and whether a file already exists there.
func PrepareOutputFile(filePath string) (expanded string, exists bool, err error) {
	expanded, err = ExpandHome(filePath)
	if err != nil {
		return "", false, err
	}
	if err = os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return "", false, errors.Wrapf(err, "failed to create directory for %q", expanded)
	}
	exists, err = FileExists(expanded)
	return expanded, exists, err
}
