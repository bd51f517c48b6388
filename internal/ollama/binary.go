// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"os"
	"os/exec"
	"path/filepath"
)

// ResolveBinary finds the ollama CLI. A name containing a path separator is
// used as given. A bare name is looked up on PATH and then in the platform's
// usual install locations; when nothing is found the name is returned
// unchanged so the executor reports the missing executable.
func ResolveBinary(name string) string {
	if name == "" {
		name = "ollama"
	}
	if filepath.Base(name) != name {
		return name
	}
	if path, err := exec.LookPath(name); err == nil {
		return path
	}
	for _, candidate := range installLocations(name) {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return name
}
