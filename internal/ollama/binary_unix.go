// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !windows

package ollama

import (
	"os"
	"path/filepath"
)

// installLocations lists common Ollama installation paths on Unix/macOS.
func installLocations(name string) []string {
	paths := []string{
		filepath.Join("/usr/local/bin", name),
		filepath.Join("/usr/bin", name),
		filepath.Join("/opt/ollama", name),
	}
	if home := os.Getenv("HOME"); home != "" {
		paths = append(paths,
			filepath.Join(home, ".local", "bin", name),
			filepath.Join(home, "bin", name),
		)
	}
	// macOS application bundle location
	paths = append(paths, filepath.Join("/Applications/Ollama.app/Contents/Resources", name))
	return paths
}
