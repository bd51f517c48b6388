// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build windows

package ollama

import (
	"os"
	"path/filepath"
	"strings"
)

// installLocations lists common Ollama installation paths on Windows.
func installLocations(name string) []string {
	if !strings.HasSuffix(strings.ToLower(name), ".exe") {
		name += ".exe"
	}

	var paths []string
	// User install location: %LOCALAPPDATA%\Programs\Ollama\ollama.exe
	if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
		paths = append(paths, filepath.Join(localAppData, "Programs", "Ollama", name))
	}
	paths = append(paths,
		filepath.Join(`C:\Program Files\Ollama`, name),
		filepath.Join(`C:\Program Files (x86)\Ollama`, name),
	)
	if userProfile := os.Getenv("USERPROFILE"); userProfile != "" {
		paths = append(paths, filepath.Join(userProfile, "Ollama", name))
	}
	return paths
}
