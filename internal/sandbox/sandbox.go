// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrAccessDenied is matched by every DeniedError.
var ErrAccessDenied = errors.New("access denied")

// DeniedError reports a path that resolves outside the base directory.
type DeniedError struct {
	// Path is the caller-supplied path, not the resolved one.
	Path string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("access denied: %q is outside the base directory", e.Path)
}

// Is makes errors.Is(err, ErrAccessDenied) true for any DeniedError.
func (e *DeniedError) Is(target error) bool {
	return target == ErrAccessDenied
}

// =============================================================================
// SANDBOX
// =============================================================================

// Sandbox holds the canonical base directory. It is safe for concurrent use;
// nothing in it changes after New returns.
type Sandbox struct {
	base string
}

// New canonicalizes base (absolute, symlinks evaluated) and checks that it
// is an existing directory.
func New(base string) (*Sandbox, error) {
	if base == "" {
		base = "."
	}

	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to stat base directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("base directory %s is not a directory", resolved)
	}

	return &Sandbox{base: resolved}, nil
}

// Base returns the canonical base directory.
func (s *Sandbox) Base() string {
	return s.base
}

// Resolve maps rel to an absolute path inside the base directory without
// touching the filesystem. The path does not have to exist.
func (s *Sandbox) Resolve(rel string) (string, error) {
	return Resolve(s.base, rel)
}

// ResolveReal is Resolve followed by symlink evaluation of the longest
// existing prefix of the result. A link inside the base that points outside
// it is rejected. Used before any filesystem access.
func (s *Sandbox) ResolveReal(rel string) (string, error) {
	path, err := s.Resolve(rel)
	if err != nil {
		return "", err
	}

	existing, rest := path, ""
	for {
		resolved, err := filepath.EvalSymlinks(existing)
		if err == nil {
			full := filepath.Join(resolved, rest)
			if !within(s.base, full) {
				return "", &DeniedError{Path: rel}
			}
			return full, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			// Nothing on the way up exists; the lexical answer stands.
			return path, nil
		}
		rest = filepath.Join(filepath.Base(existing), rest)
		existing = parent
	}
}

// Rel returns path relative to the base, using forward slashes. Callers use
// it for display only.
func (s *Sandbox) Rel(path string) string {
	rel, err := filepath.Rel(s.base, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// =============================================================================
// RESOLUTION
// =============================================================================

// Resolve joins rel onto base, normalizes the result and accepts it only if
// it equals base or is contained in it component-wise. base must already be
// absolute and clean.
//
// An absolute rel is taken as-is rather than re-rooted under base, so
// "/etc/passwd" is denied while an absolute path that happens to lie inside
// base is accepted.
func Resolve(base, rel string) (string, error) {
	if strings.ContainsRune(rel, 0) {
		return "", &DeniedError{Path: rel}
	}

	var candidate string
	if filepath.IsAbs(rel) || hasVolume(rel) {
		candidate = filepath.Clean(rel)
	} else {
		candidate = filepath.Join(base, rel)
	}

	if !within(base, candidate) {
		return "", &DeniedError{Path: rel}
	}
	return candidate, nil
}

// within reports whether path is base or lies beneath it.
func within(base, path string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	if runtime.GOOS == "windows" && !strings.EqualFold(filepath.VolumeName(base), filepath.VolumeName(path)) {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// hasVolume catches "C:foo" style paths, which IsAbs reports as relative.
func hasVolume(p string) bool {
	return filepath.VolumeName(p) != ""
}
