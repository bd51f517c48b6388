// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/jeranaias/rigrun-agent/internal/sandbox"
	"github.com/jeranaias/rigrun-agent/internal/util"
)

// =============================================================================
// FILE TOOLS
// =============================================================================

// WriteConfirmation is file.write's payload.
const WriteConfirmation = "written"

// MaxReadBytes is the largest file file.read returns.
const MaxReadBytes = 10 * 1024 * 1024

const (
	filePerm = 0o644
	dirPerm  = 0o755
)

type fileTools struct {
	sb *sandbox.Sandbox
}

func (t *fileTools) read(ctx context.Context, params map[string]any) (any, error) {
	rel, err := requireStringParam(params, "path")
	if err != nil {
		return nil, err
	}
	path, err := t.sb.ResolveReal(rel)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fileError(rel, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fileError(rel, err)
	}
	if info.IsDir() {
		return nil, Failf(KindInvalidRequest, "is a directory: %s", rel)
	}
	if info.Size() > MaxReadBytes {
		return nil, Failf(KindInvalidRequest, "file too large: %s (%d bytes, limit %d)", rel, info.Size(), MaxReadBytes)
	}

	data, err := io.ReadAll(io.LimitReader(f, MaxReadBytes+1))
	if err != nil {
		return nil, fileError(rel, err)
	}
	if len(data) > MaxReadBytes {
		return nil, Failf(KindInvalidRequest, "file too large: %s", rel)
	}
	return string(data), nil
}

func (t *fileTools) write(ctx context.Context, params map[string]any) (any, error) {
	rel, err := requireStringParam(params, "path")
	if err != nil {
		return nil, err
	}
	content, err := getStringParam(params, "content", "")
	if err != nil {
		return nil, err
	}
	path, err := t.sb.ResolveReal(rel)
	if err != nil {
		return nil, err
	}

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return nil, Failf(KindInvalidRequest, "is a directory: %s", rel)
	}

	// The parent chain was resolved inside the base, so any directories
	// created for the write stay inside it too.
	if err := util.WriteFileAtomic(path, []byte(content), filePerm, dirPerm); err != nil {
		return nil, fileError(rel, err)
	}
	return WriteConfirmation, nil
}

// fileError names the caller's path rather than the resolved one.
func fileError(rel string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &Failure{Kind: KindNotFound, Reason: "file not found: " + rel, Cause: err}
	case errors.Is(err, fs.ErrPermission):
		return &Failure{Kind: KindAccessDenied, Reason: "permission denied: " + rel, Cause: err}
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return &Failure{Kind: KindExecutionFailure, Reason: pathErr.Op + " " + rel + ": " + pathErr.Err.Error(), Cause: err}
	}
	return &Failure{Kind: KindExecutionFailure, Reason: err.Error(), Cause: err}
}
