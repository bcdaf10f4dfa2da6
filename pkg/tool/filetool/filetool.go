// Copyright 2026 The Reins Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package filetool provides built-in tools for reading and changing
// files under a fixed root directory.
//
// read_file is safe and runs unattended. write_file and delete_file
// mutate the filesystem, so they default to requiring approval; a
// require_approval override in the tool config applies to the whole
// family. Paths are always relative to the root and may not escape it.
package filetool

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/reins-ai/reins/pkg/tool"
	"github.com/reins-ai/reins/pkg/tool/functiontool"
)

const (
	maxReadSize  = 10 << 20
	maxWriteSize = 1 << 20
)

type readArgs struct {
	Path      string `json:"path" jsonschema:"required,description=File path relative to the root directory"`
	StartLine int    `json:"start_line,omitempty" jsonschema:"description=First line to return (1-indexed)"`
	EndLine   int    `json:"end_line,omitempty" jsonschema:"description=Last line to return (inclusive)"`
}

type writeArgs struct {
	Path    string `json:"path" jsonschema:"required,description=File path relative to the root directory"`
	Content string `json:"content" jsonschema:"required,description=Content to write"`
	Backup  bool   `json:"backup,omitempty" jsonschema:"description=Keep a .bak copy when overwriting an existing file"`
}

type deleteArgs struct {
	Path string `json:"path" jsonschema:"required,description=File path relative to the root directory"`
}

// NewFileTools returns the read, write and delete tools rooted at dir.
// An empty dir means the current working directory.
func NewFileTools(dir string) ([]tool.CallableTool, error) {
	read, err := NewReadFile(dir)
	if err != nil {
		return nil, err
	}
	write, err := NewWriteFile(dir)
	if err != nil {
		return nil, err
	}
	del, err := NewDeleteFile(dir)
	if err != nil {
		return nil, err
	}
	return []tool.CallableTool{read, write, del}, nil
}

// NewReadFile returns a tool that reads a file under dir, optionally
// restricted to a line range. Reading is not gated.
func NewReadFile(dir string) (tool.CallableTool, error) {
	root := rootDir(dir)
	return functiontool.New(
		functiontool.Config{
			Name:        "read_file",
			Description: "Read a file's contents, optionally restricted to a line range",
		},
		func(_ tool.Context, args readArgs) (map[string]any, error) {
			path, err := resolve(root, args.Path)
			if err != nil {
				return nil, err
			}
			info, err := os.Stat(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", args.Path, err)
			}
			if info.IsDir() {
				return nil, fmt.Errorf("%s is a directory", args.Path)
			}
			if info.Size() > maxReadSize {
				return nil, fmt.Errorf("%s is too large: %d bytes (max %d)", args.Path, info.Size(), maxReadSize)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", args.Path, err)
			}

			lines := strings.Split(string(data), "\n")
			content := string(data)
			if args.StartLine > 0 || args.EndLine > 0 {
				content, err = sliceLines(lines, args.StartLine, args.EndLine)
				if err != nil {
					return nil, err
				}
			}
			return map[string]any{
				"path":        args.Path,
				"content":     content,
				"total_lines": len(lines),
			}, nil
		},
	)
}

// NewWriteFile returns a gated tool that creates or overwrites a file
// under dir. Parent directories are created as needed.
func NewWriteFile(dir string) (tool.CallableTool, error) {
	root := rootDir(dir)
	return functiontool.NewWithValidation(
		functiontool.Config{
			Name:             "write_file",
			Description:      "Create a new file or overwrite an existing one",
			RequiresApproval: true,
		},
		func(_ tool.Context, args writeArgs) (map[string]any, error) {
			path, err := resolve(root, args.Path)
			if err != nil {
				return nil, err
			}

			existed := false
			if prev, err := os.ReadFile(path); err == nil {
				existed = true
				if args.Backup {
					if err := os.WriteFile(path+".bak", prev, 0o644); err != nil {
						return nil, fmt.Errorf("failed to create backup: %w", err)
					}
				}
			}

			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create directory: %w", err)
			}
			if err := os.WriteFile(path, []byte(args.Content), 0o644); err != nil {
				return nil, fmt.Errorf("failed to write %s: %w", args.Path, err)
			}

			action := "created"
			if existed {
				action = "overwritten"
			}
			return map[string]any{
				"path":   args.Path,
				"action": action,
				"bytes":  len(args.Content),
			}, nil
		},
		func(args writeArgs) error {
			if len(args.Content) > maxWriteSize {
				return fmt.Errorf("content too large: %d bytes (max %d)", len(args.Content), maxWriteSize)
			}
			return nil
		},
	)
}

// NewDeleteFile returns a gated tool that removes a single file under
// dir. Directories are refused.
func NewDeleteFile(dir string) (tool.CallableTool, error) {
	root := rootDir(dir)
	return functiontool.New(
		functiontool.Config{
			Name:             "delete_file",
			Description:      "Delete a file",
			RequiresApproval: true,
		},
		func(_ tool.Context, args deleteArgs) (map[string]any, error) {
			path, err := resolve(root, args.Path)
			if err != nil {
				return nil, err
			}
			info, err := os.Stat(path)
			if err != nil {
				return nil, fmt.Errorf("failed to delete %s: %w", args.Path, err)
			}
			if info.IsDir() {
				return nil, fmt.Errorf("%s is a directory", args.Path)
			}
			if err := os.Remove(path); err != nil {
				return nil, fmt.Errorf("failed to delete %s: %w", args.Path, err)
			}
			return map[string]any{
				"path":    args.Path,
				"deleted": true,
			}, nil
		},
	)
}

// sliceLines returns lines start..end joined, defaulting the open end
// of the range to the file boundary.
func sliceLines(lines []string, start, end int) (string, error) {
	if start <= 0 {
		start = 1
	}
	if end <= 0 || end > len(lines) {
		end = len(lines)
	}
	if start > len(lines) {
		return "", fmt.Errorf("start_line %d is past the end of the file (%d lines)", start, len(lines))
	}
	if start > end {
		return "", fmt.Errorf("start_line %d is after end_line %d", start, end)
	}
	return strings.Join(lines[start-1:end], "\n"), nil
}

// resolve joins rel onto root and rejects paths that escape it.
func resolve(root, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("path is required")
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("path must be relative to the root directory")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(filepath.Join(root, rel))
	if err != nil {
		return "", err
	}
	if absPath != absRoot && !strings.HasPrefix(absPath, absRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the root directory", rel)
	}
	return absPath, nil
}

func rootDir(dir string) string {
	if dir == "" {
		return "."
	}
	return dir
}
