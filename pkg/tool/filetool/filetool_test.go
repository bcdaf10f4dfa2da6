package filetool_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/reins-ai/reins/pkg/tool"
	"github.com/reins-ai/reins/pkg/tool/filetool"
)

func testContext() tool.Context {
	return tool.NewContext(context.Background(), tool.ContextOptions{
		CallID: "test-call",
		RunID:  "test-run",
	})
}

// TestReadFile covers a full read and a line-range read
func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("one\ntwo\nthree\nfour"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	read, err := filetool.NewReadFile(dir)
	if err != nil {
		t.Fatalf("NewReadFile() error = %v", err)
	}

	out, err := read.Call(testContext(), map[string]any{"path": "notes.txt"})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got := out["content"].(string); got != "one\ntwo\nthree\nfour" {
		t.Errorf("content = %q", got)
	}
	if got := out["total_lines"].(int); got != 4 {
		t.Errorf("total_lines = %d, want 4", got)
	}

	out, err = read.Call(testContext(), map[string]any{"path": "notes.txt", "start_line": 2, "end_line": 3})
	if err != nil {
		t.Fatalf("Call() with range error = %v", err)
	}
	if got := out["content"].(string); got != "two\nthree" {
		t.Errorf("ranged content = %q, want %q", got, "two\nthree")
	}
}

// TestReadFile_BadRange rejects a start line past the end of the file
func TestReadFile_BadRange(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "short.txt"), []byte("only line"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	read, err := filetool.NewReadFile(dir)
	if err != nil {
		t.Fatalf("NewReadFile() error = %v", err)
	}

	if _, err := read.Call(testContext(), map[string]any{"path": "short.txt", "start_line": 10}); err == nil {
		t.Error("Call() with out-of-range start_line should fail")
	}
}

// TestWriteFile covers creation, parent directories, and backup on
// overwrite
func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	write, err := filetool.NewWriteFile(dir)
	if err != nil {
		t.Fatalf("NewWriteFile() error = %v", err)
	}

	out, err := write.Call(testContext(), map[string]any{
		"path":    "reports/q3.md",
		"content": "draft",
	})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got := out["action"].(string); got != "created" {
		t.Errorf("action = %q, want created", got)
	}
	data, err := os.ReadFile(filepath.Join(dir, "reports", "q3.md"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "draft" {
		t.Errorf("written content = %q", data)
	}

	out, err = write.Call(testContext(), map[string]any{
		"path":    "reports/q3.md",
		"content": "final",
		"backup":  true,
	})
	if err != nil {
		t.Fatalf("Call() overwrite error = %v", err)
	}
	if got := out["action"].(string); got != "overwritten" {
		t.Errorf("action = %q, want overwritten", got)
	}
	backup, err := os.ReadFile(filepath.Join(dir, "reports", "q3.md.bak"))
	if err != nil {
		t.Fatalf("backup missing: %v", err)
	}
	if string(backup) != "draft" {
		t.Errorf("backup content = %q, want previous version", backup)
	}
}

// TestWriteFile_ContentTooLarge fails validation before the handler
// runs
func TestWriteFile_ContentTooLarge(t *testing.T) {
	dir := t.TempDir()
	write, err := filetool.NewWriteFile(dir)
	if err != nil {
		t.Fatalf("NewWriteFile() error = %v", err)
	}

	_, err = write.Call(testContext(), map[string]any{
		"path":    "big.txt",
		"content": strings.Repeat("a", 1<<20+1),
	})
	if err == nil {
		t.Fatal("Call() with oversized content should fail")
	}
	if !strings.Contains(err.Error(), "content too large") {
		t.Errorf("error = %v, want content size rejection", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "big.txt")); !os.IsNotExist(statErr) {
		t.Error("oversized file should not have been written")
	}
}

// TestDeleteFile covers removal and the directory refusal
func TestDeleteFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "old.log"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "keep"), 0o755); err != nil {
		t.Fatalf("Mkdir() error = %v", err)
	}

	del, err := filetool.NewDeleteFile(dir)
	if err != nil {
		t.Fatalf("NewDeleteFile() error = %v", err)
	}

	out, err := del.Call(testContext(), map[string]any{"path": "old.log"})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got := out["deleted"].(bool); !got {
		t.Error("deleted = false, want true")
	}
	if _, err := os.Stat(filepath.Join(dir, "old.log")); !os.IsNotExist(err) {
		t.Error("file still exists after delete")
	}

	if _, err := del.Call(testContext(), map[string]any{"path": "keep"}); err == nil {
		t.Error("Call() on a directory should fail")
	}
}

// TestPathEscape rejects traversal and absolute paths on every tool
func TestPathEscape(t *testing.T) {
	dir := t.TempDir()
	tools, err := filetool.NewFileTools(dir)
	if err != nil {
		t.Fatalf("NewFileTools() error = %v", err)
	}

	for _, tl := range tools {
		args := map[string]any{"path": "../outside.txt"}
		if tl.Name() == "write_file" {
			args["content"] = "x"
		}
		if _, err := tl.Call(testContext(), args); err == nil {
			t.Errorf("%s accepted a path outside the root", tl.Name())
		}

		args["path"] = "/etc/hosts"
		if _, err := tl.Call(testContext(), args); err == nil {
			t.Errorf("%s accepted an absolute path", tl.Name())
		}
	}
}

// TestApprovalFlags verifies only the mutating tools are gated
func TestApprovalFlags(t *testing.T) {
	tools, err := filetool.NewFileTools("")
	if err != nil {
		t.Fatalf("NewFileTools() error = %v", err)
	}

	want := map[string]bool{
		"read_file":   false,
		"write_file":  true,
		"delete_file": true,
	}
	for _, tl := range tools {
		expected, ok := want[tl.Name()]
		if !ok {
			t.Errorf("unexpected tool %s", tl.Name())
			continue
		}
		if tl.RequiresApproval() != expected {
			t.Errorf("%s RequiresApproval() = %v, want %v", tl.Name(), tl.RequiresApproval(), expected)
		}
	}
	if len(tools) != len(want) {
		t.Errorf("NewFileTools() returned %d tools, want %d", len(tools), len(want))
	}
}
