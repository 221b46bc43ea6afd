package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"loom/internal/capability"
)

// FileConfig scopes the file capabilities to a root directory. An empty Root
// means the process working directory.
type FileConfig struct {
	Root string
}

// resolvePath restricts file access to relative paths inside the configured
// root: no absolute paths, no traversal, no home expansion.
func (c FileConfig) resolvePath(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("path is required")
	}
	if filepath.IsAbs(raw) || strings.HasPrefix(raw, "~") || strings.HasPrefix(raw, `\`) {
		return "", fmt.Errorf("path %q must be relative to the workspace", raw)
	}
	cleaned := filepath.Clean(raw)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the workspace", raw)
	}
	root := c.Root
	if root == "" {
		root = "."
	}
	return filepath.Join(root, cleaned), nil
}

type fileRead struct{ cfg FileConfig }

// NewFileRead builds the file_read capability.
func NewFileRead(cfg FileConfig) capability.Capability {
	return &fileRead{cfg: cfg}
}

func (t *fileRead) Definition() capability.Definition {
	return capability.Definition{
		Name:        "file_read",
		Description: "Read a UTF-8 text file from the workspace.",
		Parameters: capability.ParameterSchema{
			Type: "object",
			Properties: map[string]capability.Property{
				"path": {Type: "string", Description: "Workspace-relative file path."},
			},
			Required: []string{"path"},
		},
	}
}

func (t *fileRead) Execute(_ context.Context, args map[string]any) (*capability.Result, error) {
	raw, _ := args["path"].(string)
	path, err := t.cfg.resolvePath(raw)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", raw, err)
	}
	content := string(data)
	return &capability.Result{
		Content: content,
		Data:    map[string]any{"output": content, "path": raw, "bytes": len(data)},
	}, nil
}

type fileWrite struct{ cfg FileConfig }

// NewFileWrite builds the file_write capability. Parent directories are
// created; an existing file is overwritten.
func NewFileWrite(cfg FileConfig) capability.Capability {
	return &fileWrite{cfg: cfg}
}

func (t *fileWrite) Definition() capability.Definition {
	return capability.Definition{
		Name:        "file_write",
		Description: "Write text content to a workspace file, overwriting it if present.",
		Parameters: capability.ParameterSchema{
			Type: "object",
			Properties: map[string]capability.Property{
				"path":    {Type: "string", Description: "Workspace-relative file path."},
				"content": {Type: "string", Description: "Content to write."},
			},
			Required: []string{"path", "content"},
		},
	}
}

func (t *fileWrite) Execute(_ context.Context, args map[string]any) (*capability.Result, error) {
	raw, _ := args["path"].(string)
	content, _ := args["content"].(string)
	path, err := t.cfg.resolvePath(raw)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create parent for %s: %w", raw, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", raw, err)
	}
	summary := fmt.Sprintf("wrote %d bytes to %s", len(content), raw)
	return &capability.Result{
		Content: summary,
		Data:    map[string]any{"output": summary, "path": raw, "bytes": len(content)},
	}, nil
}
