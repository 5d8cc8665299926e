package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/tOgg1/gradebook/internal/models"
	"gopkg.in/yaml.v3"
)

// Context represents the current CLI context (selected class/mark set).
type Context struct {
	// ClassID is the currently selected class.
	ClassID string `yaml:"class,omitempty"`
	// ClassName is the human-readable class name (for display).
	ClassName string `yaml:"class_name,omitempty"`
	// MarkSetID is the currently selected mark set.
	MarkSetID string `yaml:"mark_set,omitempty"`
	// MarkSetName is the human-readable mark set name (for display).
	MarkSetName string `yaml:"mark_set_name,omitempty"`
	// UpdatedAt is when the context was last modified.
	UpdatedAt time.Time `yaml:"updated_at,omitempty"`
}

// IsEmpty returns true if no context is set.
func (c *Context) IsEmpty() bool {
	return c.ClassID == "" && c.MarkSetID == ""
}

// HasMarkSet returns true if both a class and a mark set are selected.
func (c *Context) HasMarkSet() bool {
	return c.ClassID != "" && c.MarkSetID != ""
}

// Ref returns the selected mark set reference.
func (c *Context) Ref() models.MarkSetRef {
	return models.MarkSetRef{ClassID: c.ClassID, MarkSetID: c.MarkSetID}
}

// SetClass selects a class. The mark set belongs to the class, so it is cleared.
func (c *Context) SetClass(id, name string) {
	c.ClassID = id
	c.ClassName = name
	c.MarkSetID = ""
	c.MarkSetName = ""
	c.UpdatedAt = time.Now()
}

// SetMarkSet selects a mark set within the current class.
func (c *Context) SetMarkSet(id, name string) {
	c.MarkSetID = id
	c.MarkSetName = name
	c.UpdatedAt = time.Now()
}

// String returns a human-readable representation of the context.
func (c *Context) String() string {
	if c.IsEmpty() {
		return "(no context set)"
	}
	class := c.ClassName
	if class == "" {
		class = shortID(c.ClassID)
	}
	if c.MarkSetID == "" {
		return fmt.Sprintf("class:%s", class)
	}
	markSet := c.MarkSetName
	if markSet == "" {
		markSet = shortID(c.MarkSetID)
	}
	return fmt.Sprintf("class:%s mark_set:%s", class, markSet)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// ContextStore persists the selected class and mark set as YAML. Saves
// replace the file atomically so a concurrent gradebook process never
// reads a half-written selection.
type ContextStore struct {
	path string
}

// NewContextStore creates a store at path, or at the default location
// under the user's config directory when path is empty.
func NewContextStore(path string) *ContextStore {
	if path == "" {
		path = DefaultConfig().ContextPath()
	}
	return &ContextStore{path: path}
}

// Path returns the context file path.
func (s *ContextStore) Path() string {
	return s.path
}

// Load reads the saved selection. A missing file is an empty context, and
// a mark set saved without its class is dropped.
func (s *ContextStore) Load() (*Context, error) {
	ctx := &Context{}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return ctx, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read context file: %w", err)
	}
	if err := yaml.Unmarshal(data, ctx); err != nil {
		return nil, fmt.Errorf("failed to parse context file %s: %w", s.path, err)
	}

	if ctx.ClassID == "" {
		ctx.MarkSetID, ctx.MarkSetName = "", ""
	}
	return ctx, nil
}

// Save writes ctx through a temporary file in the same directory.
func (s *ContextStore) Save(ctx *Context) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create context directory: %w", err)
	}

	data, err := yaml.Marshal(ctx)
	if err != nil {
		return fmt.Errorf("failed to serialize context: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".context-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to write context file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write context file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write context file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace context file: %w", err)
	}
	return nil
}

// Clear removes the saved selection.
func (s *ContextStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove context file: %w", err)
	}
	return nil
}
