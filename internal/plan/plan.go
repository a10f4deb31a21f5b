// Package plan reads and writes YAML plan files: a project's tasks, their
// dependencies, the team roster and who is assigned to what.
package plan

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/antigravity-dev/planboard/internal/graph"
)

// Document is one plan file.
type Document struct {
	Project   string   `yaml:"project"`
	StartTime string   `yaml:"start_time,omitempty"`
	Members   []Member `yaml:"members,omitempty"`
	Tasks     []Task   `yaml:"tasks"`
}

type Member struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name,omitempty"`
}

// Task is keyed by the id it gets in the store. DependsOn and Assignees
// refer to other task keys and member ids or names.
type Task struct {
	Key       string   `yaml:"key"`
	Title     string   `yaml:"title"`
	Category  string   `yaml:"category,omitempty"`
	Duration  float64  `yaml:"duration"`
	Completed bool     `yaml:"completed,omitempty"`
	StartTime string   `yaml:"start_time,omitempty"`
	DependsOn []string `yaml:"depends_on,omitempty"`
	Assignees []string `yaml:"assignees,omitempty"`
}

// Parse decodes a plan and validates its structure. Unknown fields are
// rejected so typos do not silently drop data.
func Parse(r io.Reader) (Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return Document{}, fmt.Errorf("plan: empty document")
		}
		return Document{}, fmt.Errorf("plan: decode: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func LoadFile(path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return Document{}, fmt.Errorf("plan: open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Validate checks what the store would reject anyway, but with messages
// that point at the offending entry.
func (d Document) Validate() error {
	if strings.TrimSpace(d.Project) == "" {
		return fmt.Errorf("plan: project is required")
	}
	if d.StartTime != "" {
		if _, err := graph.ParseClock(d.StartTime); err != nil {
			return fmt.Errorf("plan: start_time: %w", err)
		}
	}

	seen := make(map[string]struct{}, len(d.Tasks))
	for i, t := range d.Tasks {
		key := strings.TrimSpace(t.Key)
		if key == "" {
			return fmt.Errorf("plan: tasks[%d]: key is required", i)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("plan: tasks[%d]: duplicate key %q", i, key)
		}
		seen[key] = struct{}{}
		if t.Duration <= 0 {
			return fmt.Errorf("plan: task %q: duration must be positive", key)
		}
		if t.StartTime != "" {
			if _, err := graph.ParseClock(t.StartTime); err != nil {
				return fmt.Errorf("plan: task %q: %w", key, err)
			}
		}
	}

	for i, m := range d.Members {
		if strings.TrimSpace(m.ID) == "" {
			return fmt.Errorf("plan: members[%d]: id is required", i)
		}
	}
	return nil
}

// Encode writes doc as YAML with two-space indentation.
func Encode(w io.Writer, doc Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("plan: encode: %w", err)
	}
	return enc.Close()
}
