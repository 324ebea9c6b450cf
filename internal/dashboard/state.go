package dashboard

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// ViewState is the dashboard state kept on the operator's machine only.
type ViewState struct {
	LastCleared time.Time `yaml:"last_cleared,omitempty"`
}

// StateFile persists ViewState as YAML. An empty path keeps state in memory.
type StateFile struct {
	path string

	mu  sync.Mutex
	mem ViewState
}

// NewStateFile returns a state file at path.
func NewStateFile(path string) *StateFile {
	return &StateFile{path: path}
}

// Load reads the state. A missing file is the zero state.
func (f *StateFile) Load() (ViewState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.path == "" {
		return f.mem, nil
	}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return ViewState{}, nil
	}
	if err != nil {
		return ViewState{}, err
	}
	var st ViewState
	if err := yaml.Unmarshal(data, &st); err != nil {
		return ViewState{}, fmt.Errorf("parse %s: %w", f.path, err)
	}
	return st, nil
}

// Save replaces the stored state.
func (f *StateFile) Save(st ViewState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.path == "" {
		f.mem = st
		return nil
	}
	data, err := yaml.Marshal(st)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}
