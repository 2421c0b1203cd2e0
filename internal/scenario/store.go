// SPDX-License-Identifier: GPL-3.0-or-later

package scenario

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Info describes one scenario file in a store.
type Info struct {
	// Name is the file name without extension; it is what Load and
	// Save key on.
	Name string `json:"name"`

	// Title and Description come from the document header.
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`

	// Devices counts the devices in the document.
	Devices int `json:"devices"`

	// ModTime is the file modification time.
	ModTime time.Time `json:"modTime"`
}

// Store manages a directory of scenario files. It keeps an index of
// the directory contents and can watch for outside edits, so teachers
// may drop files in while the daemon runs.
type Store struct {
	dir    string
	logger *slog.Logger

	mu    sync.RWMutex
	index map[string]Info

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
}

// NewStore opens (creating if needed) a scenario directory and reads
// its initial index. A nil logger disables logging.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating scenario directory: %w", err)
	}
	st := &Store{
		dir:    dir,
		logger: logger,
		index:  make(map[string]Info),
		stopCh: make(chan struct{}),
	}
	st.refresh()
	return st, nil
}

// List returns the indexed scenarios sorted by name.
func (st *Store) List() []Info {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]Info, 0, len(st.index))
	for _, info := range st.index {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Load reads the named scenario.
func (st *Store) Load(name string) (*File, error) {
	path, err := st.path(name)
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// Save writes the named scenario and refreshes the index.
func (st *Store) Save(name string, f *File) error {
	path, err := st.path(name)
	if err != nil {
		return err
	}
	if err := SaveFile(path, f); err != nil {
		return err
	}
	st.refresh()
	return nil
}

// Delete removes the named scenario.
func (st *Store) Delete(name string) error {
	path, err := st.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return err
	}
	st.refresh()
	return nil
}

// path maps a scenario name to its file path bounded to the store
// directory. Names carrying path separators are rejected. An existing
// .yml file wins over the default .yaml extension, so files dropped in
// by hand stay loadable under the name the index shows.
func (st *Store) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid scenario name %q", name)
	}
	yamlPath := filepath.Join(st.dir, name+".yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return yamlPath, nil
	}
	if ymlPath := filepath.Join(st.dir, name+".yml"); fileExists(ymlPath) {
		return ymlPath, nil
	}
	return yamlPath, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// refresh rescans the directory and rebuilds the index.
func (st *Store) refresh() {
	entries, err := os.ReadDir(st.dir)
	if err != nil {
		st.logger.Warn("scenario scan failed", slog.Any("err", err))
		return
	}

	index := make(map[string]Info)
	for _, entry := range entries {
		if entry.IsDir() || !isScenarioPath(entry.Name()) {
			continue
		}
		path := filepath.Join(st.dir, entry.Name())
		f, err := LoadFile(path)
		if err != nil {
			st.logger.Warn("skipping unreadable scenario",
				slog.String("path", path), slog.Any("err", err))
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		name := nameFromPath(path)
		index[name] = Info{
			Name:        name,
			Title:       f.Name,
			Description: f.Description,
			Devices:     len(f.Devices),
			ModTime:     fi.ModTime(),
		}
	}

	st.mu.Lock()
	st.index = index
	st.mu.Unlock()
}

// Watch starts watching the directory for outside edits. The index
// refreshes on every relevant event, and onChange (optional) runs
// with the affected scenario name.
func (st *Store) Watch(onChange func(name string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	if err := watcher.Add(st.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", st.dir, err)
	}
	st.watcher = watcher
	go st.watchLoop(onChange)
	return nil
}

func (st *Store) watchLoop(onChange func(name string)) {
	for {
		select {
		case event, ok := <-st.watcher.Events:
			if !ok {
				return
			}
			if !isScenarioPath(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			st.logger.Debug("scenario directory changed",
				slog.String("path", event.Name),
				slog.String("op", event.Op.String()))
			st.refresh()
			if onChange != nil {
				onChange(nameFromPath(event.Name))
			}

		case err, ok := <-st.watcher.Errors:
			if !ok {
				return
			}
			st.logger.Warn("file watcher error", slog.Any("err", err))

		case <-st.stopCh:
			return
		}
	}
}

// Close stops watching. The store remains usable for Load and Save.
func (st *Store) Close() error {
	close(st.stopCh)
	if st.watcher != nil {
		return st.watcher.Close()
	}
	return nil
}
