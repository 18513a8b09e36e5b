package view

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watch recompiles views whose name starts with prefix as soon as their
// source is written, until ctx is done. onChange is called after every
// recompilation with the view name and the compile error, if any.
func (e *Engine) Watch(ctx context.Context, prefix string, onChange func(name string, err error)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("view: failed to create file watcher: %w", err)
	}
	defer w.Close()

	for _, dir := range e.paths {
		if err := addTree(w, dir); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("view: watcher: %w", err)
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if st, err := os.Stat(ev.Name); err == nil && st.IsDir() {
				_ = addTree(w, ev.Name)
				continue
			}
			name, ok := e.nameOf(ev.Name)
			if !ok || !strings.HasPrefix(name, normalize(prefix)) {
				continue
			}
			e.Forget()
			_, err := e.Compile(name)
			if onChange != nil {
				onChange(name, err)
			}
		}
	}
}

// nameOf maps a source path back to its view name.
func (e *Engine) nameOf(path string) (string, bool) {
	if !strings.HasSuffix(path, e.ext) {
		return "", false
	}
	for _, dir := range e.paths {
		rel, err := filepath.Rel(dir, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		return normalize(filepath.ToSlash(strings.TrimSuffix(rel, e.ext))), true
	}
	return "", false
}

func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := w.Add(p); err != nil {
				return fmt.Errorf("view: watch %s: %w", p, err)
			}
		}
		return nil
	})
}
