// Package view renders html/template views written with a few Blade-style
// layout directives (@extends, @section, @yield, @include). Views are
// compiled to plain template text once and the compiled files are reused
// until their source changes.
package view

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/km-arc/go-foundation/framework/config"
)

// ErrNotFound is returned for views that exist in no view path.
var ErrNotFound = errors.New("view not found")

// Engine finds, compiles and renders views.
type Engine struct {
	paths    []string
	ext      string
	compiled string

	mu    sync.RWMutex
	funcs template.FuncMap
	cache map[string]*template.Template
}

// NewEngine creates an Engine. paths are searched in order; compiledDir
// receives the compiled views.
func NewEngine(paths []string, ext, compiledDir string) *Engine {
	if ext == "" {
		ext = ".html"
	}
	return &Engine{
		paths:    paths,
		ext:      ext,
		compiled: compiledDir,
		funcs:    defaultFuncs(),
		cache:    make(map[string]*template.Template),
	}
}

// New creates an Engine from the view configuration.
func New(cfg config.ViewConfig) *Engine {
	return NewEngine(cfg.Paths, cfg.Ext, cfg.Compiled)
}

func defaultFuncs() template.FuncMap {
	return template.FuncMap{
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"now":   time.Now,
		"default": func(fallback, v any) any {
			if v == nil || v == "" {
				return fallback
			}
			return v
		},
	}
}

// Funcs adds template functions. It clears the parsed template cache.
//
//	views.Funcs(template.FuncMap{"route": router.URL})
func (e *Engine) Funcs(fm template.FuncMap) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for k, v := range fm {
		e.funcs[k] = v
	}
	e.cache = make(map[string]*template.Template)
}

// Paths returns the view paths.
func (e *Engine) Paths() []string { return append([]string(nil), e.paths...) }

// CompiledPath returns the directory holding compiled views.
func (e *Engine) CompiledPath() string { return e.compiled }

// ── Lookup ───────────────────────────────────────────────────────────────────

// find returns the source file of a view. Names use dots or slashes:
// "layouts.app" and "layouts/app" are the same view.
func (e *Engine) find(name string) (string, error) {
	rel := filepath.FromSlash(strings.ReplaceAll(normalize(name), ".", "/")) + e.ext
	for _, dir := range e.paths {
		p := filepath.Join(dir, rel)
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("view [%s]: %w", name, ErrNotFound)
}

// Exists reports whether a view exists.
func (e *Engine) Exists(name string) bool {
	_, err := e.find(name)
	return err == nil
}

// Names lists every view whose name starts with prefix, sorted. A view name is
// its path below a view directory without the extension, with dots for
// separators.
func (e *Engine) Names(prefix string) ([]string, error) {
	set := map[string]bool{}
	for _, dir := range e.paths {
		err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return filepath.SkipDir
				}
				return err
			}
			if d.IsDir() || !strings.HasSuffix(p, e.ext) {
				return nil
			}
			rel, err := filepath.Rel(dir, p)
			if err != nil {
				return err
			}
			name := normalize(filepath.ToSlash(strings.TrimSuffix(rel, e.ext)))
			if strings.HasPrefix(name, normalize(prefix)) {
				set[name] = true
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// ── Compilation ──────────────────────────────────────────────────────────────

// compiledFile returns the compiled file for a source path.
func (e *Engine) compiledFile(source string) string {
	abs, err := filepath.Abs(source)
	if err != nil {
		abs = source
	}
	sum := sha1.Sum([]byte(abs))
	return filepath.Join(e.compiled, hex.EncodeToString(sum[:])+".html")
}

// Compile compiles a view and returns the compiled file path. A compiled
// file newer than its source is reused.
func (e *Engine) Compile(name string) (string, error) {
	_, path, err := e.load(name)
	return path, err
}

// load returns the compiled view, compiling it when the compiled file is
// missing or stale.
func (e *Engine) load(name string) (*compiled, string, error) {
	source, err := e.find(name)
	if err != nil {
		return nil, "", err
	}
	target := e.compiledFile(source)

	if !e.expired(source, target) {
		if b, err := os.ReadFile(target); err == nil {
			if c, err := decode(string(b)); err == nil {
				return c, target, nil
			}
		}
	}

	src, err := os.ReadFile(source)
	if err != nil {
		return nil, "", err
	}
	c, err := compile(normalize(name), string(src))
	if err != nil {
		return nil, "", err
	}
	if err := os.MkdirAll(e.compiled, 0o755); err != nil {
		return nil, "", err
	}
	if err := writeAtomic(target, []byte(c.encode())); err != nil {
		return nil, "", err
	}
	return c, target, nil
}

// writeAtomic replaces path so concurrent readers never see a partial file.
func writeAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".compile-*")
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return err
	}
	return os.Rename(f.Name(), path)
}

func (e *Engine) expired(source, target string) bool {
	st, err := os.Stat(target)
	if err != nil {
		return true
	}
	ss, err := os.Stat(source)
	if err != nil {
		return true
	}
	return ss.ModTime().After(st.ModTime())
}

// CompileAll compiles every view whose name starts with prefix and returns
// the compiled names.
func (e *Engine) CompileAll(prefix string) ([]string, error) {
	names, err := e.Names(prefix)
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		if _, err := e.Compile(n); err != nil {
			return nil, err
		}
	}
	return names, nil
}

// Clear deletes every compiled view and drops parsed templates. It returns
// the number of files removed.
func (e *Engine) Clear() (int, error) {
	e.Forget()
	entries, err := os.ReadDir(e.compiled)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".html" {
			continue
		}
		if err := os.Remove(filepath.Join(e.compiled, entry.Name())); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Forget drops parsed templates so the next render reloads them.
func (e *Engine) Forget() {
	e.mu.Lock()
	e.cache = make(map[string]*template.Template)
	e.mu.Unlock()
}

// ── Rendering ────────────────────────────────────────────────────────────────

// Render renders a view with data.
//
//	views.Render(w, "home", map[string]any{"Title": "Home"})
func (e *Engine) Render(w io.Writer, name string, data any) error {
	t, root, err := e.template(name)
	if err != nil {
		return err
	}
	return t.ExecuteTemplate(w, viewName(root), data)
}

// View renders a view as a 200 HTML response. Render failures become a
// plain 500.
func (e *Engine) View(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := e.Render(&buf, name, data); err != nil {
		http.Error(w, "Template render error: "+name, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// template assembles the template set for a view: its layout chain, leaf
// last so child sections replace the layout's defaults, plus every included
// view. root is the outermost layout.
func (e *Engine) template(name string) (*template.Template, string, error) {
	key := normalize(name)

	e.mu.RLock()
	cached, ok := e.cache[key]
	e.mu.RUnlock()
	if ok {
		return cached, rootName(cached), nil
	}

	var chain []*compiled
	seen := map[string]bool{}
	for n := key; n != ""; {
		if seen[n] {
			return nil, "", fmt.Errorf("view [%s]: circular @extends through [%s]", key, n)
		}
		seen[n] = true
		c, _, err := e.load(n)
		if err != nil {
			return nil, "", err
		}
		chain = append(chain, c)
		n = c.Parent
	}
	root := chain[len(chain)-1].Name

	e.mu.RLock()
	funcs := make(template.FuncMap, len(e.funcs))
	for k, v := range e.funcs {
		funcs[k] = v
	}
	e.mu.RUnlock()

	t, err := template.New(viewName(root)).Funcs(funcs).Parse(chain[len(chain)-1].Body)
	if err != nil {
		return nil, "", fmt.Errorf("view [%s]: %w", root, err)
	}
	for i := len(chain) - 2; i >= 0; i-- {
		if _, err := t.New(viewName(chain[i].Name)).Parse(chain[i].Body); err != nil {
			return nil, "", fmt.Errorf("view [%s]: %w", chain[i].Name, err)
		}
	}

	var pending []string
	for _, c := range chain {
		pending = append(pending, c.Includes...)
	}
	included := map[string]bool{}
	for len(pending) > 0 {
		inc := pending[0]
		pending = pending[1:]
		if included[inc] {
			continue
		}
		included[inc] = true
		c, _, err := e.load(inc)
		if err != nil {
			return nil, "", err
		}
		if _, err := t.New(includeName(inc)).Parse(c.Body); err != nil {
			return nil, "", fmt.Errorf("view [%s]: %w", inc, err)
		}
		pending = append(pending, c.Includes...)
	}

	e.mu.Lock()
	e.cache[key] = t
	e.mu.Unlock()
	return t, root, nil
}

// rootName recovers the layout name from the set's own name.
func rootName(t *template.Template) string {
	return strings.TrimPrefix(t.Name(), "view:")
}
