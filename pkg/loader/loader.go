// Package loader finds, parses and caches templates on disk. A Loader
// implements template.Loader, so templates constructed through it can
// resolve their includes against the same search path.
package loader

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/marka/pkg/input"
	"github.com/conneroisu/marka/pkg/template"
)

// Loader resolves template names against a search path. Parsed templates
// are cached by resolved path; with auto-reload enabled a file change
// invalidates its cache entry, so the next Load re-parses.
type Loader struct {
	search  []string
	tmplOpt []template.Option

	mu    sync.RWMutex
	cache map[string]*template.Template

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// Option configures a Loader.
type Option func(*Loader)

// WithTemplateOptions passes options through to every template the loader
// parses.
func WithTemplateOptions(opts ...template.Option) Option {
	return func(l *Loader) { l.tmplOpt = append(l.tmplOpt, opts...) }
}

// WithAutoReload watches loaded files and drops them from the cache when
// they change on disk.
func WithAutoReload() Option {
	return func(l *Loader) { l.done = make(chan struct{}) }
}

// New builds a loader over the given search directories, tried in order.
func New(search []string, opts ...Option) (*Loader, error) {
	l := &Loader{
		search: append([]string(nil), search...),
		cache:  map[string]*template.Template{},
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.done != nil {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, err
		}
		l.watcher = w
		go l.watch()
	}
	return l, nil
}

// Close stops the file watcher, if any.
func (l *Loader) Close() error {
	if l.watcher == nil {
		return nil
	}
	close(l.done)
	return l.watcher.Close()
}

// Load resolves name and returns the parsed template. Relative references
// from an include resolve against the including file first, then against
// the search path. A missing template reports template.ErrNotFound.
func (l *Loader) Load(name, relativeTo string) (*template.Template, error) {
	path, err := l.resolve(name, relativeTo)
	if err != nil {
		return nil, err
	}

	l.mu.RLock()
	cached, ok := l.cache[path]
	l.mu.RUnlock()
	if ok {
		return cached, nil
	}

	tmpl, err := l.parse(path)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cache[path] = tmpl
	l.mu.Unlock()

	if l.watcher != nil {
		// a failed add just disables reload for this file
		_ = l.watcher.Add(path)
	}
	return tmpl, nil
}

func (l *Loader) resolve(name, relativeTo string) (string, error) {
	if filepath.IsAbs(name) {
		if fileExists(name) {
			return filepath.Clean(name), nil
		}
		return "", notFound(name)
	}
	if relativeTo != "" {
		sibling := filepath.Join(filepath.Dir(relativeTo), name)
		if fileExists(sibling) {
			return sibling, nil
		}
	}
	for _, dir := range l.search {
		candidate := filepath.Join(dir, name)
		if fileExists(candidate) {
			return candidate, nil
		}
	}
	return "", notFound(name)
}

func (l *Loader) parse(path string) (*template.Template, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFound(path)
		}
		return nil, err
	}
	defer f.Close()

	opts := append([]template.Option{template.WithLoader(l)}, l.tmplOpt...)
	if isText(path) {
		src, err := io.ReadAll(f)
		if err != nil {
			return nil, err
		}
		return template.NewText(string(src), path, opts...)
	}
	return template.New(input.ParseXML(f, path), path, opts...)
}

// isText picks the text template dialect by extension; everything else
// parses as markup.
func isText(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".text":
		return true
	}
	return false
}

func (l *Loader) watch() {
	for {
		select {
		case <-l.done:
			return
		case ev, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename|fsnotify.Create) != 0 {
				l.invalidate(ev.Name)
			}
		case _, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (l *Loader) invalidate(path string) {
	l.mu.Lock()
	delete(l.cache, filepath.Clean(path))
	l.mu.Unlock()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func notFound(name string) error {
	return fmt.Errorf("template %q: %w", name, template.ErrNotFound)
}
