// Package preview runs a development server that renders templates on
// request and pushes live-reload notifications to connected browsers when a
// template file changes.
package preview

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/marka/internal/logging"
	"github.com/conneroisu/marka/pkg/eval"
	"github.com/conneroisu/marka/pkg/loader"
	"github.com/conneroisu/marka/pkg/output"
	"github.com/conneroisu/marka/pkg/template"
)

// reloadScript is injected into html previews so the browser reconnects
// and refreshes when a template changes.
const reloadScript = `<script>(function(){` +
	`var ws=new WebSocket("ws://"+location.host+"/__reload");` +
	`ws.onmessage=function(){location.reload()};` +
	`})()</script>`

// Options configures a preview server.
type Options struct {
	// Addr is the host:port to bind.
	Addr string

	// Paths is the template search path, also watched for changes.
	Paths []string

	// DataFile is an optional YAML file whose mapping becomes the render
	// data for every preview.
	DataFile string

	// Method selects the serializer: xml, xhtml, html or text.
	Method string

	// Strict makes undefined variables fatal.
	Strict bool

	// Logger receives request and reload logs; nil uses the default.
	Logger logging.Logger
}

// Server previews templates over HTTP with live reload.
type Server struct {
	opts    Options
	loader  *loader.Loader
	logger  logging.Logger
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// New builds a preview server. Templates load through a shared auto-reload
// loader, so edits take effect on the next request.
func New(opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = logging.NewLogger(nil)
	}
	l, err := loader.New(opts.Paths, loader.WithAutoReload())
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		l.Close()
		return nil, err
	}
	for _, dir := range opts.Paths {
		if err := w.Add(dir); err != nil {
			opts.Logger.Warn(context.Background(), err, "cannot watch directory", "dir", dir)
		}
	}
	return &Server{
		opts:    opts,
		loader:  l,
		logger:  opts.Logger.WithComponent("preview"),
		watcher: w,
		clients: map[*websocket.Conn]struct{}{},
	}, nil
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/__reload", s.handleReload)
	mux.HandleFunc("/", s.handleRender)

	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go s.watch(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	s.logger.Info(ctx, "preview server listening", "addr", s.opts.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.close()
		return err
	case err := <-errCh:
		s.close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) close() {
	s.watcher.Close()
	s.loader.Close()
	s.mu.Lock()
	for conn := range s.clients {
		conn.CloseNow()
	}
	s.clients = map[*websocket.Conn]struct{}{}
	s.mu.Unlock()
}

// handleRender loads the template named by the request path and writes the
// rendered document.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/")
	if name == "" {
		http.Error(w, "template name required in path", http.StatusNotFound)
		return
	}

	tmpl, err := s.loader.Load(name, "")
	if err != nil {
		if errors.Is(err, template.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data, err := s.renderData()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	mode := eval.Lenient
	if s.opts.Strict {
		mode = eval.Strict
	}
	ser, err := output.ByMethod(s.opts.Method)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	rendered, err := output.Render(tmpl.Render(data, mode), ser)
	if err != nil {
		s.logger.Error(r.Context(), err, "render failed", "template", name)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType(s.opts.Method))
	if s.opts.Method == "html" || s.opts.Method == "xhtml" {
		rendered += reloadScript
	}
	fmt.Fprint(w, rendered)
}

// handleReload upgrades to a websocket and keeps the connection until the
// client goes away; reload notifications are pushed from the watcher.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn(r.Context(), err, "websocket upgrade failed")
		return
	}
	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()

	// block until the peer closes; reads also service control frames
	ctx := r.Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			break
		}
	}

	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.CloseNow()
}

func (s *Server) watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			s.logger.Debug(ctx, "template changed", "file", ev.Name)
			s.broadcast(ctx)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn(ctx, err, "watch error")
		}
	}
}

func (s *Server) broadcast(ctx context.Context) {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		writeCtx, cancel := context.WithTimeout(ctx, time.Second)
		if err := conn.Write(writeCtx, websocket.MessageText, []byte("reload")); err != nil {
			conn.CloseNow()
			s.mu.Lock()
			delete(s.clients, conn)
			s.mu.Unlock()
		}
		cancel()
	}
}

func (s *Server) renderData() (map[string]any, error) {
	if s.opts.DataFile == "" {
		return nil, nil
	}
	return LoadData(s.opts.DataFile)
}

// LoadData reads a YAML mapping to use as render data.
func LoadData(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parsing data file %s: %w", path, err)
	}
	return data, nil
}

func contentType(method string) string {
	switch method {
	case "html":
		return "text/html; charset=utf-8"
	case "xhtml":
		return "application/xhtml+xml; charset=utf-8"
	case "text":
		return "text/plain; charset=utf-8"
	default:
		return "application/xml; charset=utf-8"
	}
}
