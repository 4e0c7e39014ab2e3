// Package upload serves the web upload page the player advertises on the
// local network: drop music files in a browser, manage the library, and
// watch player events over a WebSocket stream.
package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/pageramp/pageramp/internal/config"
	"github.com/pageramp/pageramp/internal/logger"
	"github.com/pageramp/pageramp/internal/models"
)

// allowedExtensions is the upload whitelist. Everything else is rejected
// before touching the disk.
var allowedExtensions = map[string]bool{
	".mp3": true,
	".wav": true,
	".m3u": true,
}

// Server is the HTTP upload server.
type Server struct {
	config    *config.Config
	logger    *logger.Logger
	wsHandler *Handler

	eventCallbacks []eventSubscription
	eventMu        sync.RWMutex

	httpServer *http.Server

	serverInfo models.ServerInfo
}

// eventSubscription tracks a callback with an ID for safe unsubscribe.
type eventSubscription struct {
	id string
	cb models.EventCallback
}

// New creates an upload server instance.
func New(cfg *config.Config, log *logger.Logger) *Server {
	s := &Server{
		config: cfg,
		logger: log.WithName("upload"),
		serverInfo: models.ServerInfo{
			Application:   "pageramp",
			SchemaVersion: 1,
			MusicDir:      cfg.Music.Dir,
			MaxUploadSize: cfg.Server.MaxUploadSize,
		},
	}
	s.wsHandler = NewHandler(s, s.logger)
	return s
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := os.MkdirAll(s.config.Music.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create music directory: %w", err)
	}

	addr := fmt.Sprintf(":%d", s.config.Server.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  5 * time.Minute, // uploads on slow Wi-Fi take a while
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("Upload server listening", logger.String("addr", addr))
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down upload server...")
		return s.shutdown()
	case err := <-serverErr:
		return fmt.Errorf("upload server error: %w", err)
	}
}

// Subscribe adds an event callback and returns its unsubscribe function.
func (s *Server) Subscribe(callback models.EventCallback) func() {
	s.eventMu.Lock()
	defer s.eventMu.Unlock()

	id := models.GenerateEventID()
	s.eventCallbacks = append(s.eventCallbacks, eventSubscription{id: id, cb: callback})

	return func() {
		s.eventMu.Lock()
		defer s.eventMu.Unlock()
		for i := range s.eventCallbacks {
			if s.eventCallbacks[i].id == id {
				s.eventCallbacks = append(s.eventCallbacks[:i], s.eventCallbacks[i+1:]...)
				break
			}
		}
	}
}

// GetServerInfo returns the info message sent to clients on connect.
func (s *Server) GetServerInfo() models.ServerInfo {
	return s.serverInfo
}

// EmitEvent sends an event to all subscribers. Callbacks run asynchronously
// so a slow client never blocks the emitter.
func (s *Server) EmitEvent(eventType models.EventType, data interface{}) {
	s.eventMu.RLock()
	callbacks := make([]eventSubscription, len(s.eventCallbacks))
	copy(callbacks, s.eventCallbacks)
	s.eventMu.RUnlock()

	for _, sub := range callbacks {
		go sub.cb(eventType, data)
	}
}

// Router builds the HTTP route table. Exposed for tests.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/ws", s.wsHandler.HandleWebSocket)
	router.HandleFunc("/", s.handleIndex).Methods("GET")
	router.HandleFunc("/upload", s.handleUpload).Methods("POST")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/library", s.handleLibrary).Methods("GET")
	api.HandleFunc("/delete", s.handleDelete).Methods("POST")

	router.HandleFunc("/health", s.handleHealth).Methods("GET")

	router.Use(s.loggingMiddleware)
	router.Use(s.corsMiddleware)

	return router
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexPage)
}

// handleLibrary lists the music directory, largest-visible sort by name.
func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.listLibrary()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, tracks)
}

func (s *Server) listLibrary() ([]models.TrackFile, error) {
	entries, err := os.ReadDir(s.config.Music.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read music directory: %w", err)
	}

	tracks := make([]models.TrackFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !allowedExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		tracks = append(tracks, models.TrackFile{
			Name:       entry.Name(),
			Size:       info.Size(),
			SizeString: models.FormatSize(info.Size()),
		})
	}
	sort.Slice(tracks, func(i, j int) bool { return tracks[i].Name < tracks[j].Name })
	return tracks, nil
}

// handleUpload accepts one multipart file field named "file".
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxSize := s.config.Server.MaxUploadSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	// The client controls the filename; reduce it to its base component.
	name := filepath.Base(header.Filename)
	if name == "." || name == "/" || name == "" {
		s.writeError(w, http.StatusBadRequest, "invalid filename")
		return
	}
	if !allowedExtensions[strings.ToLower(filepath.Ext(name))] {
		s.writeError(w, http.StatusUnsupportedMediaType,
			fmt.Sprintf("file type not allowed: %s", filepath.Ext(name)))
		return
	}

	dst := filepath.Join(s.config.Music.Dir, name)
	out, err := os.Create(dst)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to store file")
		return
	}
	written, err := io.Copy(out, file)
	closeErr := out.Close()
	if err != nil || closeErr != nil {
		os.Remove(dst)
		s.writeError(w, http.StatusInternalServerError, "failed to store file")
		return
	}

	s.logger.Info("Upload completed",
		logger.String("file", name),
		logger.String("size", models.FormatSize(written)),
	)
	s.EmitEvent(models.EventTypeUploadCompleted, models.TrackFile{
		Name:       name,
		Size:       written,
		SizeString: models.FormatSize(written),
	})
	s.EmitEvent(models.EventTypeLibraryUpdated, nil)

	s.writeJSON(w, map[string]interface{}{
		"name": name,
		"size": written,
	})
}

// handleDelete removes one file from the library.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "missing name")
		return
	}

	name := filepath.Base(req.Name)
	if name != req.Name {
		s.writeError(w, http.StatusBadRequest, "invalid name")
		return
	}

	path := filepath.Join(s.config.Music.Dir, name)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			s.writeError(w, http.StatusNotFound, "file not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to delete file")
		return
	}

	s.logger.Info("File deleted", logger.String("file", name))
	s.EmitEvent(models.EventTypeFileDeleted, map[string]string{"name": name})
	s.EmitEvent(models.EventTypeLibraryUpdated, nil)

	s.writeJSON(w, map[string]string{"deleted": name})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"status":      "ok",
		"timestamp":   time.Now().UTC(),
		"connections": s.wsHandler.GetConnectionCount(),
	})
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shutdown HTTP server", logger.Err(err))
	}
	s.wsHandler.Shutdown()
	s.EmitEvent(models.EventTypeServerShutdown, nil)

	s.logger.Info("Upload server shutdown complete")
	return nil
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("HTTP request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Duration("duration", time.Since(start)),
			logger.String("remote_addr", r.RemoteAddr),
		)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", logger.Err(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	errorResponse := map[string]interface{}{
		"error": message,
		"code":  code,
	}
	if err := json.NewEncoder(w).Encode(errorResponse); err != nil {
		s.logger.Error("Failed to encode error response", logger.Err(err))
	} else {
		s.logger.Warn("HTTP error response",
			logger.Int("status", code),
			logger.String("message", message),
		)
	}
}
