// Package server provides the local JSON API over the mirror.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/bryan-buckman/greadersync/internal/database"
	"github.com/bryan-buckman/greadersync/internal/mirror"
	"github.com/bryan-buckman/greadersync/internal/model"
	"github.com/bryan-buckman/greadersync/internal/opml"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Upstream call budgets for request handlers.
const (
	refreshTimeout = 5 * time.Minute
	pushTimeout    = 30 * time.Second
	countTimeout   = 10 * time.Second
)

// Syncer is the part of *mirror.Mirror the handlers drive.
type Syncer interface {
	Sync(ctx context.Context) (mirror.SyncResult, error)
	Push(ctx context.Context) (mirror.PushResult, error)
	RemoteUnreadCount(ctx context.Context) (uint64, error)
}

// Server is the main HTTP server.
type Server struct {
	db     database.Store
	syncer Syncer
	log    *slog.Logger
	router chi.Router
	srv    *http.Server
}

// New creates a new server.
func New(db database.Store, syncer Syncer, log *slog.Logger) *Server {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		db:     db,
		syncer: syncer,
		log:    log,
	}
	s.setupRoutes()
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/items", s.handleItems)
		r.Post("/mark-read", s.handleMarkRead)
		r.Post("/refresh", s.handleRefresh)
		r.Get("/unread-count", s.handleUnreadCount)
		r.Post("/settings", s.handleSaveSettings)
		r.Get("/settings", s.handleGetSettings)
		r.Post("/cleanup", s.handleCleanup)
		r.Get("/sidebar", s.handleSidebar)
		r.Get("/export-opml", s.handleExportOPML)
	})

	s.router = r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on addr until Shutdown. It returns http.ErrServerClosed after
// a clean shutdown.
func (s *Server) Start(addr string) error {
	s.srv.Addr = addr
	s.log.Info("server starting", "addr", addr)
	return s.srv.ListenAndServe()
}

// Shutdown stops accepting requests and waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	onlyUnread := false
	if v := r.URL.Query().Get("unread"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "Invalid unread flag", http.StatusBadRequest)
			return
		}
		onlyUnread = b
	}

	var (
		items []model.Item
		err   error
	)
	if v := r.URL.Query().Get("feed"); v != "" {
		feedID, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			http.Error(w, "Invalid feed id", http.StatusBadRequest)
			return
		}
		if _, ferr := s.db.GetFeedByID(feedID); errors.Is(ferr, database.ErrNotFound) {
			http.Error(w, "Feed not found", http.StatusNotFound)
			return
		} else if ferr != nil {
			s.log.Error("get feed", "feed", feedID, "error", ferr)
			http.Error(w, "Failed to list items", http.StatusInternalServerError)
			return
		}
		items, err = s.db.GetItems(feedID, onlyUnread)
	} else {
		items, err = s.db.GetAllItems(onlyUnread)
	}
	if err != nil {
		s.log.Error("list items", "error", err)
		http.Error(w, "Failed to list items", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// handleMarkRead records read marks locally, then tries to push them. A failed
// push leaves the marks queued for the next sync.
func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemIDs []int64 `json:"item_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if err := s.db.MarkItemsRead(req.ItemIDs); err != nil {
		s.log.Error("mark read", "error", err)
		http.Error(w, "Failed to mark read", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), pushTimeout)
	defer cancel()
	res, err := s.syncer.Push(ctx)
	resp := map[string]any{
		"status":  "ok",
		"pushed":  res.Pushed,
		"pending": res.Pending,
	}
	if err != nil {
		s.log.Warn("push after mark read failed", "error", err)
		resp["push_error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), refreshTimeout)
	defer cancel()

	res, err := s.syncer.Sync(ctx)
	if err != nil {
		s.log.Error("refresh", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"status":    "error",
			"error":     err.Error(),
			"new_items": res.Pull.NewItems,
			"pushed":    res.Push.Pushed,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"new_items":      res.Pull.NewItems,
		"pages":          res.Pull.Pages,
		"read_elsewhere": res.Pull.Reconciled,
		"pushed":         res.Push.Pushed,
	})
}

func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	local, err := s.db.UnreadCount()
	if err != nil {
		s.log.Error("local unread count", "error", err)
		http.Error(w, "Failed to count", http.StatusInternalServerError)
		return
	}
	resp := map[string]any{"local": local}

	ctx, cancel := context.WithTimeout(r.Context(), countTimeout)
	defer cancel()
	if remote, err := s.syncer.RemoteUnreadCount(ctx); err != nil {
		resp["remote_error"] = err.Error()
	} else {
		resp["remote"] = remote
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PollingInterval int `json:"polling_interval"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.PollingInterval < database.MinPollingIntervalMinutes {
		req.PollingInterval = database.MinPollingIntervalMinutes
	}
	if err := s.db.SetSetting(model.SettingPollingInterval, strconv.Itoa(req.PollingInterval)); err != nil {
		s.log.Error("save settings", "error", err)
		http.Error(w, "Failed to save", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "polling_interval": req.PollingInterval})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	interval, err := s.db.GetPollingInterval()
	if err != nil {
		s.log.Error("get settings", "error", err)
		http.Error(w, "Failed to load settings", http.StatusInternalServerError)
		return
	}
	resp := map[string]any{"polling_interval": interval}
	if last, err := s.db.GetLastSync(); err == nil && !last.IsZero() {
		resp["last_sync"] = last.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.db.CleanupReadItems()
	if err != nil {
		s.log.Error("cleanup", "error", err)
		http.Error(w, "Cleanup failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "deleted": deleted})
}

func (s *Server) handleSidebar(w http.ResponseWriter, r *http.Request) {
	folders, unfiled, err := s.subscriptions()
	if err != nil {
		s.log.Error("sidebar", "error", err)
		http.Error(w, "Failed to load feeds", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"folders": folders,
		"unfiled": unfiled,
	})
}

func (s *Server) handleExportOPML(w http.ResponseWriter, r *http.Request) {
	folders, unfiled, err := s.subscriptions()
	if err != nil {
		s.log.Error("export opml", "error", err)
		http.Error(w, "Failed to get feeds", http.StatusInternalServerError)
		return
	}

	data, err := opml.Export("greadersync subscriptions", folders, unfiled, time.Now())
	if err != nil {
		s.log.Error("export opml", "error", err)
		http.Error(w, "Failed to export", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Disposition", "attachment; filename=greadersync-feeds.opml")
	_, _ = w.Write(data)
}

// --- Helpers ---

func (s *Server) subscriptions() ([]model.FolderWithFeeds, []model.Feed, error) {
	folders, err := s.db.GetFoldersWithFeeds()
	if err != nil {
		return nil, nil, err
	}
	unfiled, err := s.db.GetUnfiledFeeds()
	if err != nil {
		return nil, nil, err
	}
	return folders, unfiled, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
