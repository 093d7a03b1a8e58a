// Package server serves a directory of generated images as a browsable
// gallery.
//
// Routes:
//
//	GET /             HTML gallery, newest image first
//	GET /api/images   the same listing as JSON
//	GET /images/NAME  the image file itself
package server

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

//go:embed templates/*
var templateFS embed.FS

var gallery = template.Must(template.ParseFS(templateFS, "templates/gallery.html"))

// imageExts are the extensions listed in the gallery.
var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".webp": true,
}

// Image describes one file in the gallery.
type Image struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

type handler struct {
	dir    string
	logger *slog.Logger
}

// New returns a handler serving the images in dir. A nil logger discards
// request logs.
func New(dir string, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := &handler{dir: dir, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.index)
	mux.HandleFunc("GET /api/images", h.list)
	mux.Handle("GET /images/", http.StripPrefix("/images/", http.HandlerFunc(h.image)))
	return h.logRequests(mux)
}

// Images lists the image files in dir, newest first.
func Images(dir string) ([]Image, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("server: list %s: %w", dir, err)
	}

	images := make([]Image, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // removed while listing
		}
		images = append(images, Image{Name: e.Name(), Size: info.Size(), Modified: info.ModTime()})
	}
	slices.SortFunc(images, func(a, b Image) int {
		if c := b.Modified.Compare(a.Modified); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return images, nil
}

func (h *handler) index(w http.ResponseWriter, _ *http.Request) {
	images, err := Images(h.dir)
	if err != nil {
		h.logger.Error("list images", "dir", h.dir, "err", err)
		http.Error(w, "cannot list images", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := struct {
		Title  string
		Images []Image
	}{Title: "Style transfer gallery", Images: images}
	if err := gallery.Execute(w, data); err != nil {
		h.logger.Error("render gallery", "err", err)
	}
}

func (h *handler) list(w http.ResponseWriter, _ *http.Request) {
	images, err := Images(h.dir)
	if err != nil {
		h.logger.Error("list images", "dir", h.dir, "err", err)
		http.Error(w, "cannot list images", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(images); err != nil {
		h.logger.Error("encode listing", "err", err)
	}
}

// image serves a single file. Only plain image names are accepted, so
// requests cannot reach subdirectories or files outside dir.
func (h *handler) image(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Path
	if name == "" || strings.ContainsAny(name, `/\`) || name == ".." ||
		!imageExts[strings.ToLower(filepath.Ext(name))] {
		http.NotFound(w, r)
		return
	}
	path := filepath.Join(h.dir, name)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, path)
}

// statusRecorder remembers the status code written through it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}
