// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package api

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/shelfwatch/shelfwatch/internal/database"
	"github.com/shelfwatch/shelfwatch/internal/integrations"
	"github.com/shelfwatch/shelfwatch/internal/logging"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleConfig exposes the effective configuration with every secret
// masked, for the frontend and for support diagnostics.
func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Masked())
}

// handleIntegrationWebhook is the sink intake. The slug addresses the
// integration; the body is passed through opaque because each provider
// posts its own shape. Ignored payloads still answer 200 so providers do
// not retry them.
func (s *Server) handleIntegrationWebhook(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		http.Error(w, "body too large", http.StatusRequestEntityTooLarge)
		return
	}

	err = s.sink.ProcessSink(r.Context(), slug, payload)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
	case errors.Is(err, database.ErrNotFound):
		http.Error(w, "unknown integration", http.StatusNotFound)
	case errors.Is(err, integrations.ErrIntegrationDisabled):
		http.Error(w, "IntegrationDisabled", http.StatusForbidden)
	default:
		logging.Err(err).Str("slug", slug).Msg("Webhook processing failed")
		http.Error(w, "IntegrationFailed", http.StatusInternalServerError)
	}
}

// handleUpload streams a multipart file into object storage and answers
// with the key and a presigned URL.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.uploader == nil {
		http.Error(w, "storage is not configured", http.StatusNotImplemented)
		return
	}
	maxBytes := int64(s.cfg.Server.MaxUploadSizeMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		http.Error(w, "InvalidInput", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "InvalidInput", http.StatusBadRequest)
		return
	}
	defer file.Close()

	id, err := gonanoid.New()
	if err != nil {
		http.Error(w, "upload failed", http.StatusInternalServerError)
		return
	}
	claims, _ := CurrentUser(r.Context())
	key := fmt.Sprintf("uploads/%s/%s-%s", claims.Subject, id, filepath.Base(header.Filename))
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	err = s.uploader.Upload(r.Context(), key, contentType, file, map[string]string{
		"uploaded-by": claims.Subject,
		"filename":    header.Filename,
	})
	if err != nil {
		logging.Err(err).Str("key", key).Msg("Upload failed")
		http.Error(w, "upload failed", http.StatusInternalServerError)
		return
	}
	url, err := s.uploader.PresignGet(r.Context(), key)
	if err != nil {
		logging.Err(err).Str("key", key).Msg("Presign failed")
		http.Error(w, "upload failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"key": key, "url": url})
}

// handleLogDownload streams the rotated log files as a zip archive. The
// token in the path is a short-lived single-purpose JWT minted through
// the system resolver.
func (s *Server) handleLogDownload(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if _, err := s.auth.VerifyLogDownloadToken(token); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	entries, err := os.ReadDir(s.logDir)
	if err != nil {
		http.Error(w, "no logs available", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="shelfwatch-logs-%s.zip"`, time.Now().UTC().Format("20060102-150405")))
	archive := zip.NewWriter(w)
	defer archive.Close()

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".log") {
			continue
		}
		src, err := os.Open(filepath.Join(s.logDir, entry.Name()))
		if err != nil {
			logging.Err(err).Str("file", entry.Name()).Msg("Skipping unreadable log file")
			continue
		}
		dst, err := archive.Create(entry.Name())
		if err == nil {
			_, err = io.Copy(dst, src)
		}
		src.Close()
		if err != nil {
			logging.Err(err).Str("file", entry.Name()).Msg("Failed to archive log file")
			return
		}
	}
}
