package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/ytget/yt-converter/internal/model"
)

const maxBodyBytes = 1 << 20

type convertRequest struct {
	URL    string `json:"url"`
	Format string `json:"format"`
}

type convertResponse struct {
	Success       bool   `json:"success"`
	DownloadToken string `json:"download_token"`
	Title         string `json:"title"`
	Format        string `json:"format"`
}

type playlistRequest struct {
	URL string `json:"url"`
}

type healthResponse struct {
	Status     string `json:"status"`
	ActiveJobs int    `json:"active_jobs"`
	Artifacts  int    `json:"artifacts"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Missing URL or format parameter"})
		return
	}

	conv, err := s.deps.Converter.Submit(r.Context(), req.URL, req.Format)
	if err != nil {
		status := StatusFor(err)
		msg := model.MessageOf(err, "Internal server error")
		if status == http.StatusInternalServerError {
			msg = "Conversion failed: " + msg
		}
		writeJSON(w, status, errorResponse{Error: msg})
		return
	}

	writeJSON(w, http.StatusOK, convertResponse{
		Success:       true,
		DownloadToken: conv.Token,
		Title:         conv.Title,
		Format:        conv.Format,
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	art, err := s.deps.Resolver.Open(r.Context(), r.PathValue("token"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer art.Close()

	w.Header().Set("Content-Type", art.Format.ContentType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": art.DisplayName,
	}))
	http.ServeContent(w, r, art.DisplayName, art.ModTime, art.File)
}

func (s *Server) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	var req playlistRequest
	if err := decodeJSON(w, r, &req); err != nil || req.URL == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Missing URL parameter"})
		return
	}

	pl, err := s.deps.Playlists.List(r.Context(), req.URL)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pl)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.deps.Converter != nil {
		resp.ActiveJobs = s.deps.Converter.ActiveJobs()
	}
	if s.deps.Artifacts != nil {
		records, err := s.deps.Artifacts.Snapshot(r.Context())
		if err != nil {
			s.logger.Warn("health check could not list artifacts", "error", err)
			resp.Status = "degraded"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp.Artifacts = len(records)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// StatusFor maps an error to its HTTP status code.
func StatusFor(err error) int {
	switch model.KindOf(err) {
	case model.KindInvalidRequest, model.KindNoStreamAvailable, model.KindUnknownToken:
		return http.StatusBadRequest
	case model.KindArtifactMissing:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes the client-safe message of err with its mapped status
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: model.MessageOf(err, "Internal server error")})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
