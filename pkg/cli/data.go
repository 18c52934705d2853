package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/mchmarny/overunder/pkg/analyzer"
	"github.com/mchmarny/overunder/pkg/data"
	"github.com/mchmarny/overunder/pkg/gate"
	"github.com/mchmarny/overunder/pkg/hash"
)

const maxRequestBytes = 1 << 16

type analyzeRequest struct {
	Hash string `json:"hash"`
}

type batchRequest struct {
	Text   string   `json:"text,omitempty"`
	Hashes []string `json:"hashes,omitempty"`
}

type loginRequest struct {
	Key string `json:"key"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(v); err != nil {
		slog.Debug("error binding json", "error", err)
		writeError(w, http.StatusBadRequest, "error binding json")
		return false
	}
	return true
}

// requireSessionHandler rejects requests without a valid session.
func requireSessionHandler(s *gate.Sessions, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Require(); err != nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, r)
	}
}

func analysisStatus(err error) int {
	switch {
	case errors.Is(err, hash.ErrInvalidFormat),
		errors.Is(err, analyzer.ErrEmptyInput),
		errors.Is(err, analyzer.ErrEmptyBatch),
		errors.Is(err, analyzer.ErrBatchTooLarge):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func analyzeAPIHandler(a *analyzer.Analyzer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req analyzeRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		res, err := a.Analyze(r.Context(), req.Hash)
		if err != nil {
			status := analysisStatus(err)
			if status == http.StatusInternalServerError {
				slog.Error("failed to analyze hash", "error", err)
			}
			writeError(w, status, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, res)
	}
}

func batchAPIHandler(a *analyzer.Analyzer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req batchRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		text := req.Text
		if len(req.Hashes) > 0 {
			text = strings.Join(req.Hashes, "\n")
		}

		report, err := a.AnalyzeBatch(r.Context(), text)
		if err != nil {
			status := analysisStatus(err)
			if status == http.StatusInternalServerError {
				slog.Error("failed to analyze batch", "error", err)
			}
			writeError(w, status, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, report)
	}
}

func historyAPIHandler(a *analyzer.Analyzer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := data.ListFilter{
			Label: r.URL.Query().Get("label"),
			Limit: queryParamInt(r, "limit", data.HistoryLimit),
		}

		list, err := a.History(r.Context(), filter)
		if err != nil {
			slog.Error("failed to list history", "error", err)
			writeError(w, http.StatusInternalServerError, "error listing history")
			return
		}

		writeJSON(w, http.StatusOK, list)
	}
}

func clearHistoryAPIHandler(a *analyzer.Analyzer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := a.Clear(r.Context()); err != nil {
			slog.Error("failed to clear history", "error", err)
			writeError(w, http.StatusInternalServerError, "error clearing history")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func exportAPIHandler(cfg *appConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := data.ExportFileName(cfg.Now())
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		if err := cfg.Store.Export(r.Context(), w); err != nil {
			slog.Error("failed to export history", "error", err)
			writeError(w, http.StatusInternalServerError, "error exporting history")
		}
	}
}

func statsAPIHandler(a *analyzer.Analyzer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := a.Stats(r.Context())
		if err != nil {
			slog.Error("failed to get stats", "error", err)
			writeError(w, http.StatusInternalServerError, "error getting stats")
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func loginAPIHandler(s *gate.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		if strings.TrimSpace(req.Key) == "" {
			writeError(w, http.StatusBadRequest, "access key required")
			return
		}

		session, err := s.Login(req.Key)
		if err != nil {
			if errors.Is(err, gate.ErrInvalidKey) {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			slog.Error("failed to start session", "error", err)
			writeError(w, http.StatusInternalServerError, "error starting session")
			return
		}

		writeJSON(w, http.StatusOK, newSessionStatus(session, s.TTL()))
	}
}

func logoutAPIHandler(s *gate.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if err := s.Logout(); err != nil {
			slog.Error("failed to end session", "error", err)
			writeError(w, http.StatusInternalServerError, "error ending session")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func sessionAPIHandler(s *gate.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		session, _ := s.Check()
		writeJSON(w, http.StatusOK, newSessionStatus(session, s.TTL()))
	}
}

func queryParamInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}

	i, err := strconv.Atoi(v)
	if err != nil {
		slog.Debug("error converting query string to int", "value", v, "error", err)
		return def
	}

	if i < 1 || i > data.HistoryLimit {
		return def
	}

	return i
}
