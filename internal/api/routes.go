package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"media-reaper/internal/fileinfo"
	"media-reaper/internal/fsops"
	"media-reaper/internal/metrics"
)

// Deleter is the deletion entry point the API exposes
type Deleter interface {
	Delete(ctx context.Context, path string) bool
}

// AvailabilityFunc reports whether the media index can be used
type AvailabilityFunc func(ctx context.Context) error

// PathRequest is the body of the single-path calls
type PathRequest struct {
	Path string `json:"path"`
}

// DeleteResponse is the answer to a delete call
type DeleteResponse struct {
	Result bool `json:"result"`
}

// BatchRequest is the body of a batch delete
type BatchRequest struct {
	Paths []string `json:"paths"`
}

// BatchResponse reports per-path results of a batch delete
type BatchResponse struct {
	Deleted int             `json:"deleted"`
	Failed  int             `json:"failed"`
	Results map[string]bool `json:"results"`
}

// HealthResponse is the answer to the health call
type HealthResponse struct {
	Status    string `json:"status"`
	Available bool   `json:"available"`
}

// ErrorResponse represents an error message
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// DeleteHandler always answers 200. Anything that goes wrong, including an
// unreadable body, is reported as {"result":false}.
func DeleteHandler(svc Deleter, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PathRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.WithError(err).Debug("unreadable delete request")
			respondJSON(w, DeleteResponse{Result: false}, http.StatusOK)
			return
		}

		deleted := svc.Delete(r.Context(), fsops.NormalizePath(req.Path))
		respondJSON(w, DeleteResponse{Result: deleted}, http.StatusOK)
	}
}

// DeleteBatchHandler deletes each distinct path in order
func DeleteBatchHandler(svc Deleter, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, "invalid request body", http.StatusBadRequest)
			return
		}

		paths := lo.Uniq(lo.Map(req.Paths, func(p string, _ int) string {
			return fsops.NormalizePath(p)
		}))

		results := make(map[string]bool, len(paths))
		for _, p := range paths {
			if r.Context().Err() != nil {
				// Client went away; do not start any more deletions.
				break
			}
			results[p] = svc.Delete(r.Context(), p)
		}

		deleted := lo.Count(lo.Values(results), true)
		log.WithFields(logrus.Fields{
			"requested": len(paths),
			"deleted":   deleted,
		}).Info("batch deletion finished")

		respondJSON(w, BatchResponse{
			Deleted: deleted,
			Failed:  len(results) - deleted,
			Results: results,
		}, http.StatusOK)
	}
}

// InfoHandler answers 200 with the file's metadata or 500 with a
// FILE_INFO_ERROR body.
func InfoHandler(log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PathRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			metrics.RecordFileInfo("error")
			respondJSON(w, &fileinfo.Error{Code: fileinfo.ErrorCode, Message: err.Error()}, http.StatusInternalServerError)
			return
		}

		path := fsops.NormalizePath(req.Path)
		info, err := fileinfo.Stat(path)
		if err != nil {
			metrics.RecordFileInfo("error")
			log.WithError(err).WithField("path", path).Warn("file info query failed")
			var fe *fileinfo.Error
			if !errors.As(err, &fe) {
				fe = &fileinfo.Error{Code: fileinfo.ErrorCode, Message: err.Error()}
			}
			respondJSON(w, fe, http.StatusInternalServerError)
			return
		}

		if info.Exists {
			metrics.RecordFileInfo("exists")
		} else {
			metrics.RecordFileInfo("missing")
		}
		respondJSON(w, info, http.StatusOK)
	}
}

// HealthHandler reports whether the media index is usable. The API itself
// answering is enough for status "ok".
func HealthHandler(available AvailabilityFunc, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "ok", Available: true}
		if available != nil {
			if err := available(r.Context()); err != nil {
				log.WithError(err).Warn("media index unavailable")
				resp.Available = false
			}
		}

		if r.Method == http.MethodHead {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			return
		}
		respondJSON(w, resp, http.StatusOK)
	}
}

func respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, ErrorResponse{
		Error:   http.StatusText(status),
		Code:    status,
		Message: message,
	}, status)
}
