// files.go — HTTP handlers файловых операций hub:
// Store (PUT), Delete, ListFiles, PerformFiles, RevokeAll.
package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/gaiahub/internal/api/errors"
	"github.com/bigkaa/gaiahub/internal/api/middleware"
	"github.com/bigkaa/gaiahub/internal/batch"
	"github.com/bigkaa/gaiahub/internal/service"
)

// jsonBodyLimit — предел тела JSON-запросов list-files и revoke-all.
const jsonBodyLimit = 4 * 1024

// relativePath извлекает остаток пути после адреса, срезая хвостовой слэш.
func relativePath(r *http.Request) string {
	return strings.TrimSuffix(chi.URLParam(r, "*"), "/")
}

// Store обрабатывает POST /store/{address}/{path}: потоковая запись тела.
func (h *Handler) Store(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	path := relativePath(r)
	if path == "" {
		apierrors.WriteResponse(w, apierrors.InvalidInput("a file path is required"))
		return
	}

	result, err := h.hub.PutFile(r.Context(), &service.PutRequest{
		BucketAddress: address,
		Path:          path,
		AuthHeader:    r.Header.Get("Authorization"),
		Body:          r.Body,
		ContentType:   r.Header.Get("Content-Type"),
		ContentLength: r.ContentLength,
		IfMatch:       r.Header.Get("If-Match"),
		IfNoneMatch:   r.Header.Get("If-None-Match"),
	})
	if err != nil {
		middleware.OperationsTotal.WithLabelValues("put", "error").Inc()
		apierrors.WriteResponse(w, err)
		return
	}

	middleware.OperationsTotal.WithLabelValues("put", "success").Inc()
	writeJSON(w, http.StatusAccepted, result)
}

// Delete обрабатывает DELETE /delete/{address}/{path}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	path := relativePath(r)
	if path == "" {
		apierrors.WriteResponse(w, apierrors.InvalidInput("a file path is required"))
		return
	}

	err := h.hub.DeleteFile(r.Context(), &service.DeleteRequest{
		BucketAddress: address,
		Path:          path,
		AuthHeader:    r.Header.Get("Authorization"),
		IfMatch:       r.Header.Get("If-Match"),
		IfNoneMatch:   r.Header.Get("If-None-Match"),
	})
	if err != nil {
		middleware.OperationsTotal.WithLabelValues("delete", "error").Inc()
		apierrors.WriteResponse(w, err)
		return
	}

	middleware.OperationsTotal.WithLabelValues("delete", "success").Inc()
	w.WriteHeader(http.StatusAccepted)
}

// listFilesBody — тело запроса list-files.
type listFilesBody struct {
	Page     string `json:"page,omitempty"`
	PageSize int    `json:"pageSize,omitempty"`
	Stat     bool   `json:"stat,omitempty"`
}

// ListFiles обрабатывает POST /list-files/{address}.
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	var body listFilesBody
	if r.ContentLength != 0 {
		if err := decodeJSONBody(w, r, jsonBodyLimit, &body); err != nil {
			apierrors.WriteResponse(w, err)
			return
		}
	}

	page, err := h.hub.ListFiles(r.Context(), &service.ListRequest{
		BucketAddress: address,
		AuthHeader:    r.Header.Get("Authorization"),
		Page:          body.Page,
		PageSize:      body.PageSize,
		Stat:          body.Stat,
	})
	if err != nil {
		middleware.OperationsTotal.WithLabelValues("list", "error").Inc()
		apierrors.WriteResponse(w, err)
		return
	}

	middleware.OperationsTotal.WithLabelValues("list", "success").Inc()
	writeJSON(w, http.StatusAccepted, page)
}

// PerformFiles обрабатывает POST /perform-files/{address}: batch-дерево.
func (h *Handler) PerformFiles(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	root := &batch.Node{}
	if err := decodeJSONBody(w, r, h.cfg.MaxFileUploadSizeBytes(), root); err != nil {
		apierrors.WriteResponse(w, err)
		return
	}

	results, err := h.hub.PerformFiles(r.Context(), &service.PerformRequest{
		BucketAddress: address,
		AuthHeader:    r.Header.Get("Authorization"),
		Root:          root,
	})
	if err != nil {
		middleware.OperationsTotal.WithLabelValues("perform", "error").Inc()
		apierrors.WriteResponse(w, err)
		return
	}
	if results == nil {
		results = []batch.Result{}
	}

	middleware.OperationsTotal.WithLabelValues("perform", "success").Inc()
	writeJSON(w, http.StatusAccepted, results)
}

// revokeAllBody — тело запроса revoke-all.
type revokeAllBody struct {
	OldestValidTimestamp int64 `json:"oldestValidTimestamp"`
}

// revokeAllResponse — тело успешного ответа revoke-all.
type revokeAllResponse struct {
	Status string `json:"status"`
}

// RevokeAll обрабатывает POST /revoke-all/{address}.
func (h *Handler) RevokeAll(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	var body revokeAllBody
	if err := decodeJSONBody(w, r, jsonBodyLimit, &body); err != nil {
		apierrors.WriteResponse(w, err)
		return
	}

	err := h.hub.RevokeAll(r.Context(), &service.RevokeRequest{
		BucketAddress:        address,
		AuthHeader:           r.Header.Get("Authorization"),
		OldestValidTimestamp: body.OldestValidTimestamp,
	})
	if err != nil {
		middleware.OperationsTotal.WithLabelValues("revoke", "error").Inc()
		apierrors.WriteResponse(w, err)
		return
	}

	middleware.OperationsTotal.WithLabelValues("revoke", "success").Inc()
	writeJSON(w, http.StatusAccepted, revokeAllResponse{Status: "success"})
}
