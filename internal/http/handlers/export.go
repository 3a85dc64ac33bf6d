package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/iago/assessment-dispatch/internal/domain"
	"github.com/iago/assessment-dispatch/internal/formatting"
	"github.com/iago/assessment-dispatch/internal/storage"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (api *API) ExportRubric(w http.ResponseWriter, r *http.Request) {
	artifactPath := strings.TrimSpace(r.URL.Query().Get("path"))
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = "md"
	}
	if format != "md" && format != "xlsx" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "format must be md or xlsx")
		return
	}

	var rubric domain.Rubric
	if !api.loadArtifact(w, r, artifactPath, &rubric) {
		return
	}

	stem := strings.TrimSuffix(path.Base(artifactPath), path.Ext(artifactPath))
	if format == "md" {
		writeMarkdown(w, stem, formatting.RubricMarkdown(rubric))
		return
	}

	workbook, err := formatting.RubricXLSX(rubric)
	if err != nil {
		api.log.Errorw("render rubric workbook", "path", artifactPath, "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to render rubric")
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+stem+`.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(workbook)
}

func (api *API) ExportViva(w http.ResponseWriter, r *http.Request) {
	artifactPath := strings.TrimSpace(r.URL.Query().Get("path"))

	var artifact domain.VivaArtifact
	if !api.loadArtifact(w, r, artifactPath, &artifact) {
		return
	}
	stem := strings.TrimSuffix(path.Base(artifactPath), path.Ext(artifactPath))
	writeMarkdown(w, stem, formatting.VivaMarkdown(artifact))
}

// loadArtifact reads a stored JSON artifact into target, answering the
// request itself when that fails.
func (api *API) loadArtifact(w http.ResponseWriter, r *http.Request, artifactPath string, target any) bool {
	if artifactPath == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "path is required")
		return false
	}
	if storage.Extension(artifactPath) != "json" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "path must point to a json artifact")
		return false
	}

	body, err := api.storage.Get(r.Context(), artifactPath)
	if err != nil {
		api.writeStorageError(w, r, artifactPath, err)
		return false
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		api.writeStorageError(w, r, artifactPath, err)
		return false
	}
	if err := json.Unmarshal(data, target); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, "invalid_artifact", "artifact is not valid JSON")
		return false
	}
	return true
}

func (api *API) writeStorageError(w http.ResponseWriter, r *http.Request, artifactPath string, err error) {
	switch {
	case errors.Is(err, storage.ErrBadPath), errors.Is(err, storage.ErrNoFile):
		writeError(w, r, http.StatusNotFound, "not_found", "artifact not found")
	case errors.Is(err, storage.ErrBadExtension):
		writeError(w, r, http.StatusBadRequest, "invalid_request", "artifact has a disallowed extension")
	default:
		api.log.Errorw("read artifact", "path", artifactPath, "error", err)
		writeError(w, r, http.StatusBadGateway, "storage_error", "failed to read artifact")
	}
}

func writeMarkdown(w http.ResponseWriter, stem, body string) {
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="`+stem+`.md"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, body)
}
