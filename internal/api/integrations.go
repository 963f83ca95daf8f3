package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/2cloudlabs/yolo-transcript/internal/database"
	"github.com/2cloudlabs/yolo-transcript/internal/drive"
)

// IntegrationStore is the slice of the database the integration endpoints
// need.
type IntegrationStore interface {
	UpsertIntegration(ctx context.Context, userID, provider string, settings json.RawMessage) (*database.Integration, error)
	GetIntegration(ctx context.Context, userID, provider string) (*database.Integration, error)
	DisconnectIntegration(ctx context.Context, userID, provider string) error
	GetTranscriptionJob(ctx context.Context, id uuid.UUID) (*database.TranscriptionJob, error)
}

type IntegrationsHandler struct {
	store IntegrationStore
	drive *drive.Client
	log   zerolog.Logger
}

func NewIntegrationsHandler(store IntegrationStore, dc *drive.Client, log zerolog.Logger) *IntegrationsHandler {
	return &IntegrationsHandler{store: store, drive: dc, log: log.With().Str("component", "integrations_api").Logger()}
}

func (h *IntegrationsHandler) Routes(r chi.Router) {
	r.Get("/integrations/drive/connect", h.Connect)
	r.Get("/integrations/drive/status", h.Status)
	r.Delete("/integrations/drive", h.Disconnect)
	r.Get("/integrations/drive/files", h.ListFiles)
	r.Delete("/integrations/drive/files/{fileID}", h.DeleteFile)
	r.Post("/integrations/drive/export", h.Export)
}

// CallbackRoutes are mounted outside the authenticated group: the OAuth
// provider redirects here without a session token, carrying the user in the
// state parameter.
func (h *IntegrationsHandler) CallbackRoutes(r chi.Router) {
	r.Get("/integrations/drive/callback", h.Callback)
}

func (h *IntegrationsHandler) Connect(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r)
	if !ok {
		WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"auth_url": h.drive.AuthURL(userID)})
}

func (h *IntegrationsHandler) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		WriteError(w, http.StatusBadRequest, "missing code or state")
		return
	}

	settings, err := h.drive.Exchange(r.Context(), code)
	if err != nil {
		h.log.Error().Err(err).Msg("oauth code exchange failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	raw, err := settings.Marshal()
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to encode integration settings")
		return
	}

	integ, err := h.store.UpsertIntegration(r.Context(), state, drive.ProviderName, raw)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", state).Msg("failed to store integration")
		WriteError(w, http.StatusInternalServerError, "failed to store integration")
		return
	}

	h.log.Info().Str("user_id", state).Str("integration_id", integ.ID.String()).Msg("drive connected")
	WriteJSON(w, http.StatusOK, map[string]any{"connected": true, "provider": drive.ProviderName})
}

func (h *IntegrationsHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r)
	if !ok {
		WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	integ, err := h.store.GetIntegration(r.Context(), userID, drive.ProviderName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			WriteJSON(w, http.StatusOK, map[string]any{"connected": false})
			return
		}
		h.log.Error().Err(err).Str("user_id", userID).Msg("integration lookup failed")
		WriteError(w, http.StatusInternalServerError, "failed to load integration")
		return
	}

	settings, err := drive.ParseSettings(integ.Settings)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "corrupt integration settings")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"connected":      integ.Status == "connected",
		"provider":       integ.Provider,
		"folder_path":    settings.FolderPath,
		"sync_frequency": settings.SyncFrequency,
		"connected_at":   integ.ConnectedAt,
		"last_sync":      integ.LastSync,
	})
}

func (h *IntegrationsHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r)
	if !ok {
		WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.store.DisconnectIntegration(r.Context(), userID, drive.ProviderName); err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("failed to disconnect integration")
		WriteError(w, http.StatusInternalServerError, "failed to disconnect integration")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"disconnected": true})
}

// connectedIntegration loads the user's drive integration or writes a 404.
func (h *IntegrationsHandler) connectedIntegration(w http.ResponseWriter, r *http.Request) (*database.Integration, string, bool) {
	userID, ok := UserID(r)
	if !ok {
		WriteError(w, http.StatusUnauthorized, "unauthorized")
		return nil, "", false
	}

	integ, err := h.store.GetIntegration(r.Context(), userID, drive.ProviderName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			WriteError(w, http.StatusNotFound, "drive integration not connected")
			return nil, "", false
		}
		h.log.Error().Err(err).Str("user_id", userID).Msg("integration lookup failed")
		WriteError(w, http.StatusInternalServerError, "failed to load integration")
		return nil, "", false
	}
	if integ.Status != "connected" {
		WriteError(w, http.StatusNotFound, "drive integration not connected")
		return nil, "", false
	}
	return integ, userID, true
}

func (h *IntegrationsHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	integ, _, ok := h.connectedIntegration(w, r)
	if !ok {
		return
	}

	folderPath := r.URL.Query().Get("folder")
	if folderPath == "" {
		settings, _ := drive.ParseSettings(integ.Settings)
		folderPath = settings.FolderPath
	}

	folderID := "root"
	if folderPath != "" {
		var err error
		folderID, err = h.drive.EnsureFolder(r.Context(), integ, folderPath)
		if err != nil {
			h.log.Error().Err(err).Str("folder", folderPath).Msg("folder resolve failed")
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	files, err := h.drive.List(r.Context(), integ, folderID)
	if err != nil {
		h.log.Error().Err(err).Msg("drive list failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (h *IntegrationsHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	integ, _, ok := h.connectedIntegration(w, r)
	if !ok {
		return
	}

	fileID := chi.URLParam(r, "fileID")
	if fileID == "" {
		WriteError(w, http.StatusBadRequest, "missing file id")
		return
	}

	if err := h.drive.Delete(r.Context(), integ, fileID); err != nil {
		h.log.Error().Err(err).Str("file_id", fileID).Msg("drive delete failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

type exportRequest struct {
	TranscriptionID uuid.UUID `json:"transcription_id"`
	FolderPath      string    `json:"folder_path"`
}

// Export uploads a completed transcript as a text file to the user's drive
// folder.
func (h *IntegrationsHandler) Export(w http.ResponseWriter, r *http.Request) {
	integ, userID, ok := h.connectedIntegration(w, r)
	if !ok {
		return
	}

	var req exportRequest
	if err := DecodeJSON(r, &req); err != nil || req.TranscriptionID == uuid.Nil {
		WriteError(w, http.StatusBadRequest, "transcription_id is required")
		return
	}

	job, err := h.store.GetTranscriptionJob(r.Context(), req.TranscriptionID)
	if err != nil || job.UserID != userID {
		WriteError(w, http.StatusNotFound, "transcription not found")
		return
	}
	if job.Status != database.JobStatusCompleted {
		WriteError(w, http.StatusBadRequest, "transcription is not completed")
		return
	}

	folderPath := req.FolderPath
	if folderPath == "" {
		settings, _ := drive.ParseSettings(integ.Settings)
		folderPath = settings.FolderPath
	}

	folderID := "root"
	if folderPath != "" {
		folderID, err = h.drive.EnsureFolder(r.Context(), integ, folderPath)
		if err != nil {
			h.log.Error().Err(err).Str("folder", folderPath).Msg("folder resolve failed")
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	name := exportFileName(job.FileName)
	file, err := h.drive.Upload(r.Context(), integ, folderID, name, "text/plain", []byte(job.Text))
	if err != nil {
		h.log.Error().Err(err).Str("job_id", job.ID.String()).Msg("drive upload failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.log.Info().
		Str("user_id", userID).
		Str("job_id", job.ID.String()).
		Str("file_id", file.ID).
		Msg("transcript exported")

	WriteJSON(w, http.StatusOK, map[string]any{"exported": true, "file": file})
}

// exportFileName derives the uploaded text file's name from the source media
// file name.
func exportFileName(fileName string) string {
	base := fileName
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	if base == "" {
		base = "transcript"
	}
	return fmt.Sprintf("%s.txt", base)
}
