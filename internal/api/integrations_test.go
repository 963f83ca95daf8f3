package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/2cloudlabs/yolo-transcript/internal/database"
	"github.com/2cloudlabs/yolo-transcript/internal/drive"
)

// integrationFixture implements both the handler's store and drive.Store.
type integrationFixture struct {
	integ        *database.Integration
	jobs         map[uuid.UUID]*database.TranscriptionJob
	disconnected bool
	getErr       error // forced GetIntegration failure
}

func (f *integrationFixture) UpsertIntegration(ctx context.Context, userID, provider string, settings json.RawMessage) (*database.Integration, error) {
	f.integ = &database.Integration{
		ID:          uuid.New(),
		UserID:      userID,
		Provider:    provider,
		Status:      "connected",
		Settings:    settings,
		ConnectedAt: time.Now(),
	}
	return f.integ, nil
}

func (f *integrationFixture) GetIntegration(ctx context.Context, userID, provider string) (*database.Integration, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.integ == nil || f.integ.UserID != userID {
		return nil, pgx.ErrNoRows
	}
	return f.integ, nil
}

func (f *integrationFixture) DisconnectIntegration(ctx context.Context, userID, provider string) error {
	f.disconnected = true
	if f.integ != nil {
		f.integ.Status = "disconnected"
	}
	return nil
}

func (f *integrationFixture) GetTranscriptionJob(ctx context.Context, id uuid.UUID) (*database.TranscriptionJob, error) {
	j, ok := f.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job not found")
	}
	return j, nil
}

func (f *integrationFixture) UpdateIntegrationSettings(ctx context.Context, id uuid.UUID, settings json.RawMessage) error {
	if f.integ != nil {
		f.integ.Settings = settings
	}
	return nil
}

func (f *integrationFixture) TouchIntegrationSync(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	if f.integ != nil {
		f.integ.LastSync = &now
	}
	return nil
}

func connectedFixture(t *testing.T) *integrationFixture {
	t.Helper()
	settings := drive.Settings{
		AccessToken:  "tok",
		RefreshToken: "ref",
		ExpiresAt:    time.Now().Add(time.Hour),
		FolderPath:   "Yolo/Exports",
	}
	raw, err := settings.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	return &integrationFixture{
		integ: &database.Integration{
			ID:          uuid.New(),
			UserID:      "user-1",
			Provider:    drive.ProviderName,
			Status:      "connected",
			Settings:    raw,
			ConnectedAt: time.Now(),
		},
		jobs: make(map[uuid.UUID]*database.TranscriptionJob),
	}
}

// driveAPIServer fakes the Drive REST surface: folder lookups resolve
// immediately, uploads and deletes succeed.
func driveAPIServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /files", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		if strings.Contains(q, "mimeType=") {
			// Folder search: pretend every segment exists.
			json.NewEncoder(w).Encode(map[string]any{
				"files": []drive.File{{ID: "folder-1", Name: "x"}},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"files": []drive.File{{ID: "file-1", Name: "a.txt", MimeType: "text/plain"}},
		})
	})
	mux.HandleFunc("DELETE /files/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /upload", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(drive.File{ID: "uploaded-1", Name: "a.txt", MimeType: "text/plain"})
	})
	return httptest.NewServer(mux)
}

func newIntegrationsFixture(t *testing.T, fx *integrationFixture) (*IntegrationsHandler, *httptest.Server) {
	t.Helper()
	srv := driveAPIServer(t)
	t.Cleanup(srv.Close)
	dc := drive.NewClient("cid", "csecret", "https://app.example.com/callback", fx, drive.Endpoints{
		APIBase:   srv.URL,
		UploadURL: srv.URL + "/upload",
	}, zerolog.Nop())
	return NewIntegrationsHandler(fx, dc, zerolog.Nop()), srv
}

func TestIntegrationConnect(t *testing.T) {
	h, _ := newIntegrationsFixture(t, connectedFixture(t))
	rec := httptest.NewRecorder()
	h.Connect(rec, authedRequest("GET", "/api/integrations/drive/connect", "", "user-1"))

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	u := body["auth_url"]
	if !strings.Contains(u, "client_id=cid") || !strings.Contains(u, "state=user-1") {
		t.Errorf("unexpected auth url: %q", u)
	}
	if !strings.Contains(u, "access_type=offline") {
		t.Error("auth url must request offline access for a refresh token")
	}
}

func TestIntegrationStatus(t *testing.T) {
	t.Run("connected", func(t *testing.T) {
		h, _ := newIntegrationsFixture(t, connectedFixture(t))
		rec := httptest.NewRecorder()
		h.Status(rec, authedRequest("GET", "/api/integrations/drive/status", "", "user-1"))

		var body map[string]any
		json.Unmarshal(rec.Body.Bytes(), &body)
		if body["connected"] != true || body["folder_path"] != "Yolo/Exports" {
			t.Errorf("unexpected status payload: %v", body)
		}
	})

	t.Run("not_connected", func(t *testing.T) {
		fx := &integrationFixture{jobs: make(map[uuid.UUID]*database.TranscriptionJob)}
		h, _ := newIntegrationsFixture(t, fx)
		rec := httptest.NewRecorder()
		h.Status(rec, authedRequest("GET", "/api/integrations/drive/status", "", "user-1"))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 for a missing integration, got %d", rec.Code)
		}
		var body map[string]any
		json.Unmarshal(rec.Body.Bytes(), &body)
		if body["connected"] != false {
			t.Errorf("expected connected=false, got %v", body)
		}
	})

	t.Run("store_error", func(t *testing.T) {
		fx := &integrationFixture{getErr: errors.New("connection refused")}
		h, _ := newIntegrationsFixture(t, fx)
		rec := httptest.NewRecorder()
		h.Status(rec, authedRequest("GET", "/api/integrations/drive/status", "", "user-1"))

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500 for a store failure, got %d", rec.Code)
		}
	})
}

func TestIntegrationDisconnect(t *testing.T) {
	fx := connectedFixture(t)
	h, _ := newIntegrationsFixture(t, fx)
	rec := httptest.NewRecorder()
	h.Disconnect(rec, authedRequest("DELETE", "/api/integrations/drive", "", "user-1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !fx.disconnected {
		t.Error("store disconnect not called")
	}
}

func TestIntegrationExport(t *testing.T) {
	t.Run("completed_job_uploads", func(t *testing.T) {
		fx := connectedFixture(t)
		jobID := uuid.New()
		fx.jobs[jobID] = &database.TranscriptionJob{
			ID:       jobID,
			UserID:   "user-1",
			Status:   database.JobStatusCompleted,
			FileName: "meeting.mp3",
			Text:     "hello world",
		}
		h, _ := newIntegrationsFixture(t, fx)

		rec := httptest.NewRecorder()
		h.Export(rec, authedRequest("POST", "/api/integrations/drive/export",
			fmt.Sprintf(`{"transcription_id":%q}`, jobID), "user-1"))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var body struct {
			Exported bool       `json:"exported"`
			File     drive.File `json:"file"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("response is not valid JSON: %v", err)
		}
		if !body.Exported || body.File.ID != "uploaded-1" {
			t.Errorf("unexpected export result: %+v", body)
		}
	})

	t.Run("processing_job_rejected", func(t *testing.T) {
		fx := connectedFixture(t)
		jobID := uuid.New()
		fx.jobs[jobID] = &database.TranscriptionJob{
			ID:     jobID,
			UserID: "user-1",
			Status: database.JobStatusProcessing,
		}
		h, _ := newIntegrationsFixture(t, fx)

		rec := httptest.NewRecorder()
		h.Export(rec, authedRequest("POST", "/api/integrations/drive/export",
			fmt.Sprintf(`{"transcription_id":%q}`, jobID), "user-1"))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("store_error", func(t *testing.T) {
		fx := connectedFixture(t)
		fx.getErr = errors.New("connection refused")
		h, _ := newIntegrationsFixture(t, fx)

		rec := httptest.NewRecorder()
		h.Export(rec, authedRequest("POST", "/api/integrations/drive/export",
			fmt.Sprintf(`{"transcription_id":%q}`, uuid.New()), "user-1"))
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500 for a store failure, got %d", rec.Code)
		}
	})

	t.Run("foreign_job_not_found", func(t *testing.T) {
		fx := connectedFixture(t)
		jobID := uuid.New()
		fx.jobs[jobID] = &database.TranscriptionJob{
			ID:     jobID,
			UserID: "user-2",
			Status: database.JobStatusCompleted,
		}
		h, _ := newIntegrationsFixture(t, fx)

		rec := httptest.NewRecorder()
		h.Export(rec, authedRequest("POST", "/api/integrations/drive/export",
			fmt.Sprintf(`{"transcription_id":%q}`, jobID), "user-1"))
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}

func TestExportFileName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"meeting.mp3", "meeting.txt"},
		{"no-extension", "no-extension.txt"},
		{"archive.tar.gz", "archive.tar.txt"},
		{"", "transcript.txt"},
	}
	for _, tt := range tests {
		if got := exportFileName(tt.in); got != tt.want {
			t.Errorf("exportFileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
