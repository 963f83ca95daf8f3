// Package drive maintains per-user OAuth tokens for Google Drive and
// performs file operations in an application-managed folder. Every call is
// a thin REST request gated by a token freshness check; no retries.
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/2cloudlabs/yolo-transcript/internal/database"
)

const (
	defaultTokenURL  = "https://oauth2.googleapis.com/token"
	defaultAuthURL   = "https://accounts.google.com/o/oauth2/v2/auth"
	defaultAPIBase   = "https://www.googleapis.com/drive/v3"
	defaultUploadURL = "https://www.googleapis.com/upload/drive/v3/files"

	folderMimeType = "application/vnd.google-apps.folder"
	driveScope     = "https://www.googleapis.com/auth/drive.file"
)

// Provider name as stored in the integrations table.
const ProviderName = "google_drive"

// ErrMissingToken is returned when a refresh is needed but no refresh token
// is stored. The user has to reconnect the integration.
var ErrMissingToken = errors.New("integration has no refresh token")

// Store persists integration settings across token refreshes and syncs.
type Store interface {
	UpdateIntegrationSettings(ctx context.Context, id uuid.UUID, settings json.RawMessage) error
	TouchIntegrationSync(ctx context.Context, id uuid.UUID) error
}

// File is a Drive file entry.
type File struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MimeType     string `json:"mimeType"`
	Size         string `json:"size,omitempty"`
	ModifiedTime string `json:"modifiedTime,omitempty"`
}

// Client talks to the Drive REST API on behalf of connected users.
type Client struct {
	clientID     string
	clientSecret string
	redirectURL  string

	tokenURL  string
	authURL   string
	apiBase   string
	uploadURL string

	store  Store
	client *http.Client
	log    zerolog.Logger
}

// Endpoints overrides the production Google endpoints (tests). Zero values
// keep the defaults.
type Endpoints struct {
	TokenURL  string
	AuthURL   string
	APIBase   string
	UploadURL string
}

func NewClient(clientID, clientSecret, redirectURL string, store Store, ep Endpoints, log zerolog.Logger) *Client {
	c := &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURL:  redirectURL,
		tokenURL:     defaultTokenURL,
		authURL:      defaultAuthURL,
		apiBase:      defaultAPIBase,
		uploadURL:    defaultUploadURL,
		store:        store,
		client:       &http.Client{Timeout: 30 * time.Second},
		log:          log.With().Str("component", "drive").Logger(),
	}
	if ep.TokenURL != "" {
		c.tokenURL = ep.TokenURL
	}
	if ep.AuthURL != "" {
		c.authURL = ep.AuthURL
	}
	if ep.APIBase != "" {
		c.apiBase = ep.APIBase
	}
	if ep.UploadURL != "" {
		c.uploadURL = ep.UploadURL
	}
	return c
}

// AuthURL builds the user-facing consent URL for the OAuth flow.
func (c *Client) AuthURL(state string) string {
	q := url.Values{
		"client_id":     {c.clientID},
		"redirect_uri":  {c.redirectURL},
		"response_type": {"code"},
		"scope":         {driveScope},
		"access_type":   {"offline"},
		"prompt":        {"consent"},
		"state":         {state},
	}
	return c.authURL + "?" + q.Encode()
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// Exchange trades an authorization code for a token pair.
func (c *Client) Exchange(ctx context.Context, code string) (Settings, error) {
	tok, err := c.fetchToken(ctx, url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"code":          {code},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {c.redirectURL},
	})
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second),
	}, nil
}

// EnsureFreshToken refreshes the integration's access token if it has
// expired, persists the merged settings, and returns the updated
// integration. A still-valid token returns the input unchanged.
func (c *Client) EnsureFreshToken(ctx context.Context, integ *database.Integration) (*database.Integration, error) {
	settings, err := ParseSettings(integ.Settings)
	if err != nil {
		return nil, fmt.Errorf("parse integration settings: %w", err)
	}

	if time.Now().Before(settings.ExpiresAt) {
		return integ, nil
	}
	if settings.RefreshToken == "" {
		return nil, ErrMissingToken
	}

	tok, err := c.fetchToken(ctx, url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"refresh_token": {settings.RefreshToken},
		"grant_type":    {"refresh_token"},
	})
	if err != nil {
		return nil, err
	}

	// Tokens replaced, everything else merged from the stored settings.
	settings.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		settings.RefreshToken = tok.RefreshToken
	}
	settings.ExpiresAt = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)

	raw, err := settings.Marshal()
	if err != nil {
		return nil, err
	}
	if err := c.store.UpdateIntegrationSettings(ctx, integ.ID, raw); err != nil {
		return nil, err
	}

	updated := *integ
	updated.Settings = raw
	c.log.Debug().Str("user_id", integ.UserID).Msg("access token refreshed")
	return &updated, nil
}

func (c *Client) fetchToken(ctx context.Context, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint error (status %d): %s", resp.StatusCode, string(body))
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	return &tok, nil
}

// EnsureFolder resolves a slash-separated path to a folder ID, creating
// missing segments. The chain is re-resolved from the Drive root on every
// call; nothing is cached.
func (c *Client) EnsureFolder(ctx context.Context, integ *database.Integration, path string) (string, error) {
	integ, err := c.EnsureFreshToken(ctx, integ)
	if err != nil {
		return "", err
	}
	settings, err := ParseSettings(integ.Settings)
	if err != nil {
		return "", err
	}

	parent := "root"
	for _, segment := range strings.Split(path, "/") {
		if segment == "" {
			continue
		}
		id, err := c.findFolder(ctx, settings.AccessToken, segment, parent)
		if err != nil {
			return "", err
		}
		if id == "" {
			id, err = c.createFolder(ctx, settings.AccessToken, segment, parent)
			if err != nil {
				return "", err
			}
		}
		parent = id
	}
	return parent, nil
}

func (c *Client) findFolder(ctx context.Context, token, name, parent string) (string, error) {
	query := fmt.Sprintf("name='%s' and mimeType='%s' and '%s' in parents and trashed=false",
		strings.ReplaceAll(name, "'", `\'`), folderMimeType, parent)
	u := c.apiBase + "/files?" + url.Values{
		"q":      {query},
		"fields": {"files(id,name)"},
	}.Encode()

	body, err := c.apiCall(ctx, token, http.MethodGet, u, "", nil, "find folder")
	if err != nil {
		return "", err
	}

	var result struct {
		Files []File `json:"files"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode folder search: %w", err)
	}
	if len(result.Files) == 0 {
		return "", nil
	}
	return result.Files[0].ID, nil
}

func (c *Client) createFolder(ctx context.Context, token, name, parent string) (string, error) {
	payload, _ := json.Marshal(map[string]any{
		"name":     name,
		"mimeType": folderMimeType,
		"parents":  []string{parent},
	})
	body, err := c.apiCall(ctx, token, http.MethodPost, c.apiBase+"/files",
		"application/json", bytes.NewReader(payload), "create folder")
	if err != nil {
		return "", err
	}
	var f File
	if err := json.Unmarshal(body, &f); err != nil {
		return "", fmt.Errorf("decode created folder: %w", err)
	}
	return f.ID, nil
}

// Upload puts a file into a folder via the multipart upload endpoint.
func (c *Client) Upload(ctx context.Context, integ *database.Integration, folderID, name, mimeType string, data []byte) (*File, error) {
	integ, err := c.EnsureFreshToken(ctx, integ)
	if err != nil {
		return nil, err
	}
	settings, err := ParseSettings(integ.Settings)
	if err != nil {
		return nil, err
	}

	meta, _ := json.Marshal(map[string]any{
		"name":    name,
		"parents": []string{folderID},
	})

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	metaHdr := textproto.MIMEHeader{}
	metaHdr.Set("Content-Type", "application/json; charset=UTF-8")
	part, err := w.CreatePart(metaHdr)
	if err != nil {
		return nil, fmt.Errorf("create metadata part: %w", err)
	}
	part.Write(meta)

	fileHdr := textproto.MIMEHeader{}
	fileHdr.Set("Content-Type", mimeType)
	part, err = w.CreatePart(fileHdr)
	if err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}
	part.Write(data)
	w.Close()

	u := c.uploadURL + "?uploadType=multipart&fields=id,name,mimeType"
	body, err := c.apiCall(ctx, settings.AccessToken, http.MethodPost, u,
		"multipart/related; boundary="+w.Boundary(), &buf, "upload")
	if err != nil {
		return nil, err
	}

	var f File
	if err := json.Unmarshal(body, &f); err != nil {
		return nil, fmt.Errorf("decode uploaded file: %w", err)
	}

	if err := c.store.TouchIntegrationSync(ctx, integ.ID); err != nil {
		c.log.Warn().Err(err).Msg("record sync time failed")
	}
	return &f, nil
}

// List returns the files directly inside a folder.
func (c *Client) List(ctx context.Context, integ *database.Integration, folderID string) ([]File, error) {
	integ, err := c.EnsureFreshToken(ctx, integ)
	if err != nil {
		return nil, err
	}
	settings, err := ParseSettings(integ.Settings)
	if err != nil {
		return nil, err
	}

	u := c.apiBase + "/files?" + url.Values{
		"q":      {fmt.Sprintf("'%s' in parents and trashed=false", folderID)},
		"fields": {"files(id,name,mimeType,size,modifiedTime)"},
	}.Encode()

	body, err := c.apiCall(ctx, settings.AccessToken, http.MethodGet, u, "", nil, "list")
	if err != nil {
		return nil, err
	}

	var result struct {
		Files []File `json:"files"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode file list: %w", err)
	}
	if result.Files == nil {
		result.Files = []File{}
	}
	return result.Files, nil
}

// Delete removes a file by ID.
func (c *Client) Delete(ctx context.Context, integ *database.Integration, fileID string) error {
	integ, err := c.EnsureFreshToken(ctx, integ)
	if err != nil {
		return err
	}
	settings, err := ParseSettings(integ.Settings)
	if err != nil {
		return err
	}

	_, err = c.apiCall(ctx, settings.AccessToken, http.MethodDelete,
		c.apiBase+"/files/"+fileID, "", nil, "delete")
	return err
}

func (c *Client) apiCall(ctx context.Context, token, method, u, contentType string, body io.Reader, op string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("drive %s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("drive %s failed (status %d): %s", op, resp.StatusCode, string(raw))
	}
	return raw, nil
}
