package drive

import (
	"encoding/json"
	"time"
)

// Settings is the typed shape of an integration's settings blob: the OAuth
// token pair plus user-chosen sync options.
type Settings struct {
	AccessToken   string    `json:"access_token"`
	RefreshToken  string    `json:"refresh_token"`
	ExpiresAt     time.Time `json:"expires_at"`
	FolderPath    string    `json:"folder_path,omitempty"`
	SyncFrequency string    `json:"sync_frequency,omitempty"`
}

// ParseSettings decodes an integration settings blob.
func ParseSettings(raw json.RawMessage) (Settings, error) {
	var s Settings
	if len(raw) == 0 {
		return s, nil
	}
	err := json.Unmarshal(raw, &s)
	return s, err
}

// Marshal encodes settings for storage.
func (s Settings) Marshal() (json.RawMessage, error) {
	b, err := json.Marshal(s)
	return json.RawMessage(b), err
}
