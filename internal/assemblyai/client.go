// Package assemblyai is a minimal client for the AssemblyAI v2 transcript
// API: submit-by-URL and status polling.
package assemblyai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultBaseURL = "https://api.assemblyai.com/v2"

// Terminal vendor statuses.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// Client calls the AssemblyAI transcript API.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// SubmitRequest holds the per-job transcription options.
type SubmitRequest struct {
	AudioURL          string   `json:"audio_url"`
	SpeakerLabels     bool     `json:"speaker_labels,omitempty"`
	SpeakersExpected  int      `json:"speakers_expected,omitempty"`
	WordBoost         []string `json:"word_boost,omitempty"`
	SentimentAnalysis bool     `json:"sentiment_analysis,omitempty"`
}

// Word is a single recognized word with timing.
type Word struct {
	Text       string  `json:"text"`
	Start      int     `json:"start"` // milliseconds
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
	Speaker    string  `json:"speaker,omitempty"`
}

// Utterance is a contiguous span attributed to one speaker.
type Utterance struct {
	Speaker    string  `json:"speaker"`
	Text       string  `json:"text"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
	Words      []Word  `json:"words,omitempty"`
}

// SentimentResult is one sentiment-annotated span.
type SentimentResult struct {
	Text       string  `json:"text"`
	Sentiment  string  `json:"sentiment"` // POSITIVE, NEUTRAL, NEGATIVE
	Confidence float64 `json:"confidence"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Speaker    string  `json:"speaker,omitempty"`
}

// Transcript is the vendor's transcript resource.
type Transcript struct {
	ID                       string            `json:"id"`
	Status                   string            `json:"status"`
	Text                     string            `json:"text"`
	AudioDuration            float64           `json:"audio_duration"` // seconds
	Error                    string            `json:"error,omitempty"`
	Words                    []Word            `json:"words,omitempty"`
	Utterances               []Utterance       `json:"utterances,omitempty"`
	SentimentAnalysisResults []SentimentResult `json:"sentiment_analysis_results,omitempty"`
}

// IsTerminal reports whether the vendor will not change this status again.
func (t *Transcript) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusError
}

// NewClient creates an AssemblyAI client. baseURL overrides the production
// endpoint (tests); pass "" for the default.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Submit creates a transcript job from a media URL and returns the vendor's
// initial (non-terminal) transcript resource.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*Transcript, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, "/transcript", bytes.NewReader(payload))
}

// Get fetches the current state of a transcript.
func (c *Client) Get(ctx context.Context, id string) (*Transcript, error) {
	return c.do(ctx, http.MethodGet, "/transcript/"+id, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*Transcript, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("assemblyai request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("assemblyai API error (status %d): %s", resp.StatusCode, string(raw))
	}

	var t Transcript
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &t, nil
}
