package assemblyai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSubmit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/transcript" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "key123" {
			t.Errorf("Authorization = %q, want key123", r.Header.Get("Authorization"))
		}
		var req SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.AudioURL != "https://cdn.example.com/a.mp3" {
			t.Errorf("AudioURL = %q", req.AudioURL)
		}
		if !req.SpeakerLabels {
			t.Error("SpeakerLabels not forwarded")
		}
		json.NewEncoder(w).Encode(Transcript{ID: "tr_1", Status: StatusQueued})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key123", 5*time.Second)
	tr, err := c.Submit(context.Background(), SubmitRequest{
		AudioURL:      "https://cdn.example.com/a.mp3",
		SpeakerLabels: true,
		WordBoost:     []string{"yolo"},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if tr.ID != "tr_1" || tr.Status != StatusQueued {
		t.Errorf("transcript = %+v", tr)
	}
	if tr.IsTerminal() {
		t.Error("queued should not be terminal")
	}
}

func TestGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcript/tr_9" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(Transcript{
			ID:            "tr_9",
			Status:        StatusCompleted,
			Text:          "hello world",
			AudioDuration: 12.5,
			Utterances: []Utterance{
				{Speaker: "A", Text: "hello world"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key123", 5*time.Second)
	tr, err := c.Get(context.Background(), "tr_9")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !tr.IsTerminal() {
		t.Error("completed should be terminal")
	}
	if tr.Text != "hello world" || tr.AudioDuration != 12.5 {
		t.Errorf("transcript = %+v", tr)
	}
}

func TestNon2xxSurfacesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad audio url"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key123", 5*time.Second)
	_, err := c.Submit(context.Background(), SubmitRequest{AudioURL: "nope"})
	if err == nil {
		t.Fatal("expected error on 400 response")
	}
}
