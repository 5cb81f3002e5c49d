package stt

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWhisperClient_Transcribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inference" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		data, _ := io.ReadAll(f)
		if string(data) != "RIFFdata" {
			t.Errorf("file = %q", data)
		}
		if got := r.FormValue("language"); got != "en" {
			t.Errorf("language = %q, want en", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"  what is the weather  "}`))
	}))
	defer srv.Close()

	c, err := NewWhisperClient(WhisperConfig{ServerURL: srv.URL + "/", Language: "en"})
	if err != nil {
		t.Fatalf("NewWhisperClient: %v", err)
	}
	defer c.Close()

	text, err := c.Transcribe(context.Background(), []byte("RIFFdata"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "what is the weather" {
		t.Fatalf("text = %q", text)
	}
}

func TestWhisperClient_MalformedAudioIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "failed to read WAV file", http.StatusBadRequest)
	}))
	defer srv.Close()

	c, _ := NewWhisperClient(WhisperConfig{ServerURL: srv.URL})
	text, err := c.Transcribe(context.Background(), []byte("junk"))
	if err != nil || text != "" {
		t.Fatalf("text = %q, err = %v", text, err)
	}
}

func TestWhisperClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, _ := NewWhisperClient(WhisperConfig{ServerURL: srv.URL})
	if _, err := c.Transcribe(context.Background(), []byte("RIFF")); err == nil {
		t.Fatal("expected error on HTTP 500")
	}
}

func TestNewWhisperClient_RequiresURL(t *testing.T) {
	if _, err := NewWhisperClient(WhisperConfig{}); err == nil {
		t.Fatal("expected error for empty server url")
	}
}
