package aiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func chatServer(t *testing.T, answer string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		json.NewEncoder(w).Encode(chatResponse{
			Choices: []struct {
				Message chatMessage `json:"message"`
			}{{Message: chatMessage{Role: "assistant", Content: answer}}},
		})
	}))
}

func TestClassifyReturnsTrimmedAnswer(t *testing.T) {
	srv := chatServer(t, "  syslog\n")
	defer srv.Close()

	c := NewHTTPClassifier(Config{BaseURL: srv.URL, Model: "test", Timeout: time.Second}, zaptest.NewLogger(t))
	answer, err := c.Classify(context.Background(), TaskFormatDetection, "Aug 29 10:00:00 host proc: msg")
	if err != nil {
		t.Fatal(err)
	}
	if answer != "syslog" {
		t.Errorf("expected trimmed answer, got %q", answer)
	}
}

func TestClassifyErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPClassifier(Config{BaseURL: srv.URL, Timeout: time.Second}, zaptest.NewLogger(t))
	if _, err := c.Classify(context.Background(), TaskLabeling, "msg"); err == nil {
		t.Error("expected an error for a 500 response")
	}
}

func TestClassifyUnreachableEndpoint(t *testing.T) {
	c := NewHTTPClassifier(Config{BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond}, zaptest.NewLogger(t))
	if _, err := c.Classify(context.Background(), TaskLabeling, "msg"); err == nil {
		t.Error("expected an error when nothing is listening")
	}
}

func TestClassifyEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewHTTPClassifier(Config{BaseURL: srv.URL, Timeout: time.Second}, zaptest.NewLogger(t))
	if _, err := c.Classify(context.Background(), TaskLabeling, "msg"); err == nil {
		t.Error("expected an error for an empty choices list")
	}
}

func TestDisabledAlwaysUnavailable(t *testing.T) {
	_, err := Disabled{}.Classify(context.Background(), TaskLabeling, "anything")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}
