package videoapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vidbatch/vidbatch/internal/core"
)

func execRequest(dir string) core.ExecRequest {
	return core.ExecRequest{
		Index:           1,
		Kind:            core.KindGeneration,
		Job:             core.JobSpec{Prompt: "a harbor at dawn"},
		Model:           "sora-2",
		Seconds:         4,
		OutputPath:      filepath.Join(dir, "out.mp4"),
		PollInterval:    5 * time.Millisecond,
		MaxPollAttempts: 50,
	}
}

func TestExecuteCreatePollDownload(t *testing.T) {
	var polls int32
	payload := []byte("fake mp4 bytes")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("missing bearer credential, got %q", got)
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/videos":
			if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
				t.Errorf("create should be multipart, got %s", r.Header.Get("Content-Type"))
			}
			json.NewEncoder(w).Encode(map[string]any{"id": "vid_123", "status": "queued"})
		case r.Method == http.MethodGet && r.URL.Path == "/v1/videos/vid_123":
			status := "in_progress"
			if atomic.AddInt32(&polls, 1) >= 3 {
				status = "completed"
			}
			json.NewEncoder(w).Encode(map[string]any{"id": "vid_123", "status": status, "seconds": "4"})
		case r.Method == http.MethodGet && r.URL.Path == "/v1/videos/vid_123/content":
			w.Write(payload)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	client := New(srv.URL, "test-key", zerolog.Nop())
	res, err := client.Execute(context.Background(), execRequest(dir))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.RequestID != "vid_123" {
		t.Errorf("unexpected request id %q", res.RequestID)
	}
	if res.VideoSeconds != 4 {
		t.Errorf("unexpected duration %v", res.VideoSeconds)
	}
	data, err := os.ReadFile(res.OutputPath)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	if string(data) != string(payload) {
		t.Error("downloaded content mismatch")
	}
	if _, err := os.Stat(res.OutputPath + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary download file left behind")
	}
}

func TestExecuteEditUsesEditEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/videos/edits":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			if body["video_url"] != "https://example.com/v.mp4" {
				t.Errorf("edit payload missing video_url: %v", body)
			}
			json.NewEncoder(w).Encode(map[string]any{"id": "vid_edit", "status": "queued"})
		case r.URL.Path == "/v1/videos/vid_edit":
			json.NewEncoder(w).Encode(map[string]any{"id": "vid_edit", "status": "completed", "seconds": "5"})
		case r.URL.Path == "/v1/videos/vid_edit/content":
			w.Write([]byte("edited"))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	req := execRequest(t.TempDir())
	req.Kind = core.KindEdit
	req.Job = core.JobSpec{Prompt: "make it snow", VideoURL: "https://example.com/v.mp4"}

	client := New(srv.URL, "test-key", zerolog.Nop())
	res, err := client.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.RequestID != "vid_edit" {
		t.Errorf("unexpected request id %q", res.RequestID)
	}
}

func TestExecuteRemoteFailureSurfacesMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			json.NewEncoder(w).Encode(map[string]any{"id": "vid_bad", "status": "queued"})
		default:
			json.NewEncoder(w).Encode(map[string]any{
				"id": "vid_bad", "status": "failed",
				"error": map[string]any{"message": "content policy violation"},
			})
		}
	}))
	defer srv.Close()

	client := New(srv.URL, "test-key", zerolog.Nop())
	_, err := client.Execute(context.Background(), execRequest(t.TempDir()))
	if err == nil {
		t.Fatal("expected failure")
	}
	if !strings.Contains(err.Error(), "content policy violation") {
		t.Errorf("remote message lost: %v", err)
	}
}

func TestExecutePollExhaustion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			json.NewEncoder(w).Encode(map[string]any{"id": "vid_slow", "status": "queued"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"id": "vid_slow", "status": "in_progress"})
	}))
	defer srv.Close()

	req := execRequest(t.TempDir())
	req.MaxPollAttempts = 3

	client := New(srv.URL, "test-key", zerolog.Nop())
	_, err := client.Execute(context.Background(), req)
	if err == nil || !strings.Contains(err.Error(), "poll attempts exhausted") {
		t.Fatalf("expected poll exhaustion, got %v", err)
	}
}

func TestExecuteHTTPErrorIncludesStatusCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"slow down"}}`)
	}))
	defer srv.Close()

	client := New(srv.URL, "test-key", zerolog.Nop())
	_, err := client.Execute(context.Background(), execRequest(t.TempDir()))
	if err == nil {
		t.Fatal("expected error")
	}
	// The scheduler matches retry patterns like "429" against this text.
	if !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "slow down") {
		t.Errorf("status code or message missing from %v", err)
	}
}
