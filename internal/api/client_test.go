package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNew_TrimsTrailingSlash(t *testing.T) {
	c := New("http://localhost:5000/", "secret")
	if c.baseURL != "http://localhost:5000" {
		t.Errorf("expected trailing slash trimmed, got %s", c.baseURL)
	}
	if c.apiKey != "secret" {
		t.Errorf("expected apiKey=secret, got %s", c.apiKey)
	}
}

func TestHealthcheck_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthcheck" {
			t.Errorf("expected path /healthcheck, got %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	if err := New(server.URL, "").Healthcheck(); err != nil {
		t.Errorf("Healthcheck failed: %v", err)
	}
}

func TestHealthcheck_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	if err := New(server.URL, "").Healthcheck(); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestHealthcheck_ServerDown(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	if err := New(url, "").Healthcheck(); err == nil {
		t.Error("expected error for unreachable server")
	}
}

func TestUpload_Success(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "arena_20260115_103000.json.gz")
	if err := os.WriteFile(path, []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}

	fields := map[string]string{}
	var content []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != UploadPath {
			t.Errorf("expected path %s, got %s", UploadPath, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
			return
		}
		for _, k := range []string{"secret", "filename", "sessionId", "sessionName", "duration", "tag"} {
			fields[k] = r.FormValue(k)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer f.Close()
		content, _ = io.ReadAll(f)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := New(server.URL, "s3cret").Upload(path, UploadMetadata{
		SessionID:   "abc",
		SessionName: "arena",
		Duration:    90 * time.Second,
		Tag:         "test",
	})
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	want := map[string]string{
		"secret":      "s3cret",
		"filename":    "arena_20260115_103000.json.gz",
		"sessionId":   "abc",
		"sessionName": "arena",
		"duration":    "90.000",
		"tag":         "test",
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("field %s = %q, want %q", k, fields[k], v)
		}
	}
	if string(content) != "payload" {
		t.Errorf("file content = %q", content)
	}
}

func TestUpload_MissingFile(t *testing.T) {
	if err := New("http://localhost", "").Upload(filepath.Join(t.TempDir(), "nope.json"), UploadMetadata{}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestUpload_Rejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.json")
	if err := os.WriteFile(path, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	if err := New(server.URL, "bad").Upload(path, UploadMetadata{}); err == nil {
		t.Error("expected error for 403 response")
	}
}
