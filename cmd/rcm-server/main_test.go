package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/rcm/internal/config"
	"github.com/ehr/rcm/internal/platform/blobstore"
	"github.com/ehr/rcm/internal/platform/jobs"
)

func TestParseIDs(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	ids, err := parseIDs([]string{a.String(), " " + b.String() + " ", ""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 2 || ids[0] != a || ids[1] != b {
		t.Errorf("unexpected ids %v", ids)
	}

	if _, err := parseIDs([]string{"not-a-uuid"}); err == nil {
		t.Error("expected error for invalid id")
	}
}

func TestNewBlobStore_Memory(t *testing.T) {
	store, err := newBlobStore(context.Background(), &config.Config{BlobBackend: "memory"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.(*blobstore.InMemoryBlobStore); !ok {
		t.Errorf("expected in-memory store, got %T", store)
	}
}

func TestOutboxUploader(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "batch.txt")
	if err := os.WriteFile(src, []byte("ISA*00~"), 0o600); err != nil {
		t.Fatal(err)
	}

	u := &outboxUploader{dir: filepath.Join(dir, "outbox")}
	remote, err := u.Upload(context.Background(), src, "837P_Acme_20240305103000.txt")
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(remote)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "ISA*00~" {
		t.Errorf("unexpected outbox content %q", data)
	}
	if _, err := os.Stat(src); err != nil {
		t.Error("expected source batch to be left in place")
	}
}

func TestStageCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "march.csv")
	if err := os.WriteFile(src, []byte("Patient Name\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	staged, err := stageCopy(dir, src)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(staged) != "march.csv" || staged == src {
		t.Errorf("unexpected staged path %s", staged)
	}
	if _, err := os.Stat(src); err != nil {
		t.Error("expected original file to remain")
	}
}

type recordingEnqueuer struct {
	jobType string
	payload interface{}
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, jobType string, payload interface{}) (uuid.UUID, error) {
	r.jobType, r.payload = jobType, payload
	return uuid.New(), nil
}

func TestNewEcho_UploadRoute(t *testing.T) {
	a := &app{
		cfg:    &config.Config{Env: "development"},
		logger: zerolog.Nop(),
		blobs:  blobstore.NewInMemoryBlobStore(),
	}
	q := &recordingEnqueuer{}
	e := newEcho(a, q)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("file", "march.csv")
	io.WriteString(part, "Patient Name\n")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/remittances", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}
	if q.jobType != jobs.TypeRemittanceIngest {
		t.Errorf("expected remittance job, got %q", q.jobType)
	}
	p, ok := q.payload.(jobs.RemittancePayload)
	if !ok || p.UploaderEmail != "dev@localhost" || p.FileName != "march.csv" {
		t.Errorf("unexpected payload %+v", q.payload)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["blob_id"] == "" || resp["job_id"] == "" {
		t.Errorf("unexpected response %v", resp)
	}
}

func TestNewEcho_RequiresTokenWithSigningKey(t *testing.T) {
	a := &app{
		cfg:    &config.Config{Env: "staging", AuthSigningKey: "secret", AuthIssuer: "rcm"},
		logger: zerolog.Nop(),
		blobs:  blobstore.NewInMemoryBlobStore(),
	}
	e := newEcho(a, &recordingEnqueuer{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/encounters/submissions", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}
