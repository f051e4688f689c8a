package imagestore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/kozaktomas/face-recall/internal/config"
)

// apiError implements smithy.APIError for test assertions.
type apiError struct {
	code string
}

func (e *apiError) Error() string                 { return e.code }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.code }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

// mockS3 is a thread-safe in-memory S3 backend for testing.
type mockS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newMockS3() *mockS3 {
	return &mockS3{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *mockS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*in.Key]
	if !ok {
		return nil, &apiError{code: "NoSuchKey"}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[*in.Key] = data
	if in.ContentType != nil {
		m.types[*in.Key] = *in.ContentType
	}
	return &s3.PutObjectOutput{}, nil
}

func readAll(t *testing.T, rc io.ReadCloser) []byte {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return data
}

func TestLocal(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "faces")
	store, err := NewLocal(dir)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	path, err := store.Save(ctx, "new_person_20240301_101500.jpg", []byte("jpeg"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("expected image under %s, got %s", dir, path)
	}

	rc, err := store.Open(ctx, "new_person_20240301_101500.jpg")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := readAll(t, rc); string(got) != "jpeg" {
		t.Errorf("got %q", got)
	}

	if _, err := store.Open(ctx, "missing.jpg"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected no leftover temp files, got %d entries", len(entries))
	}
}

func TestLocal_RejectsTraversal(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	for _, name := range []string{"", "..", "../etc/passwd", "a/b.jpg"} {
		if _, err := store.Save(context.Background(), name, []byte("x")); err == nil {
			t.Errorf("expected error for name %q", name)
		}
	}
}

func TestS3Store(t *testing.T) {
	ctx := context.Background()
	mock := newMockS3()
	store := NewS3(mock, "faces-bucket", "captures")

	jpegData := []byte("\xff\xd8\xff\xe0 jpeg")
	url, err := store.Save(ctx, "new_person_1.jpg", jpegData)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if url != "s3://faces-bucket/captures/new_person_1.jpg" {
		t.Errorf("unexpected url %s", url)
	}
	if mock.types["captures/new_person_1.jpg"] != "image/jpeg" {
		t.Error("expected image/jpeg content type")
	}

	rc, err := store.Open(ctx, "new_person_1.jpg")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := readAll(t, rc); string(got) != string(jpegData) {
		t.Errorf("got %q", got)
	}

	if _, err := store.Open(ctx, "missing.jpg"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}

func TestS3Store_UploadError(t *testing.T) {
	mock := newMockS3()
	mock.putErr = errors.New("access denied")
	if _, err := NewS3(mock, "b", "").Save(context.Background(), "x.jpg", []byte("x")); err == nil {
		t.Error("expected upload error")
	}
}

func TestNew(t *testing.T) {
	store, err := New(config.ImagesConfig{Backend: "local", Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("local: %v", err)
	}
	if _, ok := store.(*Local); !ok {
		t.Errorf("expected *Local, got %T", store)
	}

	store, err = New(config.ImagesConfig{Backend: "s3", S3Bucket: "b", S3Region: "us-east-1", S3Endpoint: "http://localhost:9000"})
	if err != nil {
		t.Fatalf("s3: %v", err)
	}
	if _, ok := store.(*S3Store); !ok {
		t.Errorf("expected *S3Store, got %T", store)
	}

	if _, err := New(config.ImagesConfig{Backend: "s3"}); err == nil {
		t.Error("expected error without bucket")
	}
	if _, err := New(config.ImagesConfig{Backend: "ftp"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}
