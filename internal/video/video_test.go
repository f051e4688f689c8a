package video

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kozaktomas/face-recall/internal/config"
)

func testJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	img.Set(1, 1, color.White)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestSnapshotSource(t *testing.T) {
	data := testJPEG(t)
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The third request fails to simulate a dropped frame.
		if calls.Add(1) == 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(data)
	}))
	defer server.Close()

	ctx := context.Background()
	src := NewSnapshotSource(server.URL, 0)
	if err := src.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	frame, ok := src.Read(ctx)
	if !ok {
		t.Fatal("expected a frame")
	}
	if frame.Seq != 1 || frame.Image.Bounds().Dx() != 8 {
		t.Errorf("unexpected frame: seq=%d bounds=%v", frame.Seq, frame.Image.Bounds())
	}

	if _, ok := src.Read(ctx); ok {
		t.Error("expected failed read to report ok=false")
	}

	frame, ok = src.Read(ctx)
	if !ok || frame.Seq != 2 {
		t.Errorf("expected recovery with seq 2, got ok=%v frame=%+v", ok, frame)
	}
}

func TestSnapshotSource_Unavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no camera", http.StatusInternalServerError)
	}))
	defer server.Close()

	tests := []struct {
		name string
		url  string
	}{
		{"empty url", ""},
		{"server error", server.URL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewSnapshotSource(tt.url, 0).Open(context.Background())
			if !errors.Is(err, ErrDeviceUnavailable) {
				t.Errorf("expected ErrDeviceUnavailable, got %v", err)
			}
		})
	}
}

func TestSnapshotSource_ReadBeforeOpen(t *testing.T) {
	if _, ok := NewSnapshotSource("http://invalid", 0).Read(context.Background()); ok {
		t.Error("expected no frame from unopened source")
	}
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "b.jpg"), testJPEG(t), 0o644); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.png"), buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	src := NewDirSource(dir, 0)
	if err := src.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	wantWidths := []int{4, 8, 4} // a.png, b.jpg, then loop
	for i, want := range wantWidths {
		frame, ok := src.Read(ctx)
		if !ok {
			t.Fatalf("read %d: expected frame", i)
		}
		if frame.Image.Bounds().Dx() != want {
			t.Errorf("read %d: width %d, want %d", i, frame.Image.Bounds().Dx(), want)
		}
		if frame.Seq != uint64(i+1) {
			t.Errorf("read %d: seq %d", i, frame.Seq)
		}
	}
}

func TestDirSource_Unavailable(t *testing.T) {
	tests := []struct {
		name string
		dir  string
	}{
		{"missing", filepath.Join(t.TempDir(), "nope")},
		{"empty", t.TempDir()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := NewDirSource(tt.dir, 0).Open(context.Background()); !errors.Is(err, ErrDeviceUnavailable) {
				t.Errorf("expected ErrDeviceUnavailable, got %v", err)
			}
		})
	}
}

func TestPacer_CancelledContext(t *testing.T) {
	p := newPacer(1)
	ctx, cancel := context.WithCancel(context.Background())
	if !p.wait(ctx) {
		t.Fatal("first slot should be immediate")
	}
	cancel()

	start := time.Now()
	if p.wait(ctx) {
		t.Error("expected wait to report cancellation")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("wait did not return promptly on cancellation")
	}
}

func TestNewSource(t *testing.T) {
	if _, ok := NewSource(config.CameraConfig{SnapshotURL: "http://cam"}).(*SnapshotSource); !ok {
		t.Error("expected SnapshotSource when URL is set")
	}
	if _, ok := NewSource(config.CameraConfig{ReplayDir: "frames"}).(*DirSource); !ok {
		t.Error("expected DirSource without URL")
	}
}
