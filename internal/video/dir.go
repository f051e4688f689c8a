package video

import (
	"context"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// DirSource replays the images of a directory as a camera, in file name order,
// looping forever. Useful for demos and for exercising the pipeline without hardware.
type DirSource struct {
	dir   string
	pacer *pacer

	mu    sync.Mutex
	files []string
	pos   int
	seq   uint64
}

// NewDirSource creates a replay source over dir emitting fps frames per second.
func NewDirSource(dir string, fps int) *DirSource {
	return &DirSource{dir: dir, pacer: newPacer(fps)}
}

// Open lists the directory. A missing or empty directory is an unavailable device.
func (s *DirSource) Open(_ context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(s.dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("%w: no images in %s", ErrDeviceUnavailable, s.dir)
	}
	sort.Strings(files)

	s.mu.Lock()
	s.files = files
	s.pos = 0
	s.mu.Unlock()
	return nil
}

// Read decodes the next image of the directory.
func (s *DirSource) Read(ctx context.Context) (*Frame, bool) {
	s.mu.Lock()
	if len(s.files) == 0 {
		s.mu.Unlock()
		return nil, false
	}
	path := s.files[s.pos]
	s.pos = (s.pos + 1) % len(s.files)
	s.mu.Unlock()

	if !s.pacer.wait(ctx) {
		return nil, false
	}

	img, err := decodeFile(path)
	if err != nil {
		log.Printf("video: skipping %s: %v", path, err)
		return nil, false
	}

	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()
	return &Frame{Seq: seq, Timestamp: time.Now(), Image: img}, true
}

// Close releases the file list.
func (s *DirSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = nil
	return nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}
