// Package video provides the camera sources read by the frame loop.
package video

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/kozaktomas/face-recall/internal/config"
)

// ErrDeviceUnavailable is returned by Open when the camera cannot be acquired.
var ErrDeviceUnavailable = errors.New("video device unavailable")

// Frame is a single decoded video frame.
type Frame struct {
	// Seq is the monotonic sequence number, starting at 1
	Seq uint64
	// Timestamp is when the frame was captured
	Timestamp time.Time
	// Image holds the decoded pixels
	Image image.Image
}

// Source is a camera owned exclusively by one frame loop.
//
// Implementations must guarantee:
//   - Open fails with an error wrapping ErrDeviceUnavailable when the device cannot be acquired
//   - Read returns ok=false for a missing or unreadable frame; the caller simply retries
//   - Close is idempotent
type Source interface {
	Open(ctx context.Context) error
	Read(ctx context.Context) (*Frame, bool)
	Close() error
}

// pacer spaces reads to a fixed frame rate.
type pacer struct {
	interval time.Duration
	next     time.Time
}

func newPacer(fps int) *pacer {
	if fps <= 0 {
		return &pacer{}
	}
	return &pacer{interval: time.Second / time.Duration(fps)}
}

// wait blocks until the next frame slot or ctx is done.
func (p *pacer) wait(ctx context.Context) bool {
	if p.interval == 0 {
		return ctx.Err() == nil
	}
	now := time.Now()
	if p.next.IsZero() || p.next.Before(now) {
		p.next = now
	}
	delay := p.next.Sub(now)
	p.next = p.next.Add(p.interval)
	if delay <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// NewSource returns the snapshot source when a URL is configured, otherwise the
// directory replay source.
func NewSource(cfg config.CameraConfig) Source {
	if cfg.SnapshotURL != "" {
		return NewSnapshotSource(cfg.SnapshotURL, cfg.FPS)
	}
	return NewDirSource(cfg.ReplayDir, cfg.FPS)
}
