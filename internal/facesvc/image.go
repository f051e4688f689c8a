package facesvc

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/kozaktomas/face-recall/internal/constants"
	"golang.org/x/image/draw"
)

// EncodeJPEG encodes a frame for the face service, downscaling it to fit within
// maxSide while keeping aspect ratio. It returns the encoded bytes and the applied
// scale factor (1 when the frame was not resized).
func EncodeJPEG(img image.Image, maxSide int) ([]byte, float64, error) {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	var buf bytes.Buffer
	opts := &jpeg.Options{Quality: constants.FaceServiceJPEGQuality}

	if maxSide <= 0 || (width <= maxSide && height <= maxSide) {
		if err := jpeg.Encode(&buf, img, opts); err != nil {
			return nil, 0, fmt.Errorf("failed to encode image: %w", err)
		}
		return buf.Bytes(), 1, nil
	}

	// Calculate new dimensions.
	var newWidth, newHeight int
	var scale float64
	if width > height {
		scale = float64(maxSide) / float64(width)
		newWidth = maxSide
		newHeight = int(float64(height) * scale)
	} else {
		scale = float64(maxSide) / float64(height)
		newHeight = maxSide
		newWidth = int(float64(width) * scale)
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	if err := jpeg.Encode(&buf, resized, opts); err != nil {
		return nil, 0, fmt.Errorf("failed to encode resized image: %w", err)
	}
	return buf.Bytes(), scale, nil
}
