// Package facesvc is the HTTP client of the face detection and embedding server.
package facesvc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/kozaktomas/face-recall/internal/constants"
	"github.com/kozaktomas/face-recall/internal/facematch"
)

const defaultFaceServiceURL = "http://localhost:8000"

// Client detects faces and computes their embeddings using the face server
type Client struct {
	baseURL string
	dim     int
	maxSide int
	client  *http.Client
}

// NewClient creates a new face service client. A positive dim makes Detect reject
// embeddings of any other length.
func NewClient(baseURL string, dim int) *Client {
	if baseURL == "" {
		baseURL = defaultFaceServiceURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		dim:     dim,
		maxSide: constants.FaceServiceMaxSide,
		client:  &http.Client{},
	}
}

// faceDetection represents a single detected face
type faceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// faceResponse represents the response from the face embedding endpoint
type faceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []faceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// postMultipartImage posts the image as a multipart form to the given endpoint.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// Detect finds the faces in a frame and returns them in detection order with their
// embeddings. Boxes are in the frame's own pixel coordinates.
func (c *Client) Detect(ctx context.Context, frame image.Image) ([]facematch.Face, error) {
	data, scale, err := EncodeJPEG(frame, c.maxSide)
	if err != nil {
		return nil, err
	}
	faces, err := c.DetectJPEG(ctx, data)
	if err != nil {
		return nil, err
	}

	origin := frame.Bounds().Min
	for i := range faces {
		if scale != 1 {
			faces[i].Box = faces[i].Box.Scale(1 / scale)
		}
		faces[i].Box = faces[i].Box.Offset(origin.X, origin.Y)
	}
	return faces, nil
}

// DetectJPEG is Detect for an already encoded image.
func (c *Client) DetectJPEG(ctx context.Context, imageData []byte) ([]facematch.Face, error) {
	body, err := c.postMultipartImage(ctx, "/embed/face", imageData)
	if err != nil {
		return nil, err
	}

	var faceResp faceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	faces := make([]facematch.Face, 0, len(faceResp.Faces))
	for i, det := range faceResp.Faces {
		if len(det.Embedding) == 0 {
			return nil, fmt.Errorf("face %d: empty embedding returned", i)
		}
		if c.dim > 0 && len(det.Embedding) != c.dim {
			return nil, fmt.Errorf("face %d: %w: got %d values, want %d", i, facematch.ErrDimensionMismatch, len(det.Embedding), c.dim)
		}
		box, ok := facematch.BoxFromBBox(det.BBox)
		if !ok {
			return nil, fmt.Errorf("face %d: invalid bbox %v", i, det.BBox)
		}
		faces = append(faces, facematch.Face{
			Index:     i,
			Box:       box,
			Embedding: det.Embedding,
			DetScore:  det.DetScore,
		})
	}
	return faces, nil
}

// Health checks that the face server is reachable
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("face service unhealthy (status %d)", resp.StatusCode)
	}
	return nil
}

// ErrNoFace is returned by SingleFace when an image contains no face.
var ErrNoFace = errors.New("no face found")

// ErrMultipleFaces is returned by SingleFace when an image contains more than one face.
var ErrMultipleFaces = errors.New("more than one face found")

// SingleFace returns the only face of an image, used when seeding identities from
// portrait photos.
func (c *Client) SingleFace(ctx context.Context, imageData []byte) (facematch.Face, error) {
	faces, err := c.DetectJPEG(ctx, imageData)
	if err != nil {
		return facematch.Face{}, err
	}
	switch len(faces) {
	case 0:
		return facematch.Face{}, ErrNoFace
	case 1:
		return faces[0], nil
	default:
		return facematch.Face{}, fmt.Errorf("%w (%d)", ErrMultipleFaces, len(faces))
	}
}

// detectMIMEType detects the MIME type from image data
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	return "application/octet-stream"
}
