package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Database    DatabaseConfig
	FaceService FaceServiceConfig
	Speech      SpeechConfig
	Camera      CameraConfig
	Images      ImagesConfig
	Summarizer  SummarizerConfig
	Web         WebConfig
	Pipeline    PipelineConfig
}

type DatabaseConfig struct {
	Backend      string // "postgres" (default) or "badger"
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
	BadgerDir    string // Directory for the embedded Badger store
}

type FaceServiceConfig struct {
	URL string // defaults to http://localhost:8000
	Dim int    // expected embedding length, 0 disables the check
}

type SpeechConfig struct {
	URL            string // STT daemon, defaults to http://localhost:8010
	PollTimeoutSec int    // long-poll timeout per utterance request (default 30)
}

type CameraConfig struct {
	SnapshotURL string // HTTP endpoint returning the current frame as JPEG
	ReplayDir   string // directory of images replayed as a camera (used when SnapshotURL is empty)
	FPS         int    // frame read rate (default 15)
}

type ImagesConfig struct {
	Backend    string // "local" (default) or "s3"
	Dir        string // local directory for captured faces (default ./face_images)
	S3Bucket   string
	S3Prefix   string
	S3Region   string
	S3Endpoint string // optional, for MinIO/R2
	S3KeyID    string
	S3Secret   string
}

type SummarizerConfig struct {
	Provider     string `yaml:"-"` // "openai" (default) or "gemini"
	APIKey       string `yaml:"-"`
	BaseURL      string `yaml:"-"` // OpenAI-compatible base URL, e.g. https://api.groq.com/openai/v1
	GeminiAPIKey string `yaml:"-"`

	Model       string  `yaml:"model"`
	GeminiModel string  `yaml:"gemini_model"`
	Temperature float64 `yaml:"temperature"`
	TopP        float64 `yaml:"top_p"`
	MaxTokens   int     `yaml:"max_tokens"`
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string // extra CORS origins; localhost is always allowed
}

type PipelineConfig struct {
	MatchThreshold float64 `yaml:"match_threshold" json:"match_threshold"`
	SampleEvery    int     `yaml:"sample_every" json:"sample_every"`
	MaxNewFaces    int     `yaml:"max_new_faces" json:"max_new_faces"`
	EnrolledName   string  `yaml:"enrolled_name" json:"enrolled_name"`
	EnrolledOwner  string  `yaml:"enrolled_owner" json:"enrolled_owner"`
}

type defaultsFile struct {
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envString returns the env var value, or defaultVal when it is unset or empty.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma-separated env var, dropping empty items.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Defaults returns the embedded pipeline and summarizer defaults.
func Defaults() (PipelineConfig, SummarizerConfig) {
	var d defaultsFile
	if err := yaml.Unmarshal(defaultsYAML, &d); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return d.Pipeline, d.Summarizer
}

func Load() *Config {
	pipeline, summarizer := Defaults()

	return &Config{
		Database: DatabaseConfig{
			Backend:      envString("DATABASE_BACKEND", "postgres"),
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
			BadgerDir:    envString("BADGER_DIR", "./data"),
		},
		FaceService: FaceServiceConfig{
			URL: os.Getenv("FACE_SERVICE_URL"),
			Dim: envInt("FACE_EMBEDDING_DIM", 0),
		},
		Speech: SpeechConfig{
			URL:            os.Getenv("SPEECH_URL"),
			PollTimeoutSec: envInt("SPEECH_POLL_TIMEOUT", 30),
		},
		Camera: CameraConfig{
			SnapshotURL: os.Getenv("CAMERA_SNAPSHOT_URL"),
			ReplayDir:   os.Getenv("CAMERA_REPLAY_DIR"),
			FPS:         envInt("CAMERA_FPS", 15),
		},
		Images: ImagesConfig{
			Backend:    envString("IMAGES_BACKEND", "local"),
			Dir:        envString("IMAGES_DIR", "./face_images"),
			S3Bucket:   os.Getenv("IMAGES_S3_BUCKET"),
			S3Prefix:   os.Getenv("IMAGES_S3_PREFIX"),
			S3Region:   envString("IMAGES_S3_REGION", "us-east-1"),
			S3Endpoint: os.Getenv("IMAGES_S3_ENDPOINT"),
			S3KeyID:    os.Getenv("IMAGES_S3_ACCESS_KEY_ID"),
			S3Secret:   os.Getenv("IMAGES_S3_SECRET_ACCESS_KEY"),
		},
		Summarizer: SummarizerConfig{
			Provider:     envString("SUMMARIZER_PROVIDER", "openai"),
			APIKey:       envString("SUMMARIZER_API_KEY", os.Getenv("GROQ_API_KEY")),
			BaseURL:      os.Getenv("SUMMARIZER_BASE_URL"),
			GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
			Model:        envString("SUMMARIZER_MODEL", summarizer.Model),
			GeminiModel:  envString("SUMMARIZER_GEMINI_MODEL", summarizer.GeminiModel),
			Temperature:  summarizer.Temperature,
			TopP:         summarizer.TopP,
			MaxTokens:    envInt("SUMMARIZER_MAX_TOKENS", summarizer.MaxTokens),
		},
		Web: WebConfig{
			Host: envString("WEB_HOST", "0.0.0.0"),
			Port: envInt("WEB_PORT", 5000),

			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Pipeline: PipelineConfig{
			MatchThreshold: envFloat("MATCH_THRESHOLD", pipeline.MatchThreshold),
			SampleEvery:    envInt("SAMPLE_EVERY", pipeline.SampleEvery),
			MaxNewFaces:    envInt("MAX_NEW_FACES", pipeline.MaxNewFaces),
			EnrolledName:   envString("ENROLLED_NAME", pipeline.EnrolledName),
			EnrolledOwner:  envString("ENROLLED_OWNER", pipeline.EnrolledOwner),
		},
	}
}
