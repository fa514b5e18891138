package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds analysis-service configuration.
type Config struct {
	AppEnv   string // APP_ENV
	AppHost  string // APP_HOST
	HTTPPort string // APP_PORT or HTTP_PORT
	LogLevel string // LOG_LEVEL

	// PostgreSQL
	DB struct {
		Host     string
		Port     string
		User     string
		Password string
		Database string
		SSLMode  string
	}

	// Live ingest / playback. IngestBaseURL and PlaybackBaseURL are the
	// bases the stream key is appended to when a stream starts
	// (e.g. ws://stream.example.com). Empty bases fall back to
	// path-relative URLs.
	IngestBaseURL   string
	PlaybackBaseURL string

	// Frame sampling
	SamplingInterval int     // analyze every Nth grabbed frame
	FrameRate        float64 // native frame rate assumed for live ingest
	MaxFrameEdge     int     // frames wider/taller than this are downscaled before analysis

	// Uploads
	UploadDir string

	// Vision API
	VisionAPIKey   string
	VisionEndpoint string

	// Text generation (OpenAI-compatible)
	OpenAIAPIKey   string
	OpenAIEndpoint string
	OpenAIModel    string
	OpenAIMaxTok   int

	// WebSocket buffers
	WSReadBufferSize  int
	WSWriteBufferSize int
	WSMaxMessageSize  int64
}

// Load loads config from environment (.env if present).
func Load() (*Config, error) {
	_ = godotenv.Load()

	interval, _ := strconv.Atoi(getEnv("FRAME_SAMPLING_INTERVAL", "30"))
	rate, _ := strconv.ParseFloat(getEnv("STREAM_FRAME_RATE", "30"), 64)
	maxEdge, _ := strconv.Atoi(getEnv("MAX_FRAME_EDGE", "1024"))
	maxTok, _ := strconv.Atoi(getEnv("OPENAI_MAX_TOKENS", "500"))
	readBuf, _ := strconv.Atoi(getEnv("WS_READ_BUFFER_SIZE", "4096"))
	writeBuf, _ := strconv.Atoi(getEnv("WS_WRITE_BUFFER_SIZE", "4096"))
	maxMsg, _ := strconv.ParseInt(getEnv("WS_MAX_MESSAGE_SIZE", "10485760"), 10, 64)

	cfg := &Config{
		AppEnv:            getEnv("APP_ENV", "development"),
		AppHost:           getEnv("APP_HOST", "0.0.0.0"),
		HTTPPort:          firstEnv("APP_PORT", "HTTP_PORT", "8080"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		IngestBaseURL:     getEnv("INGEST_BASE_URL", ""),
		PlaybackBaseURL:   getEnv("PLAYBACK_BASE_URL", ""),
		SamplingInterval:  interval,
		FrameRate:         rate,
		MaxFrameEdge:      maxEdge,
		UploadDir:         getEnv("UPLOAD_DIR", "uploads"),
		VisionAPIKey:      getEnv("VISION_API_KEY", ""),
		VisionEndpoint:    getEnv("VISION_ENDPOINT", "https://vision.googleapis.com"),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIEndpoint:    getEnv("OPENAI_ENDPOINT", "https://api.openai.com"),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIMaxTok:      maxTok,
		WSReadBufferSize:  readBuf,
		WSWriteBufferSize: writeBuf,
		WSMaxMessageSize:  maxMsg,
	}
	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnv("DB_PORT", "5432")
	cfg.DB.User = getEnv("DB_USER", "postgres")
	cfg.DB.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.DB.Database = getEnv("DB_DATABASE", "analysis_service")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "disable")
	return cfg, nil
}

// Validate checks required fields and production safety.
func (c *Config) Validate() error {
	if c.DB.Host == "" {
		return errors.New("config: DB_HOST is required")
	}
	if c.DB.User == "" {
		return errors.New("config: DB_USER is required")
	}
	if c.DB.Database == "" {
		return errors.New("config: DB_DATABASE is required")
	}
	if c.AppEnv == "production" && c.DB.Password == "" {
		return errors.New("config: in production DB_PASSWORD is required")
	}
	if c.SamplingInterval < 1 {
		return fmt.Errorf("config: FRAME_SAMPLING_INTERVAL must be >= 1, got %d", c.SamplingInterval)
	}
	if c.FrameRate <= 0 {
		return fmt.Errorf("config: STREAM_FRAME_RATE must be positive, got %v", c.FrameRate)
	}
	return nil
}

// DSN returns the PostgreSQL connection string for GORM.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

// DatabaseURL returns a postgres URL for golang-migrate.
func (c *Config) DatabaseURL() string {
	pass := url.QueryEscape(c.DB.Password)
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DB.User, pass, c.DB.Host, c.DB.Port, c.DB.Database, c.DB.SSLMode)
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return c.AppHost + ":" + c.HTTPPort
}

// IngestURL returns the publisher WebSocket URL for a stream key.
func (c *Config) IngestURL(streamKey string) string {
	return joinBase(c.IngestBaseURL, "/ws/ingest/"+streamKey)
}

// PlaybackURL returns the viewer WebSocket URL for a stream key.
func (c *Config) PlaybackURL(streamKey string) string {
	return joinBase(c.PlaybackBaseURL, "/ws/live/"+streamKey)
}

func joinBase(base, path string) string {
	if base == "" {
		return path
	}
	if base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base + path
}

func firstEnv(keysAndDef ...string) string {
	if len(keysAndDef) == 0 {
		return ""
	}
	def := keysAndDef[len(keysAndDef)-1]
	keys := keysAndDef[:len(keysAndDef)-1]
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
