package config

import (
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"60s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	AuthToken string `env:"AUTH_TOKEN"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`

	// Audio intake
	AudioDir          string `env:"AUDIO_DIR" envDefault:"./audio"`
	MaxAudioBytes     int64  `env:"MAX_AUDIO_BYTES" envDefault:"10485760"` // 10MB
	AllowedExtensions string `env:"ALLOWED_EXTENSIONS" envDefault:"wav,mp3,m4a,ogg"`
	WatchDir          string `env:"WATCH_DIR"` // optional drop-folder ingest

	// Model hub
	HubToken             string        `env:"HF_TOKEN"`
	HubURL               string        `env:"HUB_URL" envDefault:"https://huggingface.co"`
	ModelCacheDir        string        `env:"MODEL_CACHE_DIR" envDefault:"./model_cache"`
	DiarizationModel     string        `env:"DIARIZATION_MODEL" envDefault:"pyannote/speaker-diarization-3.1"`
	WhisperModel         string        `env:"WHISPER_MODEL" envDefault:"Systran/faster-whisper-base"`
	Device               string        `env:"DEVICE" envDefault:"auto"` // auto|cuda|cpu
	HubVerifyTimeout     time.Duration `env:"HUB_VERIFY_TIMEOUT" envDefault:"10s"`
	ModelDownloadTimeout time.Duration `env:"MODEL_DOWNLOAD_TIMEOUT" envDefault:"5m"`

	// Diarization thresholds
	MinSpeakers int     `env:"MIN_SPEAKERS" envDefault:"1"`
	MaxSpeakers int     `env:"MAX_SPEAKERS" envDefault:"2"`
	MinTurnOn   float64 `env:"MIN_TURN_ON" envDefault:"0.5"`  // seconds
	MinTurnOff  float64 `env:"MIN_TURN_OFF" envDefault:"0.5"` // seconds

	// Worker pool
	Workers   int `env:"WORKERS" envDefault:"1"`
	QueueSize int `env:"QUEUE_SIZE" envDefault:"32"`

	// Optional MQTT event publishing
	MQTTBrokerURL string `env:"MQTT_BROKER_URL"`
	MQTTClientID  string `env:"MQTT_CLIENT_ID" envDefault:"scribe-engine"`
	MQTTTopic     string `env:"MQTT_TOPIC" envDefault:"scribe/jobs"`
	MQTTUsername  string `env:"MQTT_USERNAME"`
	MQTTPassword  string `env:"MQTT_PASSWORD"`

	S3 S3Config `envPrefix:"S3_"`
}

// S3Config configures optional archival of completed jobs to object storage.
// Archival is enabled when Bucket is non-empty.
type S3Config struct {
	Bucket    string `env:"BUCKET"`
	Region    string `env:"REGION" envDefault:"us-east-1"`
	Endpoint  string `env:"ENDPOINT"` // for S3-compatible stores
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Prefix    string `env:"PREFIX" envDefault:"transcriptions"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile     string
	HTTPAddr    string
	LogLevel    string
	DatabaseURL string
	AudioDir    string
	WatchDir    string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.DatabaseURL != "" {
		cfg.DatabaseURL = overrides.DatabaseURL
	}
	if overrides.AudioDir != "" {
		cfg.AudioDir = overrides.AudioDir
	}
	if overrides.WatchDir != "" {
		cfg.WatchDir = overrides.WatchDir
	}

	return cfg, nil
}

// Extensions returns the allow-listed audio extensions as a lowercase set,
// without leading dots.
func (c *Config) Extensions() map[string]bool {
	set := make(map[string]bool)
	for _, ext := range strings.Split(c.AllowedExtensions, ",") {
		ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
		if ext != "" {
			set[ext] = true
		}
	}
	return set
}
