package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Transcription backends
const (
	BackendWhisper = "whisper"
	BackendGemini  = "gemini"
)

// Config holds relay and client configuration
type Config struct {
	// Relay
	Port            int
	AllowedOrigins  []string
	KeepAlivePeriod time.Duration
	MaxSessions     int
	SessionTimeout  time.Duration
	RedisURL        string // empty disables the session registry
	RedisPassword   string
	GatewayWSURL    string
	GatewayAPIURL   string

	// Voice
	MaxBufferSize     int // Maximum upload or recording size in bytes
	TranscribeBackend string
	WhisperSocket     string
	GeminiAPIKey      string
	GeminiModel       string
	TTSVoice          string

	// Client
	BaseURL           string
	ReconnectDelay    time.Duration
	ReconnectMaxDelay time.Duration
	RequestTimeout    time.Duration
}

// LoadConfig loads configuration from environment variables with defaults
func LoadConfig() (*Config, error) {
	// Load .env file if it exists (doesn't error if missing)
	_ = godotenv.Load()

	config := &Config{
		Port:              8080,
		AllowedOrigins:    []string{"*"},
		KeepAlivePeriod:   30 * time.Second,
		MaxSessions:       100,
		SessionTimeout:    30 * time.Minute,
		RedisURL:          "localhost:6379",
		GatewayWSURL:      "ws://10.0.0.1:18789",
		GatewayAPIURL:     "http://10.0.0.1:18789",
		MaxBufferSize:     25 * 1024 * 1024, // 25MB default
		TranscribeBackend: BackendWhisper,
		WhisperSocket:     "/tmp/whisper-transcribe.sock",
		GeminiModel:       "gemini-2.5-flash",
		TTSVoice:          "en-US-AvaNeural",
		BaseURL:           "http://localhost:8080",
		ReconnectDelay:    3 * time.Second,
		ReconnectMaxDelay: 30 * time.Second,
		RequestTimeout:    2 * time.Minute,
	}

	if err := intVar("PORT", &config.Port); err != nil {
		return nil, err
	}
	if err := intVar("MAX_SESSIONS", &config.MaxSessions); err != nil {
		return nil, err
	}
	if err := intVar("MAX_BUFFER_SIZE", &config.MaxBufferSize); err != nil {
		return nil, err
	}

	// Durations: SESSION_TIMEOUT in minutes, the rest in seconds
	if err := durationVar("SESSION_TIMEOUT", time.Minute, &config.SessionTimeout); err != nil {
		return nil, err
	}
	if err := durationVar("KEEPALIVE_PERIOD", time.Second, &config.KeepAlivePeriod); err != nil {
		return nil, err
	}
	if err := durationVar("RECONNECT_DELAY", time.Second, &config.ReconnectDelay); err != nil {
		return nil, err
	}
	if err := durationVar("RECONNECT_MAX_DELAY", time.Second, &config.ReconnectMaxDelay); err != nil {
		return nil, err
	}
	if err := durationVar("REQUEST_TIMEOUT", time.Second, &config.RequestTimeout); err != nil {
		return nil, err
	}

	// Optional: ALLOWED_ORIGINS (comma-separated)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		config.AllowedOrigins = splitList(origins)
	}

	// Optional: REDIS_URL, may be set to "none" to run without Redis
	if redisURL, ok := os.LookupEnv("REDIS_URL"); ok {
		if redisURL == "none" {
			redisURL = ""
		}
		config.RedisURL = redisURL
	}
	config.RedisPassword = os.Getenv("REDIS_PASSWORD")

	stringVar("GATEWAY_WS_URL", &config.GatewayWSURL)
	stringVar("GATEWAY_API_URL", &config.GatewayAPIURL)
	stringVar("WHISPER_SOCKET", &config.WhisperSocket)
	stringVar("GEMINI_MODEL", &config.GeminiModel)
	stringVar("TTS_VOICE", &config.TTSVoice)
	stringVar("AGENTWIRE_BASE_URL", &config.BaseURL)
	config.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")

	if err := validURL("GATEWAY_WS_URL", config.GatewayWSURL, "ws", "wss"); err != nil {
		return nil, err
	}
	if err := validURL("GATEWAY_API_URL", config.GatewayAPIURL, "http", "https"); err != nil {
		return nil, err
	}
	if err := validURL("AGENTWIRE_BASE_URL", config.BaseURL, "http", "https", "ws", "wss"); err != nil {
		return nil, err
	}

	// Optional: TRANSCRIBE_BACKEND ("whisper" or "gemini")
	if backend := os.Getenv("TRANSCRIBE_BACKEND"); backend != "" {
		switch backend {
		case BackendWhisper, BackendGemini:
			config.TranscribeBackend = backend
		default:
			return nil, fmt.Errorf("invalid TRANSCRIBE_BACKEND: must be 'whisper' or 'gemini'")
		}
	}

	// GEMINI_API_KEY is only required by the gemini backend
	if config.TranscribeBackend == BackendGemini && config.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required when TRANSCRIBE_BACKEND=gemini")
	}

	if config.ReconnectMaxDelay < config.ReconnectDelay {
		return nil, fmt.Errorf("invalid RECONNECT_MAX_DELAY: must not be below RECONNECT_DELAY")
	}

	return config, nil
}

func stringVar(name string, dst *string) {
	if value := os.Getenv(name); value != "" {
		*dst = value
	}
}

func intVar(name string, dst *int) error {
	value := os.Getenv(name)
	if value == "" {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if n < 0 {
		return fmt.Errorf("invalid %s: must not be negative", name)
	}
	*dst = n
	return nil
}

func durationVar(name string, unit time.Duration, dst *time.Duration) error {
	var n int
	if err := intVar(name, &n); err != nil {
		return err
	}
	if os.Getenv(name) != "" {
		*dst = time.Duration(n) * unit
	}
	return nil
}

func validURL(name, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	for _, scheme := range schemes {
		if u.Scheme == scheme && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("invalid %s: want %s URL, got %q", name, strings.Join(schemes, "/"), raw)
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
