package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/room4-2/livevoice/live"
)

// Config holds all server configuration
type Config struct {
	Port              int
	TwilioPort        int    // Port for Twilio server (used when ServerType is "both")
	ServerType        string // "websocket", "twilio", or "both"
	RedisURL          string
	RedisPassword     string
	MaxSessions       int
	SessionTimeout    time.Duration
	GeminiAPIKey      string
	GeminiModel       string // empty selects the connector's default model
	AllowedOrigins    []string
	KeepAlivePeriod   time.Duration
	MaxBufferSize     int // Maximum buffered microphone samples per session
	DefaultVoice      string
	SystemInstruction string // empty selects the built-in persona
	Locale            string // "ar" or "en"
	CaptureFrameSize  int    // samples per captured frame
}

// LoadConfig loads configuration from environment variables with defaults
func LoadConfig() (*Config, error) {
	// Load .env file if it exists (doesn't error if missing)
	_ = godotenv.Load()

	config := &Config{
		Port:             8080,
		TwilioPort:       8081,
		ServerType:       "websocket",
		RedisURL:         "localhost:6379",
		RedisPassword:    "",
		MaxSessions:      100,
		SessionTimeout:   30 * time.Minute,
		AllowedOrigins:   []string{"*"},
		KeepAlivePeriod:  30 * time.Second,
		MaxBufferSize:    16000 * 30, // 30s of 16 kHz audio
		DefaultVoice:     string(live.DefaultVoice),
		Locale:           "ar",
		CaptureFrameSize: 4096,
	}

	// Required: GEMINI_API_KEY
	config.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	if config.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	config.GeminiModel = os.Getenv("GEMINI_MODEL")
	config.SystemInstruction = os.Getenv("SYSTEM_INSTRUCTION")

	var err error
	if config.Port, err = intEnv("PORT", config.Port); err != nil {
		return nil, err
	}
	if config.TwilioPort, err = intEnv("TWILIO_PORT", config.TwilioPort); err != nil {
		return nil, err
	}
	if config.MaxSessions, err = intEnv("MAX_SESSIONS", config.MaxSessions); err != nil {
		return nil, err
	}
	if config.MaxBufferSize, err = intEnv("MAX_BUFFER_SIZE", config.MaxBufferSize); err != nil {
		return nil, err
	}
	if config.CaptureFrameSize, err = intEnv("CAPTURE_FRAME_SIZE", config.CaptureFrameSize); err != nil {
		return nil, err
	}

	// Optional: SESSION_TIMEOUT (in minutes)
	minutes, err := intEnv("SESSION_TIMEOUT", int(config.SessionTimeout/time.Minute))
	if err != nil {
		return nil, err
	}
	config.SessionTimeout = time.Duration(minutes) * time.Minute

	// Optional: KEEPALIVE_PERIOD (in seconds)
	seconds, err := intEnv("KEEPALIVE_PERIOD", int(config.KeepAlivePeriod/time.Second))
	if err != nil {
		return nil, err
	}
	config.KeepAlivePeriod = time.Duration(seconds) * time.Second

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		config.RedisURL = redisURL
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		config.RedisPassword = redisPassword
	}

	// Optional: ALLOWED_ORIGINS (comma-separated)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		config.AllowedOrigins = nil
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				config.AllowedOrigins = append(config.AllowedOrigins, o)
			}
		}
	}

	// Optional: SERVER_TYPE ("websocket", "twilio", or "both")
	if serverType := os.Getenv("SERVER_TYPE"); serverType != "" {
		switch serverType {
		case "websocket", "twilio", "both":
			config.ServerType = serverType
		default:
			return nil, fmt.Errorf("invalid SERVER_TYPE: must be 'websocket', 'twilio', or 'both'")
		}
	}

	if voice := os.Getenv("DEFAULT_VOICE"); voice != "" {
		v, err := live.ParseVoice(voice)
		if err != nil {
			return nil, fmt.Errorf("invalid DEFAULT_VOICE: %w", err)
		}
		config.DefaultVoice = string(v)
	}

	if locale := os.Getenv("LOCALE"); locale != "" {
		switch locale {
		case "ar", "en":
			config.Locale = locale
		default:
			return nil, fmt.Errorf("invalid LOCALE: must be 'ar' or 'en'")
		}
	}

	if config.MaxSessions <= 0 {
		return nil, fmt.Errorf("invalid MAX_SESSIONS: must be positive")
	}
	if config.CaptureFrameSize <= 0 {
		return nil, fmt.Errorf("invalid CAPTURE_FRAME_SIZE: must be positive")
	}

	return config, nil
}

func intEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
