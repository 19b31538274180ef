package config

import (
	"testing"
	"time"
)

var envKeys = []string{
	"GEMINI_API_KEY", "GEMINI_MODEL", "SYSTEM_INSTRUCTION", "PORT", "TWILIO_PORT",
	"MAX_SESSIONS", "MAX_BUFFER_SIZE", "CAPTURE_FRAME_SIZE", "SESSION_TIMEOUT",
	"KEEPALIVE_PERIOD", "REDIS_URL", "REDIS_PASSWORD", "ALLOWED_ORIGINS",
	"SERVER_TYPE", "DEFAULT_VOICE", "LOCALE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "key")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 8080 || cfg.ServerType != "websocket" || cfg.MaxSessions != 100 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.DefaultVoice != "Zephyr" || cfg.Locale != "ar" || cfg.CaptureFrameSize != 4096 {
		t.Errorf("voice/locale/frame = %s/%s/%d", cfg.DefaultVoice, cfg.Locale, cfg.CaptureFrameSize)
	}
	if cfg.SessionTimeout != 30*time.Minute || cfg.KeepAlivePeriod != 30*time.Second {
		t.Errorf("timeouts = %s/%s", cfg.SessionTimeout, cfg.KeepAlivePeriod)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("DEFAULT_VOICE", "fenrir")
	t.Setenv("LOCALE", "en")
	t.Setenv("SESSION_TIMEOUT", "5")
	t.Setenv("KEEPALIVE_PERIOD", "10")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("SERVER_TYPE", "both")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DefaultVoice != "Fenrir" {
		t.Errorf("DefaultVoice = %q", cfg.DefaultVoice)
	}
	if cfg.Locale != "en" || cfg.ServerType != "both" {
		t.Errorf("locale/server = %s/%s", cfg.Locale, cfg.ServerType)
	}
	if cfg.SessionTimeout != 5*time.Minute || cfg.KeepAlivePeriod != 10*time.Second {
		t.Errorf("timeouts = %s/%s", cfg.SessionTimeout, cfg.KeepAlivePeriod)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("origins = %q", cfg.AllowedOrigins)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"missing key":    {"GEMINI_API_KEY": ""},
		"bad port":       {"PORT": "eighty"},
		"bad voice":      {"DEFAULT_VOICE": "Nobody"},
		"bad locale":     {"LOCALE": "fr"},
		"bad server":     {"SERVER_TYPE": "grpc"},
		"zero sessions":  {"MAX_SESSIONS": "0"},
		"negative frame": {"CAPTURE_FRAME_SIZE": "-1"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("GEMINI_API_KEY", "key")
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := LoadConfig(); err == nil {
				t.Error("expected error")
			}
		})
	}
}
