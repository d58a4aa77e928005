package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	ModeMain = "main"
	ModeSfu  = "sfu"

	VoiceBackendCustom  = "custom"
	VoiceBackendLiveKit = "livekit"
)

// Config holds all configuration for an accord process.
type Config struct {
	Mode     string
	Server   ServerConfig
	Database DatabaseConfig
	Voice    VoiceConfig
	LiveKit  LiveKitConfig
	Sfu      SfuConfig
	Timings  Timings
}

type ServerConfig struct {
	Host           string
	Port           int
	PublicURL      string
	AllowedOrigins []string
	StoragePath    string
	TestMode       bool
	Trace          bool
}

type DatabaseConfig struct {
	URL string
}

type VoiceConfig struct {
	Backend       string // custom, livekit
	DefaultRegion string
}

type LiveKitConfig struct {
	URL       string
	APIKey    string
	APISecret string
}

func (c LiveKitConfig) IsConfigured() bool {
	return c.URL != "" && c.APIKey != "" && c.APISecret != ""
}

// SfuConfig drives both sides of the custom voice backend: the edge-node
// agent (mode=sfu) and the token signing done by the main node.
type SfuConfig struct {
	MainURL           string
	NodeID            string
	Region            string
	Capacity          int
	Endpoint          string
	HeartbeatInterval time.Duration
	Secret            string
}

// Timings groups the protocol timers that ACCORD_TEST_MODE shrinks.
type Timings struct {
	HeartbeatInterval time.Duration
	IdentifyDeadline  time.Duration
	ReaperTick        time.Duration
	ReapThreshold     time.Duration
}

func defaultTimings() Timings {
	return Timings{
		HeartbeatInterval: 45 * time.Second,
		IdentifyDeadline:  30 * time.Second,
		ReaperTick:        30 * time.Second,
		ReapThreshold:     60 * time.Second,
	}
}

func testTimings() Timings {
	return Timings{
		HeartbeatInterval: 1 * time.Second,
		IdentifyDeadline:  5 * time.Second,
		ReaperTick:        1 * time.Second,
		ReapThreshold:     2 * time.Second,
	}
}

// fileConfig mirrors the optional TOML file named by ACCORD_CONFIG. Values
// from the file become defaults; environment variables always win.
type fileConfig struct {
	Mode   string `toml:"mode"`
	Server struct {
		Host           string   `toml:"host"`
		Port           int      `toml:"port"`
		PublicURL      string   `toml:"public_url"`
		AllowedOrigins []string `toml:"allowed_origins"`
		StoragePath    string   `toml:"storage_path"`
	} `toml:"server"`
	Database struct {
		URL string `toml:"url"`
	} `toml:"database"`
	Voice struct {
		Backend       string `toml:"backend"`
		DefaultRegion string `toml:"default_region"`
	} `toml:"voice"`
	LiveKit struct {
		URL       string `toml:"url"`
		APIKey    string `toml:"api_key"`
		APISecret string `toml:"api_secret"`
	} `toml:"livekit"`
	Sfu struct {
		Secret string `toml:"secret"`
	} `toml:"sfu"`
}

func loadFile(path string) (fileConfig, error) {
	var fc fileConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read config file: %w", err)
	}
	if err := toml.Unmarshal(raw, &fc); err != nil {
		return fc, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return fc, nil
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func orDefaultInt(v, def int) int {
	if v != 0 {
		return v
	}
	return def
}

func firstNonEmpty(v, def []string) []string {
	if len(v) > 0 {
		return v
	}
	return def
}

// Load reads the optional TOML file and the environment into a Config.
func Load() (*Config, error) {
	var fc fileConfig
	if path := os.Getenv("ACCORD_CONFIG"); path != "" {
		loaded, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		fc = loaded
	}

	cfg := &Config{
		Mode: getEnv("ACCORD_MODE", orDefault(fc.Mode, ModeMain)),
		Server: ServerConfig{
			Host:           getEnv("HOST", orDefault(fc.Server.Host, "0.0.0.0")),
			Port:           getEnvInt("PORT", orDefaultInt(fc.Server.Port, 8080)),
			PublicURL:      getEnv("ACCORD_PUBLIC_URL", fc.Server.PublicURL),
			AllowedOrigins: getEnvSlice("ACCORD_ALLOWED_ORIGINS", firstNonEmpty(fc.Server.AllowedOrigins, []string{"*"})),
			StoragePath:    getEnv("ACCORD_STORAGE_PATH", orDefault(fc.Server.StoragePath, "./data")),
			TestMode:       getEnvBool("ACCORD_TEST_MODE", false),
			Trace:          getEnvBool("ACCORD_TRACE", false),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", orDefault(fc.Database.URL, "postgres://localhost:5432/accord?sslmode=disable")),
		},
		Voice: VoiceConfig{
			Backend:       getEnv("ACCORD_VOICE_BACKEND", orDefault(fc.Voice.Backend, VoiceBackendCustom)),
			DefaultRegion: getEnv("ACCORD_VOICE_REGION", fc.Voice.DefaultRegion),
		},
		LiveKit: LiveKitConfig{
			URL:       getEnv("LIVEKIT_URL", fc.LiveKit.URL),
			APIKey:    getEnv("LIVEKIT_API_KEY", fc.LiveKit.APIKey),
			APISecret: getEnv("LIVEKIT_API_SECRET", fc.LiveKit.APISecret),
		},
		Sfu: SfuConfig{
			MainURL:           getEnv("ACCORD_MAIN_URL", ""),
			NodeID:            getEnv("ACCORD_SFU_NODE_ID", ""),
			Region:            getEnv("ACCORD_SFU_REGION", ""),
			Capacity:          getEnvInt("ACCORD_SFU_CAPACITY", 100),
			Endpoint:          getEnv("ACCORD_SFU_ENDPOINT", ""),
			HeartbeatInterval: getEnvDuration("ACCORD_SFU_HEARTBEAT_INTERVAL", 25*time.Second),
			Secret:            getEnv("ACCORD_SFU_SECRET", fc.Sfu.Secret),
		},
	}

	if cfg.Server.TestMode {
		cfg.Timings = testTimings()
	} else {
		cfg.Timings = defaultTimings()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements that Load cannot default away.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeMain, ModeSfu:
	default:
		return fmt.Errorf("invalid ACCORD_MODE %q (want main or sfu)", c.Mode)
	}
	switch c.Voice.Backend {
	case VoiceBackendCustom, VoiceBackendLiveKit:
	default:
		return fmt.Errorf("invalid ACCORD_VOICE_BACKEND %q (want custom or livekit)", c.Voice.Backend)
	}
	if c.Mode == ModeMain && c.Voice.Backend == VoiceBackendLiveKit && !c.LiveKit.IsConfigured() {
		return fmt.Errorf("livekit backend requires LIVEKIT_URL, LIVEKIT_API_KEY and LIVEKIT_API_SECRET")
	}
	if c.Mode == ModeSfu {
		if c.Sfu.MainURL == "" {
			return fmt.Errorf("sfu mode requires ACCORD_MAIN_URL")
		}
		if c.Sfu.NodeID == "" {
			return fmt.Errorf("sfu mode requires ACCORD_SFU_NODE_ID")
		}
		if c.Sfu.Region == "" {
			return fmt.Errorf("sfu mode requires ACCORD_SFU_REGION")
		}
		if c.Sfu.Endpoint == "" {
			return fmt.Errorf("sfu mode requires ACCORD_SFU_ENDPOINT")
		}
		if c.Sfu.Capacity <= 0 {
			return fmt.Errorf("ACCORD_SFU_CAPACITY must be positive")
		}
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
