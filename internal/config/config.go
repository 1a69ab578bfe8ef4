package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration loaded from YAML with
// environment overrides for deployment secrets.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	NATS      NATSConfig      `yaml:"nats"`
	Detection DetectionConfig `yaml:"detection"`
	Recording RecordingConfig `yaml:"recording"`
	Cameras   []CameraEntry   `yaml:"cameras"`
}

type ServerConfig struct {
	Listen string `yaml:"listen"`
	Debug  bool   `yaml:"debug"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN builds the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr string `yaml:"addr"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// DetectionConfig drives the analyzer and live sessions. This section is
// hot-reloadable (see Watcher).
type DetectionConfig struct {
	ModelPath  string   `yaml:"model_path"`
	ConfigPath string   `yaml:"config_path"`
	NamesPath  string   `yaml:"names_path"`
	Confidence float64  `yaml:"confidence"`
	Classes    []string `yaml:"classes"`
	IntervalMS int      `yaml:"interval_ms"`
}

// Interval returns the minimum spacing between inference runs per camera.
func (d DetectionConfig) Interval() time.Duration {
	return time.Duration(d.IntervalMS) * time.Millisecond
}

type RecordingConfig struct {
	OutputDir        string  `yaml:"output_dir"`
	PreEventSeconds  float64 `yaml:"pre_event_seconds"`
	PostEventSeconds float64 `yaml:"post_event_seconds"`
	FPS              int     `yaml:"fps"`
	Codec            string  `yaml:"codec"`
	MinEventInterval int     `yaml:"min_event_interval_seconds"`
	// RetentionDays bounds how long event rows are kept; 0 keeps forever.
	RetentionDays int `yaml:"retention_days"`
}

// CameraEntry provisions a camera at startup.
type CameraEntry struct {
	ID                string `yaml:"id"`
	Name              string `yaml:"name"`
	SourceURI         string `yaml:"source_uri"`
	Width             int    `yaml:"width"`
	Height            int    `yaml:"height"`
	FPS               int    `yaml:"fps"`
	ReconnectInterval int    `yaml:"reconnect_interval_seconds"`
}

// Default returns the baseline configuration used when no file is present.
func Default() Config {
	return Config{
		Server: ServerConfig{Listen: ":8080"},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    "5432",
			SSLMode: "disable",
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		NATS:  NATSConfig{URL: "nats://localhost:4222", Subject: "vision.events"},
		Detection: DetectionConfig{
			ModelPath:  "models/yolov4-tiny.weights",
			ConfigPath: "models/yolov4-tiny.cfg",
			NamesPath:  "models/coco.names",
			Confidence: 0.5,
			Classes:    []string{"person", "car", "truck", "bus", "bicycle", "motorcycle"},
			IntervalMS: 200,
		},
		Recording: RecordingConfig{
			OutputDir:        "./events",
			PreEventSeconds:  3,
			PostEventSeconds: 5,
			FPS:              20,
			Codec:            "mp4v",
			MinEventInterval: 5,
			RetentionDays:    30,
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.Server.Listen = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		cfg.Database.Port = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
}
