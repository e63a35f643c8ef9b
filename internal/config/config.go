package config

import (
	"encoding/base64"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type ObjectStoreConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	PublicURL string `yaml:"publicURL"`
	UseSSL    bool   `yaml:"useSSL"`
}

type SummarizerConfig struct {
	URL   string `yaml:"url"`
	Model string `yaml:"model"`
}

type Config struct {
	ServerAddr     string
	DatabaseDSN    string
	SigningKey     []byte
	AllowedOrigins []string
	ObjectStore    ObjectStoreConfig
	Summarizer     SummarizerConfig
}

// fileConfig is the YAML shape of the optional config file. Flag values
// passed to NewConfig take precedence over it.
type fileConfig struct {
	ServerAddr     string            `yaml:"serverAddr"`
	DatabaseDSN    string            `yaml:"databaseDSN"`
	SigningKey     string            `yaml:"signingKey"`
	AllowedOrigins []string          `yaml:"allowedOrigins"`
	ObjectStore    ObjectStoreConfig `yaml:"objectStore"`
	Summarizer     SummarizerConfig  `yaml:"summarizer"`
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func loadFile(path string) (fileConfig, error) {
	var fc fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse config: %w", err)
	}

	return fc, nil
}

func NewConfig(configPath, serverAddr, databaseDSN, base64Secret string, allowedOrigins []string) (*Config, error) {
	var fc fileConfig
	if configPath != "" {
		var err error
		fc, err = loadFile(configPath)
		if err != nil {
			return nil, err
		}
	}

	if serverAddr != "" {
		fc.ServerAddr = serverAddr
	}
	if databaseDSN != "" {
		fc.DatabaseDSN = databaseDSN
	}
	if base64Secret != "" {
		fc.SigningKey = base64Secret
	}
	if len(allowedOrigins) > 0 {
		fc.AllowedOrigins = allowedOrigins
	}

	// environment overrides for secrets, so they can stay out of the file
	if v := os.Getenv("COURSE_CHAT_DSN"); v != "" {
		fc.DatabaseDSN = v
	}
	if v := os.Getenv("COURSE_CHAT_SIGNING_KEY"); v != "" {
		fc.SigningKey = v
	}
	if v := os.Getenv("COURSE_CHAT_MINIO_ACCESS_KEY"); v != "" {
		fc.ObjectStore.AccessKey = v
	}
	if v := os.Getenv("COURSE_CHAT_MINIO_SECRET_KEY"); v != "" {
		fc.ObjectStore.SecretKey = v
	}

	if fc.ServerAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if fc.DatabaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if fc.SigningKey == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	if fc.ObjectStore.Endpoint == "" {
		fc.ObjectStore.Endpoint = "localhost:9000"
	}
	if fc.ObjectStore.Bucket == "" {
		fc.ObjectStore.Bucket = "course-chat"
	}
	if fc.ObjectStore.PublicURL == "" {
		scheme := "http"
		if fc.ObjectStore.UseSSL {
			scheme = "https"
		}
		fc.ObjectStore.PublicURL = fmt.Sprintf("%s://%s", scheme, fc.ObjectStore.Endpoint)
	}
	if fc.Summarizer.URL == "" {
		fc.Summarizer.URL = "http://localhost:11434"
	}
	if fc.Summarizer.Model == "" {
		fc.Summarizer.Model = "llama3.1"
	}

	signingKey, err := decodeSigningSecret(fc.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		ServerAddr:     fc.ServerAddr,
		DatabaseDSN:    fc.DatabaseDSN,
		SigningKey:     signingKey,
		AllowedOrigins: fc.AllowedOrigins,
		ObjectStore:    fc.ObjectStore,
		Summarizer:     fc.Summarizer,
	}, nil
}
