package configuration

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

const (
	BackendMinio  = "minio"
	BackendS3     = "s3"
	BackendMemory = "memory"
)

type (
	Properties struct {
		LogLevel  string `env:"LOG_LEVEL" envDefault:"DEBUG"`
		LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

		Server  HttpServerProperties `envPrefix:"HTTP_"`
		Storage StorageProperties    `envPrefix:"STORAGE_"`
		S3      S3Properties         `envPrefix:"S3_"`
	}

	HttpServerProperties struct {
		Name              string        `env:"NAME" envDefault:"gallery"`
		Port              string        `env:"PORT" envDefault:"8088"`
		ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"15s"`
		// Whole request and response deadlines. Zero means none, so slow uploads are not cut off.
		ReadTimeout       time.Duration `env:"READ_TIMEOUT" envDefault:"0s"`
		WriteTimeout      time.Duration `env:"WRITE_TIMEOUT" envDefault:"0s"`
		AllowOrigins      []string      `env:"ALLOW_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
		Pprof             bool          `env:"PPROF" envDefault:"false"`
	}

	StorageProperties struct {
		Backend      string `env:"BACKEND" envDefault:"minio"`
		TempDir      string `env:"TEMP_DIR" envDefault:"temp"`
		PurgeWorkers int    `env:"PURGE_WORKERS" envDefault:"8"`
		// Base for media links of the in-memory backend.
		MemoryBase string `env:"MEMORY_BASE" envDefault:"http://localhost:8088/files"`
	}

	S3Properties struct {
		Host            string `env:"HOST" envDefault:"localhost:9000"`
		AccessKey       string `env:"ACCESS_KEY"`
		SecretKey       string `env:"SECRET_KEY"`
		UseSSL          bool   `env:"USE_SSL" envDefault:"false"`
		Region          string `env:"REGION" envDefault:"us-east-1"`
		PathStyle       bool   `env:"PATH_STYLE" envDefault:"true"`
		PublicBase      string `env:"PUBLIC_BASE"`
		Project         string `env:"PROJECT"`
		CredentialsFile string `env:"CREDENTIALS_FILE"`
	}

	// credentialsFile is the on-disk shape of S3_CREDENTIALS_FILE.
	credentialsFile struct {
		AccessKey string `json:"accessKey"`
		SecretKey string `json:"secretKey"`
	}
)

func ReadProperties() *Properties {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found, reading from environment")
	}

	config, err := ParseProperties()
	if err != nil {
		panic(fmt.Errorf("read config error: %w", err))
	}
	return config
}

// ParseProperties reads the environment into Properties and validates it.
func ParseProperties() (*Properties, error) {
	config := &Properties{}

	if err := env.Parse(config); err != nil {
		return nil, err
	}
	if err := config.S3.loadCredentialsFile(); err != nil {
		return nil, err
	}
	switch config.Storage.Backend {
	case BackendMinio, BackendS3, BackendMemory:
	default:
		return nil, fmt.Errorf("unknown storage backend %q", config.Storage.Backend)
	}
	if config.Storage.PurgeWorkers < 1 {
		return nil, fmt.Errorf("purge workers must be positive, got %d", config.Storage.PurgeWorkers)
	}
	return config, nil
}

// loadCredentialsFile overrides the static keys with the ones from CredentialsFile, if set.
func (s *S3Properties) loadCredentialsFile() error {
	if s.CredentialsFile == "" {
		return nil
	}
	raw, err := os.ReadFile(s.CredentialsFile)
	if err != nil {
		return fmt.Errorf("read credentials file: %w", err)
	}
	var creds credentialsFile
	if err := json.Unmarshal(raw, &creds); err != nil {
		return fmt.Errorf("parse credentials file %s: %w", s.CredentialsFile, err)
	}
	if creds.AccessKey == "" || creds.SecretKey == "" {
		return fmt.Errorf("credentials file %s has no accessKey/secretKey", s.CredentialsFile)
	}
	s.AccessKey = creds.AccessKey
	s.SecretKey = creds.SecretKey
	return nil
}

// SetupLogger configures the global logrus logger from LogLevel and LogFormat.
func (p *Properties) SetupLogger() {
	level, err := log.ParseLevel(p.LogLevel)
	if err != nil {
		log.Warnf("unknown log level %q, using info", p.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if p.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}
