package filerelay

import (
	"fmt"
	"strings"
	"time"

	gerrors "github.com/goliatone/go-errors"
	"github.com/kelseyhightower/envconfig"
)

const (
	BackendS3    = "s3"
	BackendMinio = "minio"
	BackendFS    = "fs"
)

type Config struct {
	Storage  StorageConfig
	Transfer TransferConfig
	Server   ServerConfig
	NATS     NATSConfig
}

type StorageConfig struct {
	Backend      string `envconfig:"FILERELAY_BACKEND" default:"s3"`
	Region       string `envconfig:"WASABI_REGION" default:"us-east-1"`
	Endpoint     string `envconfig:"WASABI_ENDPOINT"`
	Bucket       string `envconfig:"WASABI_BUCKET"`
	AccessKey    string `envconfig:"WASABI_ACCESS_KEY"`
	SecretKey    string `envconfig:"WASABI_SECRET_KEY"`
	BasePath     string `envconfig:"FILERELAY_BASE_PATH"`
	UsePathStyle bool   `envconfig:"FILERELAY_PATH_STYLE" default:"false"`
	UseSSL       bool   `envconfig:"FILERELAY_USE_SSL" default:"true"`
	LocalRoot    string `envconfig:"FILERELAY_LOCAL_ROOT" default:"bucket"`
	LocalURL     string `envconfig:"FILERELAY_LOCAL_URL" default:"http://localhost:8080/files/"`
}

type TransferConfig struct {
	// LinkExpiration is expressed in seconds, as the bot always did.
	LinkExpiration     int64         `envconfig:"LINK_EXPIRATION" default:"604800"`
	StagingDir         string        `envconfig:"DOWNLOAD_DIR" default:"downloads"`
	MaxFileSize        int64         `envconfig:"FILERELAY_MAX_FILE_SIZE" default:"4294967296"`
	Workers            int           `envconfig:"FILERELAY_WORKERS" default:"4"`
	MultipartThreshold int64         `envconfig:"FILERELAY_MULTIPART_THRESHOLD" default:"8388608"`
	PartSize           int64         `envconfig:"FILERELAY_PART_SIZE" default:"8388608"`
	PartConcurrency    int           `envconfig:"FILERELAY_PART_CONCURRENCY" default:"10"`
	ProgressInterval   time.Duration `envconfig:"FILERELAY_PROGRESS_INTERVAL" default:"1s"`
	RegistryTTL        time.Duration `envconfig:"FILERELAY_REGISTRY_TTL" default:"30m"`
}

type ServerConfig struct {
	Addr      string        `envconfig:"FILERELAY_ADDR" default:":8080"`
	PublicURL string        `envconfig:"FILERELAY_PUBLIC_URL" default:"http://localhost:5000"`
	CacheSize int           `envconfig:"FILERELAY_CACHE_SIZE" default:"512"`
	CacheTTL  time.Duration `envconfig:"FILERELAY_CACHE_TTL" default:"1m"`
}

type NATSConfig struct {
	URL     string `envconfig:"NATS_URL"`
	Subject string `envconfig:"NATS_SUBJECT" default:"filerelay.transfers"`
	Name    string `envconfig:"NATS_CLIENT_NAME" default:"filerelay"`
}

// LoadConfig reads the configuration from the environment.
func LoadConfig() (*Config, error) {
	var cfg Config

	// each section is processed on its own so keys stay unprefixed
	sections := []any{&cfg.Storage, &cfg.Transfer, &cfg.Server, &cfg.NATS}
	for _, section := range sections {
		if err := envconfig.Process("", section); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

// Validate reports every missing or invalid value at once.
func (c *Config) Validate() error {
	var fields []gerrors.FieldError

	switch c.Storage.Backend {
	case BackendS3, BackendMinio:
		required := map[string]string{
			"WASABI_ACCESS_KEY": c.Storage.AccessKey,
			"WASABI_SECRET_KEY": c.Storage.SecretKey,
			"WASABI_BUCKET":     c.Storage.Bucket,
		}
		for _, name := range []string{"WASABI_ACCESS_KEY", "WASABI_SECRET_KEY", "WASABI_BUCKET"} {
			if required[name] == "" {
				fields = append(fields, gerrors.FieldError{
					Field:   name,
					Message: "required environment variable is missing",
				})
			}
		}
	case BackendFS:
		if c.Storage.LocalRoot == "" {
			fields = append(fields, gerrors.FieldError{
				Field:   "FILERELAY_LOCAL_ROOT",
				Message: "required for the fs backend",
			})
		}
	default:
		fields = append(fields, gerrors.FieldError{
			Field:   "FILERELAY_BACKEND",
			Message: fmt.Sprintf("unknown backend, allowed: %s", strings.Join([]string{BackendS3, BackendMinio, BackendFS}, ",")),
			Value:   c.Storage.Backend,
		})
	}

	if c.Transfer.LinkExpiration <= 0 {
		fields = append(fields, gerrors.FieldError{
			Field:   "LINK_EXPIRATION",
			Message: "must be greater than zero",
			Value:   c.Transfer.LinkExpiration,
		})
	}

	if c.Transfer.MaxFileSize <= 0 {
		fields = append(fields, gerrors.FieldError{
			Field:   "FILERELAY_MAX_FILE_SIZE",
			Message: "must be greater than zero",
			Value:   c.Transfer.MaxFileSize,
		})
	}

	if c.Transfer.StagingDir == "" {
		fields = append(fields, gerrors.FieldError{
			Field:   "DOWNLOAD_DIR",
			Message: "cannot be empty",
		})
	}

	if len(fields) > 0 {
		return gerrors.NewValidation("configuration validation failed", fields...).
			WithCode(400).WithTextCode("INVALID_CONFIG")
	}

	return nil
}

func (t TransferConfig) LinkTTL() time.Duration {
	if t.LinkExpiration <= 0 {
		return DefaultLinkExpiration
	}
	return time.Duration(t.LinkExpiration) * time.Second
}

func (s StorageConfig) RegionOrDefault() string {
	if s.Region == "" {
		return DefaultRegion
	}
	return s.Region
}

// EndpointURL returns the configured endpoint or the Wasabi endpoint of the region.
func (s StorageConfig) EndpointURL() string {
	if s.Endpoint != "" {
		return s.Endpoint
	}
	return fmt.Sprintf("https://s3.%s.wasabisys.com", s.RegionOrDefault())
}

// EndpointHost strips the scheme from EndpointURL, as minio expects a host.
func (s StorageConfig) EndpointHost() string {
	host := s.EndpointURL()
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	return strings.TrimSuffix(host, "/")
}
