package filestore

import "github.com/koustreak/stagegen/internal/errs"

// Provider identifies the file storage backend.
type Provider string

const (
	ProviderMinIO Provider = "minio"
)

// Config holds all settings needed to connect to an object store and
// locate stagegen's input and output under it.
type Config struct {
	// Provider is the storage backend (e.g. ProviderMinIO).
	Provider Provider `koanf:"provider"`

	// Endpoint is the host:port of the storage server.
	// Example: "localhost:9000" for local MinIO.
	Endpoint string `koanf:"endpoint"`

	// AccessKey is the access key ID (MinIO / S3 style).
	AccessKey string `koanf:"access_key"`

	// SecretKey is the secret access key.
	SecretKey string `koanf:"secret_key"`

	// UseSSL controls whether TLS is used for the connection.
	UseSSL bool `koanf:"use_ssl"`

	// Region is used by region-aware backends (e.g. AWS S3).
	// Leave empty for MinIO.
	Region string `koanf:"region"`

	// Bucket holds both extracts and generated models.
	Bucket string `koanf:"bucket"`

	// InputPrefix is where *.csv extracts and schema.yml are read from.
	InputPrefix string `koanf:"input_prefix"`

	// OutputPrefix is where generated models and metadata.json are written.
	OutputPrefix string `koanf:"output_prefix"`
}

// DefaultConfig returns a local-dev config for MinIO.
func DefaultConfig() Config {
	return Config{
		Provider:     ProviderMinIO,
		Endpoint:     "localhost:9000",
		InputPrefix:  "raw",
		OutputPrefix: "models/staging",
	}
}

// Validate checks that a store can be dialled and addressed.
func (c Config) Validate() error {
	if c.Provider != ProviderMinIO {
		return errs.Newf(errs.ErrKindInvalidInput, "unsupported store provider %q", c.Provider)
	}
	if c.Endpoint == "" {
		return errs.New(errs.ErrKindInvalidInput, "store endpoint is required")
	}
	if c.Bucket == "" {
		return errs.New(errs.ErrKindInvalidInput, "store bucket is required")
	}
	return nil
}
