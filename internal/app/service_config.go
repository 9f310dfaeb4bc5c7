package app

import (
	"strings"

	"github.com/eternalmemory/eternal/internal/imageproc"
	"github.com/eternalmemory/eternal/internal/llm"
	"github.com/eternalmemory/eternal/internal/storage"
)

// StorageBackendConfig converts StorageConfig into backend parameters.
func (c StorageConfig) StorageBackendConfig() storage.Config {
	return storage.Config{
		Driver:          strings.ToLower(strings.TrimSpace(c.Driver)),
		LocalDir:        c.LocalDir,
		BaseURL:         c.BaseURL,
		Bucket:          c.S3.Bucket,
		Region:          c.S3.Region,
		Endpoint:        c.S3.Endpoint,
		AccessKeyID:     c.S3.AccessKeyID,
		SecretAccessKey: c.S3.SecretAccessKey,
		UsePathStyle:    c.S3.UsePathStyle,
	}
}

// ServesLocalFiles reports whether uploads should be exposed by the HTTP server.
func (c StorageConfig) ServesLocalFiles() bool {
	driver := strings.ToLower(strings.TrimSpace(c.Driver))
	return driver == "" || driver == storage.DriverLocal
}

// ProcessorOptions converts ImageConfig into image pipeline options. Zero values fall
// back to the processor defaults.
func (c ImageConfig) ProcessorOptions() imageproc.Options {
	return imageproc.Options{
		MaxBytes:      c.MaxUploadBytes,
		MaxDimension:  c.MaxDimension,
		ThumbnailSize: c.ThumbnailSize,
		JPEGQuality:   c.JPEGQuality,
	}
}

// ClientConfig converts LLMConfig into client parameters.
func (c LLMConfig) ClientConfig() llm.Config {
	breaker := llm.DefaultBreakerConfig()
	if c.Breaker.MaxRequests > 0 {
		breaker.MaxRequests = c.Breaker.MaxRequests
	}
	if c.Breaker.Interval > 0 {
		breaker.Interval = c.Breaker.Interval
	}
	if c.Breaker.Timeout > 0 {
		breaker.Timeout = c.Breaker.Timeout
	}
	if c.Breaker.FailureRatio > 0 {
		breaker.FailureRatio = c.Breaker.FailureRatio
	}
	if c.Breaker.MinRequests > 0 {
		breaker.MinRequests = c.Breaker.MinRequests
	}

	return llm.Config{
		Enabled:     c.Enabled && strings.TrimSpace(c.BaseURL) != "",
		BaseURL:     strings.TrimSpace(c.BaseURL),
		APIKey:      c.APIKey,
		Model:       c.Model,
		Timeout:     c.Timeout,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
		Breaker:     breaker,
	}
}
