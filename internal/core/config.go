package core

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// JobSpec is one user-declared unit of video work. It is read-only once
// scheduling begins.
type JobSpec struct {
	Prompt          string `yaml:"prompt" json:"prompt"`
	Output          string `yaml:"output,omitempty" json:"output,omitempty"`
	Model           string `yaml:"model,omitempty" json:"model,omitempty"`
	DurationSeconds int    `yaml:"duration_seconds,omitempty" json:"duration_seconds,omitempty"`
	AspectRatio     string `yaml:"aspect_ratio,omitempty" json:"aspect_ratio,omitempty"`
	Resolution      string `yaml:"resolution,omitempty" json:"resolution,omitempty"`
	ImageURL        string `yaml:"image_url,omitempty" json:"image_url,omitempty"`
	ImagePath       string `yaml:"image_path,omitempty" json:"image_path,omitempty"`
	VideoURL        string `yaml:"video_url,omitempty" json:"video_url,omitempty"`
}

// Defaults are batch-wide fallbacks applied to jobs that omit a field.
type Defaults struct {
	Model           string `yaml:"model,omitempty"`
	DurationSeconds int    `yaml:"duration_seconds,omitempty"`
	AspectRatio     string `yaml:"aspect_ratio,omitempty"`
	Resolution      string `yaml:"resolution,omitempty"`
}

// RetryPolicy decides whether a failed attempt is worth repeating.
// A failure whose message matches none of the patterns is terminal even if
// retries remain.
type RetryPolicy struct {
	MaxRetries    int      `yaml:"max_retries" json:"max_retries"`
	RetryDelayMS  int      `yaml:"retry_delay_ms" json:"retry_delay_ms"`
	RetryPatterns []string `yaml:"retry_patterns" json:"retry_patterns"`
}

// ArchiveConfig selects an optional post-batch upload destination.
type ArchiveConfig struct {
	Type string `yaml:"type"` // "s3" or "sftp"

	// s3
	Endpoint  string `yaml:"endpoint,omitempty"`
	Bucket    string `yaml:"bucket,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
	UseSSL    bool   `yaml:"use_ssl,omitempty"`

	// sftp
	Host       string `yaml:"host,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	User       string `yaml:"user,omitempty"`
	KeyPath    string `yaml:"key_path,omitempty"`
	KnownHosts string `yaml:"known_hosts,omitempty"`
	RemoteDir  string `yaml:"remote_dir,omitempty"`
}

// BatchConfig is the validated input to a batch run.
type BatchConfig struct {
	Jobs            []JobSpec      `yaml:"jobs"`
	Defaults        Defaults       `yaml:"defaults"`
	OutputDir       string         `yaml:"output_dir,omitempty"`
	AllowAnyPath    bool           `yaml:"allow_any_path,omitempty"`
	MaxConcurrent   int            `yaml:"max_concurrent,omitempty"`
	TimeoutMS       int            `yaml:"timeout_ms,omitempty"`
	PollIntervalMS  int            `yaml:"poll_interval_ms,omitempty"`
	MaxPollAttempts int            `yaml:"max_poll_attempts,omitempty"`
	Retry           RetryPolicy    `yaml:"retry"`
	Archive         *ArchiveConfig `yaml:"archive,omitempty"`
}

const (
	MaxJobs          = 100
	MaxConcurrency   = 10
	MaxRetryCount    = 5
	DefaultModel     = "sora-2"
	DefaultDuration  = 4
	DefaultTimeoutMS = 30 * 60 * 1000
	DefaultPollMS    = 5000
	DefaultPollMax   = 360
	DefaultRetryMS   = 5000
)

// AllowedDurations are the clip lengths the remote API accepts.
var AllowedDurations = []int{4, 8, 12}

// DefaultRetryPatterns cover the transient failure shapes the remote API is
// known to surface as plain text.
var DefaultRetryPatterns = []string{"429", "rate limit", "timeout", "502", "503", "temporarily"}

// ConfigError is a structural or range violation in a batch configuration.
// It is batch-fatal and detected before any job starts.
type ConfigError struct {
	Field   string
	Value   string
	Message string
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("config error: %s=%s: %s", e.Field, e.Value, e.Message)
}

// LoadBatchFile reads a YAML batch file from path.
func LoadBatchFile(path string) (BatchConfig, error) {
	var cfg BatchConfig
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open batch file: %w", err)
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return cfg, fmt.Errorf("read batch file: %w", err)
	}
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return cfg, fmt.Errorf("parse batch file: %w", err)
	}
	return cfg, nil
}

// Normalize fills zero-valued tunables with environment-derived or built-in
// defaults. It must run before Validate.
func (c *BatchConfig) Normalize(env EnvDefaults) {
	if c.Defaults.Model == "" {
		c.Defaults.Model = env.Model
	}
	if c.Defaults.Model == "" {
		c.Defaults.Model = DefaultModel
	}
	if c.Defaults.DurationSeconds == 0 {
		c.Defaults.DurationSeconds = DefaultDuration
	}
	if c.OutputDir == "" {
		c.OutputDir = env.OutputDir
	}
	if c.OutputDir == "" {
		c.OutputDir = "."
	}
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = 3
	}
	if c.TimeoutMS == 0 {
		c.TimeoutMS = DefaultTimeoutMS
	}
	if c.PollIntervalMS == 0 {
		c.PollIntervalMS = env.PollIntervalMS
	}
	if c.PollIntervalMS == 0 {
		c.PollIntervalMS = DefaultPollMS
	}
	if c.MaxPollAttempts == 0 {
		c.MaxPollAttempts = env.MaxPollAttempts
	}
	if c.MaxPollAttempts == 0 {
		c.MaxPollAttempts = DefaultPollMax
	}
	if c.Retry.RetryDelayMS == 0 {
		c.Retry.RetryDelayMS = DefaultRetryMS
	}
	if c.Retry.RetryPatterns == nil {
		c.Retry.RetryPatterns = DefaultRetryPatterns
	}
}

// Validate checks every numeric bound and per-job constraint. A failure here
// means zero jobs were started.
func (c BatchConfig) Validate() error {
	if len(c.Jobs) == 0 {
		return ConfigError{Field: "jobs", Value: "0", Message: "at least one job is required"}
	}
	if len(c.Jobs) > MaxJobs {
		return ConfigError{Field: "jobs", Value: fmt.Sprintf("%d", len(c.Jobs)), Message: fmt.Sprintf("at most %d jobs per batch", MaxJobs)}
	}
	if c.MaxConcurrent < 1 || c.MaxConcurrent > MaxConcurrency {
		return ConfigError{Field: "max_concurrent", Value: fmt.Sprintf("%d", c.MaxConcurrent), Message: fmt.Sprintf("must be between 1 and %d", MaxConcurrency)}
	}
	if c.TimeoutMS <= 0 {
		return ConfigError{Field: "timeout_ms", Value: fmt.Sprintf("%d", c.TimeoutMS), Message: "must be positive"}
	}
	if c.PollIntervalMS <= 0 {
		return ConfigError{Field: "poll_interval_ms", Value: fmt.Sprintf("%d", c.PollIntervalMS), Message: "must be positive"}
	}
	if c.MaxPollAttempts <= 0 {
		return ConfigError{Field: "max_poll_attempts", Value: fmt.Sprintf("%d", c.MaxPollAttempts), Message: "must be positive"}
	}
	if c.Retry.MaxRetries < 0 || c.Retry.MaxRetries > MaxRetryCount {
		return ConfigError{Field: "retry.max_retries", Value: fmt.Sprintf("%d", c.Retry.MaxRetries), Message: fmt.Sprintf("must be between 0 and %d", MaxRetryCount)}
	}
	if c.Retry.RetryDelayMS < 0 {
		return ConfigError{Field: "retry.retry_delay_ms", Value: fmt.Sprintf("%d", c.Retry.RetryDelayMS), Message: "must not be negative"}
	}
	for i, job := range c.Jobs {
		if err := validateJob(job, i+1, c.Defaults); err != nil {
			return err
		}
	}
	if c.Archive != nil {
		if err := validateArchive(*c.Archive); err != nil {
			return err
		}
	}
	return nil
}

func validateJob(job JobSpec, index int, def Defaults) error {
	field := func(name string) string { return fmt.Sprintf("jobs[%d].%s", index, name) }
	if job.Prompt == "" {
		return ConfigError{Field: field("prompt"), Value: "", Message: "prompt is required"}
	}
	if job.ImageURL != "" && job.ImagePath != "" {
		return ConfigError{Field: field("image_url"), Value: job.ImageURL, Message: "image_url and image_path are mutually exclusive"}
	}
	if job.VideoURL != "" && (job.ImageURL != "" || job.ImagePath != "") {
		return ConfigError{Field: field("video_url"), Value: job.VideoURL, Message: "an edit job must not also carry an image reference"}
	}
	seconds := job.DurationSeconds
	if seconds == 0 {
		seconds = def.DurationSeconds
	}
	if !allowedDuration(seconds) {
		return ConfigError{Field: field("duration_seconds"), Value: fmt.Sprintf("%d", seconds), Message: fmt.Sprintf("must be one of %v", AllowedDurations)}
	}
	return nil
}

func validateArchive(a ArchiveConfig) error {
	switch a.Type {
	case "s3":
		if a.Endpoint == "" || a.Bucket == "" {
			return ConfigError{Field: "archive", Value: a.Type, Message: "s3 archive requires endpoint and bucket"}
		}
	case "sftp":
		if a.Host == "" || a.User == "" || a.KeyPath == "" {
			return ConfigError{Field: "archive", Value: a.Type, Message: "sftp archive requires host, user and key_path"}
		}
	default:
		return ConfigError{Field: "archive.type", Value: a.Type, Message: "must be s3 or sftp"}
	}
	return nil
}

func allowedDuration(seconds int) bool {
	for _, d := range AllowedDurations {
		if seconds == d {
			return true
		}
	}
	return false
}

// ModelFor returns the effective model for a job after defaults.
func (c BatchConfig) ModelFor(job JobSpec) string {
	if job.Model != "" {
		return job.Model
	}
	return c.Defaults.Model
}

// SecondsFor returns the effective clip duration for a job after defaults.
func (c BatchConfig) SecondsFor(job JobSpec) int {
	if job.DurationSeconds != 0 {
		return job.DurationSeconds
	}
	return c.Defaults.DurationSeconds
}
