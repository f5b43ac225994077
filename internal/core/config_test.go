package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func validConfig() BatchConfig {
	cfg := BatchConfig{
		Jobs: []JobSpec{{Prompt: "a quiet harbor at dawn"}},
	}
	cfg.Normalize(EnvDefaults{})
	return cfg
}

func TestValidateAcceptsNormalizedConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*BatchConfig)
	}{
		{"no jobs", func(c *BatchConfig) { c.Jobs = nil }},
		{"too many jobs", func(c *BatchConfig) {
			c.Jobs = make([]JobSpec, MaxJobs+1)
			for i := range c.Jobs {
				c.Jobs[i] = JobSpec{Prompt: fmt.Sprintf("p%d", i)}
			}
		}},
		{"zero concurrency", func(c *BatchConfig) { c.MaxConcurrent = 0 }},
		{"excess concurrency", func(c *BatchConfig) { c.MaxConcurrent = MaxConcurrency + 1 }},
		{"negative timeout", func(c *BatchConfig) { c.TimeoutMS = -1 }},
		{"zero poll interval", func(c *BatchConfig) { c.PollIntervalMS = 0 }},
		{"zero poll ceiling", func(c *BatchConfig) { c.MaxPollAttempts = 0 }},
		{"excess retries", func(c *BatchConfig) { c.Retry.MaxRetries = MaxRetryCount + 1 }},
		{"empty prompt", func(c *BatchConfig) { c.Jobs[0].Prompt = "" }},
		{"both image refs", func(c *BatchConfig) {
			c.Jobs[0].ImageURL = "https://example.com/i.png"
			c.Jobs[0].ImagePath = "/tmp/i.png"
		}},
		{"video plus image", func(c *BatchConfig) {
			c.Jobs[0].VideoURL = "https://example.com/v.mp4"
			c.Jobs[0].ImageURL = "https://example.com/i.png"
		}},
		{"bad duration", func(c *BatchConfig) { c.Jobs[0].DurationSeconds = 7 }},
		{"bad archive type", func(c *BatchConfig) { c.Archive = &ArchiveConfig{Type: "ftp"} }},
		{"s3 archive missing bucket", func(c *BatchConfig) { c.Archive = &ArchiveConfig{Type: "s3", Endpoint: "localhost:9000"} }},
		{"sftp archive missing key", func(c *BatchConfig) { c.Archive = &ArchiveConfig{Type: "sftp", Host: "archive", User: "vid"} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			var cfgErr ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
		})
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := BatchConfig{Jobs: []JobSpec{{Prompt: "x"}}}
	cfg.Normalize(EnvDefaults{Model: "sora-2-pro", OutputDir: "/videos", PollIntervalMS: 250})

	if cfg.Defaults.Model != "sora-2-pro" {
		t.Errorf("model default not taken from env: %q", cfg.Defaults.Model)
	}
	if cfg.OutputDir != "/videos" {
		t.Errorf("output dir default not taken from env: %q", cfg.OutputDir)
	}
	if cfg.PollIntervalMS != 250 {
		t.Errorf("poll interval default not taken from env: %d", cfg.PollIntervalMS)
	}
	if cfg.MaxConcurrent != 3 {
		t.Errorf("built-in concurrency default missing: %d", cfg.MaxConcurrent)
	}
	if cfg.TimeoutMS != DefaultTimeoutMS {
		t.Errorf("built-in timeout default missing: %d", cfg.TimeoutMS)
	}
	if len(cfg.Retry.RetryPatterns) == 0 {
		t.Error("default retry patterns missing")
	}
}

func TestNormalizeKeepsExplicitValues(t *testing.T) {
	cfg := BatchConfig{
		Jobs:           []JobSpec{{Prompt: "x"}},
		MaxConcurrent:  5,
		PollIntervalMS: 100,
		Retry:          RetryPolicy{MaxRetries: 1, RetryDelayMS: 50, RetryPatterns: []string{"503"}},
	}
	cfg.Normalize(EnvDefaults{PollIntervalMS: 9999})
	if cfg.MaxConcurrent != 5 || cfg.PollIntervalMS != 100 {
		t.Error("explicit values overwritten by Normalize")
	}
	if len(cfg.Retry.RetryPatterns) != 1 || cfg.Retry.RetryPatterns[0] != "503" {
		t.Error("explicit retry patterns overwritten")
	}
}

func TestLoadBatchFile(t *testing.T) {
	content := `
output_dir: ./renders
max_concurrent: 2
defaults:
  model: sora-2
  duration_seconds: 8
retry:
  max_retries: 1
  retry_delay_ms: 100
  retry_patterns: ["429"]
jobs:
  - prompt: sunrise over mountains
  - prompt: animate this painting
    image_url: https://example.com/painting.png
  - prompt: make it snow
    video_url: https://example.com/city.mp4
`
	path := filepath.Join(t.TempDir(), "batch.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadBatchFile(path)
	if err != nil {
		t.Fatalf("LoadBatchFile failed: %v", err)
	}
	if len(cfg.Jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(cfg.Jobs))
	}
	if cfg.Defaults.DurationSeconds != 8 {
		t.Errorf("default duration not parsed: %d", cfg.Defaults.DurationSeconds)
	}
	if Classify(cfg.Jobs[1]) != KindImageToVideo {
		t.Error("second job should classify as image_to_video")
	}
	if Classify(cfg.Jobs[2]) != KindEdit {
		t.Error("third job should classify as edit")
	}

	cfg.Normalize(EnvDefaults{})
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config invalid: %v", err)
	}
}

func TestLoadBatchFileMissing(t *testing.T) {
	if _, err := LoadBatchFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
