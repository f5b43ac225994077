package core

import (
	"fmt"
	"testing"
)

func BenchmarkClassify(b *testing.B) {
	job := JobSpec{Prompt: "a cat", ImageURL: "https://example.com/cat.png"}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Classify(job)
	}
}

func BenchmarkEstimate(b *testing.B) {
	cfg := BatchConfig{Defaults: Defaults{Model: "sora-2", DurationSeconds: 4}}
	for i := 0; i < 50; i++ {
		job := JobSpec{Prompt: fmt.Sprintf("prompt %d", i)}
		switch i % 3 {
		case 1:
			job.ImageURL = "https://example.com/i.png"
		case 2:
			job.VideoURL = "https://example.com/v.mp4"
		}
		cfg.Jobs = append(cfg.Jobs, job)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Estimate(cfg)
	}
}

func BenchmarkShouldRetry(b *testing.B) {
	policy := RetryPolicy{MaxRetries: 3, RetryPatterns: DefaultRetryPatterns}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ShouldRetry(1, "api error (429): too many requests", policy)
	}
}
