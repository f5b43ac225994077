package core

import (
	"github.com/vidbatch/vidbatch/pkg/api"
)

// Cost model constants. Edit jobs use an assumed fixed duration because the
// post-edit length is unknown before execution; the estimate documents an
// approximation, not a bound.
const (
	editAssumedSeconds = 5
	imageJobBonusUSD   = 0.10
	estimateMargin     = 0.20
)

// modelRates are the published per-second rates for known models.
var modelRates = map[string]float64{
	"sora-2":     0.10,
	"sora-2-pro": 0.30,
}

const fallbackRatePerSecond = 0.10

// kindRateFactor scales the model rate per job kind.
var kindRateFactor = map[JobKind]float64{
	KindGeneration:   1.0,
	KindImageToVideo: 1.0,
	KindEdit:         1.25,
}

func ratePerSecond(model string, kind JobKind) float64 {
	base, ok := modelRates[model]
	if !ok {
		base = fallbackRatePerSecond
	}
	return base * kindRateFactor[kind]
}

// Estimate computes a pre-execution cost range for a batch. It is pure:
// identical input yields identical output, and no network calls are made.
// It shares Classify with the scheduler so the two never disagree on job
// kinds.
func Estimate(cfg BatchConfig) api.CostEstimate {
	type bucket struct {
		jobs    int
		seconds float64
		cost    float64
	}
	buckets := map[JobKind]*bucket{}

	for _, job := range cfg.Jobs {
		kind := Classify(job)
		seconds := float64(cfg.SecondsFor(job))
		if kind == KindEdit {
			seconds = editAssumedSeconds
		}
		b, ok := buckets[kind]
		if !ok {
			b = &bucket{}
			buckets[kind] = b
		}
		b.jobs++
		b.seconds += seconds
		b.cost += ratePerSecond(cfg.ModelFor(job), kind) * seconds
		if kind == KindImageToVideo {
			b.cost += imageJobBonusUSD
		}
	}

	est := api.CostEstimate{}
	for _, kind := range []JobKind{KindGeneration, KindImageToVideo, KindEdit} {
		b, ok := buckets[kind]
		if !ok {
			continue
		}
		est.ByKind = append(est.ByKind, api.KindEstimate{
			Kind:    kind.String(),
			Jobs:    b.jobs,
			Seconds: b.seconds,
			CostUSD: b.cost,
		})
		est.TotalJobs += b.jobs
		est.TotalSeconds += b.seconds
		est.MinUSD += b.cost
	}
	est.MaxUSD = est.MinUSD * (1 + estimateMargin)
	return est
}
