package core

import (
	"os"

	"github.com/kelseyhightower/envconfig"
)

// EnvDefaults are environment-derived defaults under the VIDBATCH_ prefix.
// They are loaded once by the CLI and passed into the scheduler explicitly
// so the core never reads ambient process state.
type EnvDefaults struct {
	APIKey          string `envconfig:"API_KEY"`
	BaseURL         string `envconfig:"BASE_URL"`
	OrgID           string `envconfig:"ORG_ID"`
	ProjectID       string `envconfig:"PROJECT_ID"`
	OutputDir       string `envconfig:"OUTPUT_DIR"`
	Model           string `envconfig:"MODEL"`
	PollIntervalMS  int    `envconfig:"POLL_INTERVAL_MS"`
	MaxPollAttempts int    `envconfig:"MAX_POLL_ATTEMPTS"`
	HistoryDB       string `envconfig:"HISTORY_DB"`
}

// LoadEnvDefaults reads VIDBATCH_* variables, falling back to the OPENAI_*
// names the upstream API ecosystem uses for the credential and endpoint.
func LoadEnvDefaults() (EnvDefaults, error) {
	var env EnvDefaults
	if err := envconfig.Process("vidbatch", &env); err != nil {
		return env, err
	}
	if env.APIKey == "" {
		env.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if env.BaseURL == "" {
		env.BaseURL = os.Getenv("OPENAI_BASE_URL")
	}
	if env.BaseURL == "" {
		env.BaseURL = "https://api.openai.com"
	}
	return env, nil
}
