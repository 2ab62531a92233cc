// Package config loads and validates the solve engine's run-time
// configuration: the narrow set of flags spec.md 6's invocation surface
// defines, plus an optional per-project ".solve.yaml" override file.
// Grounded on the prior internal/config.Config's viper.Unmarshal +
// applyDefaults + Validate shape, narrowed from the prior full
// fleet-provisioning schema (Cloud/GitHub-App/Routing/Delegation/
// PhaseLoop/Fallback/Monorepo sections) to the fields a single local
// solve run actually needs.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the fully resolved configuration for one solve invocation.
type Config struct {
	// Model overrides the agent CLI's default model selection.
	Model string `mapstructure:"model" yaml:"model"`

	// Fork switches the workspace to the fork-and-PR workflow (spec.md 4.3).
	Fork bool `mapstructure:"fork" yaml:"fork"`

	// BaseBranch overrides the repository's detected default branch.
	BaseBranch string `mapstructure:"base_branch" yaml:"base_branch"`

	// AutoPullRequestCreation toggles C4. Defaults to true; --no-auto-pull-request-creation clears it.
	AutoPullRequestCreation bool `mapstructure:"auto_pull_request_creation" yaml:"auto_pull_request_creation"`

	// AutoContinue enables RunMode IssueAutoContinue resolution.
	AutoContinue bool `mapstructure:"auto_continue" yaml:"auto_continue"`

	// AutoContinueLimit enables scheduled resume at the rate-limit reset time.
	AutoContinueLimit bool `mapstructure:"auto_continue_limit" yaml:"auto_continue_limit"`

	// AttachLogs enables C9's log-attachment decision tree.
	AttachLogs bool `mapstructure:"attach_logs" yaml:"attach_logs"`

	// Watch enables the permanent C7 polling loop.
	Watch bool `mapstructure:"watch" yaml:"watch"`

	// WatchInterval is the sleep between C7 ticks in ModeOrdinary. Zero
	// means the package default (60s).
	WatchInterval time.Duration `mapstructure:"watch_interval" yaml:"watch_interval"`

	// AutoRestartMaxIterations bounds C7's ModeTemporary restart count.
	// Zero means the package default (3).
	AutoRestartMaxIterations int `mapstructure:"auto_restart_max_iterations" yaml:"auto_restart_max_iterations"`

	// Resume forces resumption from a given agent session id.
	Resume string `mapstructure:"resume" yaml:"resume"`

	// ResumeOnAutoRestart uses session resume across ModeTemporary ticks
	// instead of a fresh prompt each time.
	ResumeOnAutoRestart bool `mapstructure:"resume_on_auto_restart" yaml:"resume_on_auto_restart"`

	// PullRequestIssueLinkAutoCorrection arms C8.
	PullRequestIssueLinkAutoCorrection bool `mapstructure:"pull_request_issue_link_auto_correction" yaml:"pull_request_issue_link_auto_correction"`

	// DryRun builds the prompt and exits without spawning the agent.
	DryRun bool `mapstructure:"dry_run" yaml:"dry_run"`

	// Verbose raises the log level.
	Verbose bool `mapstructure:"verbose" yaml:"verbose"`

	// LogDir is where the canonical <sessionId>.log file is written.
	LogDir string `mapstructure:"log_dir" yaml:"log_dir"`

	// SystemPromptURL overrides the default remote SYSTEM.md fetch location.
	SystemPromptURL string `mapstructure:"system_prompt_url" yaml:"system_prompt_url"`

	// PricingOverrideSecretPath, when set, names a secret the engine fetches
	// at startup to override the agent driver's built-in per-model pricing
	// table (internal/agentdriver.PricingTable.LoadOverride).
	PricingOverrideSecretPath string `mapstructure:"pricing_override_secret_path" yaml:"pricing_override_secret_path"`
}

// Load reads configuration from viper's bound sources (flags, env, an
// optional ".solve.yaml" in the working directory) and applies defaults.
// Callers bind flags and env before calling Load (see internal/cliapp).
func Load() (*Config, error) {
	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

// applyDefaults fills in the fields spec.md 6 gives a default for.
func applyDefaults(cfg *Config) {
	if cfg.LogDir == "" {
		cfg.LogDir = defaultLogDir()
	}
}

// Validate checks invariants that hold regardless of run mode.
func (c *Config) Validate() error {
	if c.WatchInterval < 0 {
		return fmt.Errorf("config: watch_interval must not be negative")
	}
	if c.AutoRestartMaxIterations < 0 {
		return fmt.Errorf("config: auto_restart_max_iterations must not be negative")
	}
	if c.Resume != "" && c.AutoContinue {
		return fmt.Errorf("config: --resume and --auto-continue are mutually exclusive")
	}
	return nil
}

// DebugYAML renders the resolved configuration as YAML for --verbose
// startup logging, using the same yaml.v3 encoding ".solve.yaml" itself
// is decoded with.
func (c *Config) DebugYAML() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("config: marshal debug yaml: %w", err)
	}
	return string(out), nil
}
