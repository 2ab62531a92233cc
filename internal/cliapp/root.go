// Package cliapp builds the solve command's cobra/viper surface: the
// flag table spec.md 6 defines, bound through viper so flags, the
// SOLVE_ environment prefix, and an optional ".solve.yaml" project file
// all resolve into one internal/config.Config. Grounded on the prior
// internal/cli/root.go (cobra.OnInitialize + viper.SetEnvPrefix +
// AutomaticEnv + a dotfile config search) and internal/cli/run_local.go's
// flag-to-config application idiom (cmd.Flags().Changed(...) gating an
// override), narrowed from the prior VM-provisioning run command to
// a single positional-URL invocation with no cloud/auth/routing flags.
package cliapp

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/andymwolf/solveengine/internal/version"
)

var cfgFile string

// NewRootCommand builds the "solve" command. run is invoked with the
// resolved target URL once flags are parsed and bound; it is injected by
// the caller (cmd/solve/main.go) rather than imported directly, so this
// package never depends on internal/engine.
func NewRootCommand(run func(cmd *cobra.Command, targetURL string) error) *cobra.Command {
	root := &cobra.Command{
		Use:   "solve <url>",
		Short: "Resolve a GitHub or SourceCraft issue or pull request with an autonomous coding agent",
		Long: `solve points an autonomous coding agent at a single issue or pull request,
drives it through a draft PR, optional watch-mode restarts on new feedback,
and a closing summary comment.

Example:
  solve https://github.com/org/repo/issues/42`,
		Version:      version.Short(),
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0])
		},
	}
	root.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	cobra.OnInitialize(func() { initConfig(root) })
	bindFlags(root)

	return root
}

// Execute builds the default root command wired to run and executes it.
func Execute(run func(cmd *cobra.Command, targetURL string) error) error {
	return NewRootCommand(run).Execute()
}

func bindFlags(root *cobra.Command) {
	flags := root.Flags()

	flags.String("model", "", "model id passed to the agent subprocess")
	flags.Bool("fork", false, "switch workspace to the fork-and-PR workflow")
	flags.String("base-branch", "", "override the detected default branch")
	flags.Bool("auto-pull-request-creation", true, "create a draft PR immediately after the issue branch is checked out")
	flags.Bool("auto-continue", false, "continue an existing PR authored by this identity instead of starting a new branch")
	flags.Bool("auto-continue-limit", false, "schedule a resume at the rate-limit reset time instead of exiting")
	flags.Bool("attach-logs", false, "attach the sanitised session log to the closing summary comment")
	flags.Bool("watch", false, "keep polling for feedback after the session ends and restart the agent when it arrives")
	flags.Duration("watch-interval", 0, "sleep between watch-mode polls (default 60s)")
	flags.Int("auto-restart-max-iterations", 0, "cap restarts in the temporary watch entered after uncommitted changes (default 3)")
	flags.String("resume", "", "force resume from the given agent session id")
	flags.Bool("resume-on-auto-restart", false, "use session resume across temporary-watch restarts")
	flags.Bool("pull-request-issue-link-auto-correction", false, "arm the periodic PR-body closing-reference corrector")
	flags.Bool("dry-run", false, "build the prompt and exit without spawning the agent")
	flags.Bool("verbose", false, "enable verbose logging")
	flags.String("log-dir", "", "directory for the canonical session log file")

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .solve.yaml in the current directory)")

	for _, name := range []string{
		"model", "fork", "base-branch", "auto-pull-request-creation",
		"auto-continue", "auto-continue-limit", "attach-logs", "watch",
		"watch-interval", "auto-restart-max-iterations", "resume",
		"resume-on-auto-restart", "pull-request-issue-link-auto-correction",
		"dry-run", "verbose", "log-dir",
	} {
		_ = viper.BindPFlag(mapstructureKey(name), flags.Lookup(name))
	}
}

// mapstructureKey converts a kebab-case flag name to the snake_case key
// internal/config.Config's mapstructure tags expect.
func mapstructureKey(flagName string) string {
	out := make([]byte, 0, len(flagName))
	for i := 0; i < len(flagName); i++ {
		if flagName[i] == '-' {
			out = append(out, '_')
		} else {
			out = append(out, flagName[i])
		}
	}
	return string(out)
}

func initConfig(root *cobra.Command) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintln(os.Stderr, "solve: error getting working directory:", err)
			return
		}
		viper.AddConfigPath(cwd)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".solve")
	}

	viper.SetEnvPrefix("SOLVE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "solve: using config file:", viper.ConfigFileUsed())
		}
	}
}
