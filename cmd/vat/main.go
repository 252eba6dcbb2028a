// main.go bootstraps vat: it builds the root Cobra command, binds configuration and executes with a signal-aware context.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/example/vat/internal/archive"
	"github.com/example/vat/internal/catalog"
	"github.com/example/vat/internal/config"
	"github.com/example/vat/internal/environ"
	"github.com/example/vat/internal/manifest"
	"github.com/example/vat/internal/publish"
	"github.com/example/vat/internal/reference"
	"github.com/example/vat/internal/registrylock"
	"github.com/example/vat/internal/stacks"
	"github.com/example/vat/internal/vcs"
	"github.com/example/vat/internal/workspace"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	exitOK          = 0
	exitGeneric     = 1
	exitUsage       = 2
	exitNotFound    = 3
	exitConflict    = 4
	exitLocked      = 5
	exitEnvironment = 6
	exitArchive     = 7
)

// errExitCode carries a child process exit status back to main.
type errExitCode struct{ code int }

func (e errExitCode) Error() string { return fmt.Sprintf("command exited with status %d", e.code) }

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := newRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	handleError(os.Stderr, err)
	cancel()
	os.Exit(exitCode(err))
}

func newRootCommand() *cobra.Command {
	opts := config.NewOptions()
	cmd := &cobra.Command{
		Use:           "vat",
		Short:         "Versioned package and environment manager for pipeline tools",
		Long:          "vat publishes immutable package versions into a repository, composes the environment they declare and launches tools inside it.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.NoColor || os.Getenv("NO_COLOR") != "" {
				color.NoColor = true
			}
			return opts.Validate()
		},
	}
	opts.BindFlags(cmd.PersistentFlags())
	cmd.Example = `  # Start a package in the current directory and publish its first version
  vat init && vat bump --patch --yes && vat publish --comment "first cut"

  # Show the environment maya-tools 1.2.0 plus the arnold render blocks would produce
  vat env maya-tools/1.2.0 --append 'arnold[render]'

  # Launch maya from the latest published maya-tools
  vat run maya-tools maya -- -batch`

	cmd.AddCommand(
		newInitCommand(opts),
		newShowCommand(opts),
		newBumpCommand(opts),
		newPublishCommand(opts),
		newLinkCommand(opts),
		newUnlinkCommand(opts),
		newListCommand(opts),
		newStatusCommand(opts),
		newCloneCommand(opts),
		newUpdateCommand(opts),
		newResolveCommand(opts),
		newEnvCommand(opts),
		newCommandsCommand(opts),
		newRunCommand(opts),
		newStackCommand(opts),
		newHistoryCommand(opts),
		newVarsCommand(),
		newVersionCommand(),
	)
	bindViper(cmd)
	return cmd
}

func bindViper(root *cobra.Command) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.SetEnvPrefix("VAT")
	v.AutomaticEnv()
	configFile := os.Getenv("VAT_CONFIG")
	configureConfigFile(v, configFile)

	prev := root.PersistentPreRunE
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := readConfigFile(v, configFile != ""); err != nil {
			return err
		}
		for _, fs := range []*pflag.FlagSet{cmd.Flags(), cmd.InheritedFlags(), root.PersistentFlags()} {
			if err := applyViper(v, fs); err != nil {
				return err
			}
		}
		if prev != nil {
			return prev(cmd, args)
		}
		return nil
	}
}

// applyViper fills flags the user did not set from env and the config file.
func applyViper(v *viper.Viper, fs *pflag.FlagSet) error {
	if err := v.BindPFlags(fs); err != nil {
		return err
	}
	var firstErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed || !v.IsSet(f.Name) {
			return
		}
		var val string
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			items := v.GetStringSlice(f.Name)
			if err := sv.Replace(items); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", f.Name, err)
			}
			return
		}
		val = v.GetString(f.Name)
		if val == "" {
			return
		}
		if err := f.Value.Set(val); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", f.Name, err)
		}
	})
	return firstErr
}

func configureConfigFile(v *viper.Viper, explicitPath string) {
	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
		return
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, dir := range config.SearchDirs() {
		v.AddConfigPath(dir)
	}
}

func readConfigFile(v *viper.Viper, strict bool) error {
	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if errors.As(err, &cfgErr) && !strict {
			return nil
		}
		return err
	}
	return nil
}

func handleError(w io.Writer, err error) {
	if err == nil || errors.Is(err, pflag.ErrHelp) {
		return
	}
	var exit errExitCode
	if errors.As(err, &exit) {
		return
	}
	message := err.Error()
	switch {
	case errors.Is(err, registrylock.ErrRegistryLocked):
		message = fmt.Sprintf("%s\nHint: another vat process is publishing; retry when it finishes.", err)
	case errors.Is(err, catalog.ErrWorkspaceMismatch):
		message = fmt.Sprintf("%s\nHint: run 'vat list' to see which workspace owns the name, or rename the package.", err)
	case errors.Is(err, catalog.ErrVersionConflict):
		message = fmt.Sprintf("%s\nHint: published versions are immutable; run 'vat bump' to start a new version.", err)
	case errors.Is(err, vcs.ErrTagNotFound):
		message = fmt.Sprintf("%s\nHint: 'vat bump' commits and tags the new version for you.", err)
	case errors.Is(err, workspace.ErrDirtyWorktree):
		message = fmt.Sprintf("%s\nHint: commit or stash your changes first, or pass --allow-dirty to include them.", err)
	case errors.Is(err, catalog.ErrCorrupt):
		message = fmt.Sprintf("%s\nHint: the catalog could not be parsed; restore vat.repository.toml from backup.", err)
	}
	fmt.Fprintf(w, "%s %s\n", color.New(color.FgRed, color.Bold).Sprint("Error:"), message)
}

func exitCode(err error) int {
	if err == nil || errors.Is(err, pflag.ErrHelp) {
		return exitOK
	}
	var exit errExitCode
	switch {
	case errors.As(err, &exit):
		return exit.code
	case errors.Is(err, reference.ErrParse), errors.Is(err, manifest.ErrInvalid), errors.Is(err, catalog.ErrInvalidVersion):
		return exitUsage
	case errors.Is(err, catalog.ErrPackageNotFound), errors.Is(err, manifest.ErrNotFound),
		errors.Is(err, stacks.ErrNotFound), errors.Is(err, errCommandNotFound):
		return exitNotFound
	case errors.Is(err, catalog.ErrVersionConflict), errors.Is(err, catalog.ErrWorkspaceMismatch),
		errors.Is(err, catalog.ErrVersionsPublished), errors.Is(err, workspace.ErrAlreadyInitialized),
		errors.Is(err, workspace.ErrNotEmpty), errors.Is(err, workspace.ErrDirtyWorktree),
		errors.Is(err, stacks.ErrExists):
		return exitConflict
	case errors.Is(err, registrylock.ErrRegistryLocked):
		return exitLocked
	case errors.Is(err, environ.ErrInvalidEnvironmentPath), errors.Is(err, environ.ErrUnknownEnvironment):
		return exitEnvironment
	case errors.Is(err, archive.ErrArchiveFailure), errors.Is(err, publish.ErrSnapshotMismatch),
		errors.Is(err, vcs.ErrTagNotFound):
		return exitArchive
	default:
		return exitGeneric
	}
}
