// Package main implements the mirrorrank command-line tool for selecting
// the freshest mirrors of Arch-derived distribution repositories.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cheggaaa/pb/v3"
	"github.com/cockroachdb/errors"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/mirrorrank/mirrorrank/internal/mirror"
)

const (
	defaultConfigPath = "/etc/mirrorrank/mirrorrank.toml"
)

var (
	// Build information - can be set via build flags
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"

	// Command-line flags
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "mirrorrank",
	Short: "Select the freshest mirrors for a distribution",
	Long: `mirrorrank probes the mirrors of an Arch-derived distribution and keeps
only the ones serving the latest content version.

Find more information at: https://github.com/mirrorrank/mirrorrank`,
}

var rankCmd = &cobra.Command{
	Use:   "rank [target]",
	Short: "Probe mirrors and select the freshest ones",
	Long: `Fetches the target's mirror list, probes every eligible mirror's state
endpoint under bounded concurrency, and prints (or saves) the mirrors
reporting the maximum observed update number.

Usage:
  # Rank the default target and print the result
  mirrorrank rank

  # Rank a specific target from the configuration file
  mirrorrank rank endeavouros

  # Save the result as a pacman mirrorlist
  mirrorrank rank --save /etc/pacman.d/endeavouros-mirrorlist

  # Use a custom configuration file
  mirrorrank rank --config /path/to/mirrorrank.toml

  # Override the log level
  mirrorrank rank --log-level debug

  # Show detailed error information
  mirrorrank rank --verbose-errors

If no target is specified and the configuration defines exactly one
target, that target is used.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runRank,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information including build details",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("mirrorrank %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", buildDate)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long:  `Validate the configuration file and report any issues.`,
	Run:   runValidate,
}

func init() {
	rootCmd.AddCommand(rankCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(validateCmd)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "configuration file path")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("verbose-errors", false, "show detailed error information including stack traces")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "suppress all output except for errors")

	rankCmd.Flags().String("save", "", "write the selected mirrors to this mirrorlist file")
	rankCmd.Flags().Bool("no-progress", false, "disable the probe progress bar")
}

// formatError returns a human-friendly error message, optionally with stack trace
func formatError(err error, verbose bool) string {
	if verbose {
		return fmt.Sprintf("%+v", err) // Full details with stack trace
	}

	// For human-friendly output, try to extract the root message
	flattened := errors.FlattenDetails(err)
	if flattened != "" {
		return flattened
	}

	// Fallback to simple error message
	return err.Error()
}

// analyzeUndecoded examines undecoded TOML keys and provides helpful suggestions
func analyzeUndecoded(undecoded []toml.Key) (suggestions []string, unknown []string) {
	// Group keys by their root section for target typos
	targetGroups := make(map[string]int)

	for _, key := range undecoded {
		keyStr := key.String()

		// Check for common "target" vs "targets" typo
		if strings.HasPrefix(keyStr, "target.") && !strings.HasPrefix(keyStr, "targets.") {
			parts := strings.Split(keyStr, ".")
			if len(parts) >= 2 {
				rootSection := parts[0] + "." + parts[1] // "target.endeavouros"
				targetGroups[rootSection]++
			}
		} else {
			// Keep track of keys we couldn't provide suggestions for
			unknown = append(unknown, keyStr)
		}
	}

	for rootSection, count := range targetGroups {
		correctedSection := strings.Replace(rootSection, "target.", "targets.", 1)
		if count == 1 {
			suggestions = append(suggestions, fmt.Sprintf("Section '%s' should be '%s'", rootSection, correctedSection))
		} else {
			suggestions = append(suggestions, fmt.Sprintf("Section '%s' should be '%s' (affects %d subsections)", rootSection, correctedSection, count))
		}
	}

	return suggestions, unknown
}

// formatUndecodedError builds a user-friendly error message for undecoded TOML keys
func formatUndecodedError(undecoded []toml.Key) string {
	suggestions, unknown := analyzeUndecoded(undecoded)

	var errorMsg strings.Builder
	if len(suggestions) > 0 {
		errorMsg.WriteString("configuration contains sections that don't match expected structure:\n")
		for _, suggestion := range suggestions {
			errorMsg.WriteString("  • " + suggestion + "\n")
		}
		errorMsg.WriteString("\nNote: Configuration section names are case-sensitive and must match exactly.")
	}

	if len(unknown) > 0 {
		if errorMsg.Len() > 0 {
			errorMsg.WriteString("\n\nAdditionally, found unknown sections: ")
		} else {
			errorMsg.WriteString("configuration contains unknown sections: ")
		}
		errorMsg.WriteString(fmt.Sprintf("%v", unknown))
		errorMsg.WriteString("\nThese sections don't match any expected configuration structure.")
	}

	return errorMsg.String()
}

// loadConfig decodes and validates the configuration file, applying
// log settings and command-line overrides.
func loadConfig(cmd *cobra.Command) *mirror.Config {
	verboseErrors, _ := cmd.Flags().GetBool("verbose-errors")

	config := mirror.NewConfig()
	meta, err := toml.DecodeFile(configPath, config)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Error("configuration file not found", "path", configPath)
			slog.Info("Please create a configuration file at the default location or specify one with the --config flag.")
			os.Exit(1)
		}
		errorMsg := formatError(err, verboseErrors)
		slog.Error("failed to decode config file", "error", errorMsg, "path", configPath)
		if !verboseErrors {
			slog.Info("run with --verbose-errors for detailed stack traces")
		}
		os.Exit(1)
	}

	// Check for undecoded keys which might indicate parsing stopped early
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		errorMsg := formatUndecodedError(undecoded)
		slog.Error("configuration validation failed", "error", errorMsg, "path", configPath)
		os.Exit(1)
	}

	if err := config.Check(); err != nil {
		slog.Error("invalid configuration", "error", formatError(err, verboseErrors), "path", configPath)
		os.Exit(1)
	}

	// Apply log configuration immediately after config loading
	if err := config.Log.Apply(); err != nil {
		slog.Error("failed to apply log config", "error", err)
		os.Exit(1)
	}

	// Override log level if specified on command line
	if logLevel != "" {
		config.Log.Level = logLevel
		if err := config.Log.Apply(); err != nil {
			slog.Error("failed to apply command-line log level", "level", logLevel, "error", err)
			os.Exit(1)
		}
	}

	quiet, _ := cmd.Flags().GetBool("quiet")
	if quiet {
		config.Log.Level = "error"
		if err := config.Log.Apply(); err != nil {
			slog.Error("failed to apply quiet log level", "error", err)
			os.Exit(1)
		}
	}

	return config
}

// resolveTarget picks the target to rank: the positional argument, or
// the sole configured target.
func resolveTarget(config *mirror.Config, args []string) (string, error) {
	if len(args) == 1 {
		if _, ok := config.Targets[args[0]]; !ok {
			return "", errors.New("no such target: " + args[0])
		}
		return args[0], nil
	}
	if len(config.Targets) == 1 {
		for name := range config.Targets {
			return name, nil
		}
	}
	return "", errors.New("multiple targets configured; specify one")
}

func runRank(cmd *cobra.Command, args []string) {
	verboseErrors, _ := cmd.Flags().GetBool("verbose-errors")
	quiet, _ := cmd.Flags().GetBool("quiet")
	noProgress, _ := cmd.Flags().GetBool("no-progress")
	savePath, _ := cmd.Flags().GetString("save")

	config := loadConfig(cmd)
	targetName, err := resolveTarget(config, args)
	if err != nil {
		slog.Error("cannot resolve target", "error", formatError(err, verboseErrors))
		os.Exit(1)
	}
	tc := config.Targets[targetName]

	// On a terminal, render a progress bar; otherwise stream the
	// events as comment lines so logs capture them.
	interactive := !quiet && !noProgress && isatty.IsTerminal(os.Stdout.Fd())

	var bar *pb.ProgressBar
	opts := mirror.RunOptions{SavePath: savePath}
	switch {
	case interactive:
		opts.OnProbeStart = func(total int) {
			bar = pb.StartNew(total)
		}
		opts.OnEvent = func(msg string) {
			if bar != nil {
				bar.Increment()
			}
		}
	case !quiet:
		opts.OnEvent = func(msg string) {
			fmt.Println(tc.FormatComment(msg))
		}
	}

	selected, err := mirror.Run(context.Background(), config, targetName, opts)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		slog.Error("ranking failed", "target", targetName, "error", formatError(err, verboseErrors))
		if !verboseErrors {
			slog.Info("run with --verbose-errors for detailed stack traces")
		}
		os.Exit(1)
	}

	// Without a save path the mirrorlist goes to stdout.
	if savePath == "" && tc.SavePath == "" && !quiet {
		for _, m := range selected {
			fmt.Println(tc.FormatMirrorLine(m))
		}
	}

	if len(selected) == 0 {
		slog.Warn("no mirrors selected", "target", targetName)
		os.Exit(1)
	}
}

func runValidate(cmd *cobra.Command, _ []string) {
	config := loadConfig(cmd)

	names := make([]string, 0, len(config.Targets))
	for name := range config.Targets {
		names = append(names, name)
	}
	fmt.Printf("configuration OK: %d target(s): %s\n", len(config.Targets), strings.Join(names, ", "))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
