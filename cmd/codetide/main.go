package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/BrunoV21/CodeTide/internal/cache"
	"github.com/BrunoV21/CodeTide/internal/config"
	"github.com/BrunoV21/CodeTide/internal/logging"
	"github.com/BrunoV21/CodeTide/internal/orchestrator"
)

var version = "0.1.0-dev"

func main() {
	// .env first so CODETIDE_* variables from it take part in config loading.
	config.LoadDotenv()

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		logging.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root cobra command with all subcommands.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "codetide",
		Short: "CodeTide: a symbolic structural model of a source tree",
		Long: `CodeTide parses a project with tree-sitter, resolves references within
and across files, and answers structural queries: context for a set of
identifiers, the project tree and identifier autocomplete.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringP("root", "r", ".", "Project root")
	pf.String("cache-dir", ".codetide", "Cache directory, relative to the project root")
	pf.StringSlice("languages", nil, "Languages to parse (default: all)")
	pf.String("encoding", "utf-8", "Source text encoding")
	pf.Int("max-concurrency", 8, "Parse worker count")
	pf.Int64("max-file-size", 5*1024*1024, "Skip files larger than this many bytes")
	pf.StringSlice("exclude", nil, "Extra gitignore-style exclude patterns")
	pf.Bool("no-gitignore", false, "Do not honour the project .gitignore")
	pf.Bool("no-cache", false, "Neither read nor write the snapshot")
	pf.Bool("include-cached-ids", false, "Also write the id sidecar")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.String("log-format", "text", "Log format: text or json")

	rootCmd.AddCommand(
		buildIndexCmd(),
		buildUpdateCmd(),
		buildGetCmd(),
		buildTreeCmd(),
		buildSuggestCmd(),
		buildValidateCmd(),
		buildIDsCmd(),
		buildFilesCmd(),
		buildServeCmd(),
		buildWatchCmd(),
		buildCompletionCmd(),
	)
	return rootCmd
}

// loadConfig resolves the configuration for cmd. A positional path, when
// given, overrides --root.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	root, _ := cmd.Flags().GetString("root")
	if len(args) > 0 {
		root = args[0]
	}
	cfg, err := config.Load(root, cmd.Flags())
	if err != nil {
		return nil, err
	}
	logging.Setup(cmd.ErrOrStderr(), logging.ParseLevel(cfg.Log.Level), cfg.Log.Format)
	return cfg, nil
}

// openEngine loads the project named by cmd's flags.
func openEngine(cmd *cobra.Command, args []string) (*orchestrator.Engine, *orchestrator.LoadResult, error) {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return nil, nil, err
	}
	engine, err := orchestrator.NewEngine(cfg)
	if err != nil {
		return nil, nil, err
	}
	res, err := engine.Load(cmd.Context())
	if err != nil {
		return nil, nil, fmt.Errorf("load project: %w", err)
	}
	return engine, res, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func buildIndexCmd() *cobra.Command {
	var force, jsonOutput bool
	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Parse a project and write its snapshot",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if force {
				cfg, err := loadConfig(cmd, args)
				if err != nil {
					return err
				}
				if err := cache.NewStore(cfg.CachePath()).Delete(); err != nil {
					return fmt.Errorf("clear cache: %w", err)
				}
			}
			engine, res, err := openEngine(cmd, args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, map[string]any{"load": res, "stats": engine.Stats()})
			}
			stats := engine.Stats()
			fmt.Fprintf(out, "Indexed %s in %s\n", res.Root, res.Duration.Round(time.Millisecond))
			fmt.Fprintf(out, "   Files:      %d\n", res.TotalFiles)
			fmt.Fprintf(out, "   Elements:   %d\n", res.Elements)
			fmt.Fprintf(out, "   References: %d (%d unresolved)\n", stats.References, stats.Unresolved)
			fmt.Fprintf(out, "   Cycles:     %d\n", stats.Cycles)
			if res.Failures > 0 {
				fmt.Fprintf(out, "   Failures:   %d\n", res.Failures)
			}
			if res.FromSnapshot {
				fmt.Fprintln(out, "   Source:     snapshot (use --force to reparse)")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Discard the snapshot and reparse everything")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func buildUpdateCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "update [path]",
		Short: "Apply file changes since the last snapshot",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, res, err := openEngine(cmd, args)
			if err != nil {
				return err
			}
			upd := res.Update
			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, upd)
			}
			if !upd.Changed() {
				fmt.Fprintln(out, "Up to date.")
				return nil
			}
			fmt.Fprintf(out, "Added %d, modified %d, removed %d files; %d ids changed\n",
				len(upd.Added), len(upd.Modified), len(upd.Removed), len(upd.ChangedIDs))
			for _, id := range upd.ChangedIDs {
				fmt.Fprintln(out, "  "+id)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func buildGetCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "get <identifier>...",
		Short: "Print the code context of identifiers",
		Long:  "Print the requested elements plus every element within --degree hops of them.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, err := openEngine(cmd, nil)
			if err != nil {
				return err
			}
			degree := engine.Config().Retrieval.DefaultDegree
			cs, err := engine.Get(args, degree)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"ids": cs.IDs(), "context": cs.String()})
			}
			fmt.Fprintln(cmd.OutOrStdout(), cs.String())
			return nil
		},
	}
	cmd.Flags().Int("degree", 1, "Number of reference hops to follow")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func buildTreeCmd() *cobra.Command {
	var modules, types bool
	cmd := &cobra.Command{
		Use:   "tree [path]",
		Short: "Print the project tree",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, err := openEngine(cmd, args)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), engine.GetTreeView(modules, types))
			return nil
		},
	}
	cmd.Flags().BoolVar(&modules, "modules", false, "List the elements of each file")
	cmd.Flags().BoolVar(&types, "types", false, "Prefix elements with their kind")
	return cmd
}

func buildSuggestCmd() *cobra.Command {
	var fuzzy bool
	cmd := &cobra.Command{
		Use:   "suggest <prefix>",
		Short: "Autocomplete an identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, err := openEngine(cmd, nil)
			if err != nil {
				return err
			}
			for _, id := range engine.Suggest(args[0], fuzzy) {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&fuzzy, "fuzzy", true, "Include fuzzy and keyword matches")
	cmd.Flags().Int("max-suggestions", 10, "Maximum number of suggestions")
	return cmd
}

func buildValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <identifier>",
		Short: "Check an identifier and list close matches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, err := openEngine(cmd, nil)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), engine.ValidateIdentifier(args[0]))
		},
	}
	return cmd
}

func buildIDsCmd() *cobra.Command {
	var cachedOnly bool
	cmd := &cobra.Command{
		Use:   "ids [path]",
		Short: "List every unique id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ids []string
			if cachedOnly {
				cfg, err := loadConfig(cmd, args)
				if err != nil {
					return err
				}
				if ids, err = orchestrator.CachedIDs(cfg); err != nil {
					return fmt.Errorf("read cached ids: %w", err)
				}
			} else {
				engine, _, err := openEngine(cmd, args)
				if err != nil {
					return err
				}
				ids = engine.IDs()
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(ids, "\n"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&cachedOnly, "cached", false, "Read the id sidecar instead of loading the project")
	return cmd
}

func buildFilesCmd() *cobra.Command {
	var failures bool
	cmd := &cobra.Command{
		Use:   "files [path]",
		Short: "List the parsed files",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, err := openEngine(cmd, args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !failures {
				for _, f := range engine.Files() {
					fmt.Fprintln(out, f)
				}
				return nil
			}
			failed := engine.Failures()
			paths := make([]string, 0, len(failed))
			for p := range failed {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			for _, p := range paths {
				fmt.Fprintf(out, "%s: %s\n", p, failed[p])
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&failures, "failures", false, "List files that failed to parse, with the error")
	return cmd
}

func buildServeCmd() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve [path]",
		Short: "Serve structural queries over HTTP",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, err := openEngine(cmd, args)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if watch {
				if _, err := engine.Watch(ctx, logUpdate); err != nil {
					return err
				}
			}
			return serve(ctx, engine, engine.Config().Server.Addr)
		},
	}
	cmd.Flags().String("addr", "127.0.0.1:8765", "Listen address")
	cmd.Flags().BoolVar(&watch, "watch", false, "Apply file changes while serving")
	cmd.Flags().Duration("debounce", 300*time.Millisecond, "Quiet period before applying changes")
	return cmd
}

func buildWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Keep the snapshot up to date as files change",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, err := openEngine(cmd, args)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			done, err := engine.Watch(ctx, logUpdate)
			if err != nil {
				return err
			}
			<-done
			return nil
		},
	}
	cmd.Flags().Duration("debounce", 300*time.Millisecond, "Quiet period before applying changes")
	return cmd
}

func logUpdate(u *orchestrator.UpdateResult) {
	logging.Info("project updated", "added", len(u.Added), "modified", len(u.Modified),
		"removed", len(u.Removed), "changed_ids", len(u.ChangedIDs))
}

func buildCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for codetide.

To load completions:

Bash:
  $ source <(codetide completion bash)

Zsh:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc  # once
  $ codetide completion zsh > "${fpath[1]}/_codetide"
  $ exec zsh

Fish:
  $ codetide completion fish | source
  $ codetide completion fish > ~/.config/fish/completions/codetide.fish

PowerShell:
  PS> codetide completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
}
