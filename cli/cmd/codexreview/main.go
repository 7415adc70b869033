package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"codexreview/cli/internal/agentcmd"
	"codexreview/cli/internal/config"
	"codexreview/cli/internal/erruser"
	"codexreview/cli/internal/git"
	"codexreview/cli/internal/logging"
	"codexreview/cli/internal/state"
	"codexreview/cli/internal/trace"
	"codexreview/cli/internal/version"
)

// errExit is an error that carries an exit code for the CLI. Use errors.As to detect it.
type errExit int

func (e errExit) Error() string {
	return "exit " + strconv.Itoa(int(e))
}

// exitAgentFailed is returned by "review" when the agent ran and failed.
const exitAgentFailed = errExit(2)

func main() {
	os.Exit(Run())
}

// Run is the entry point for the CLI. It is exported for testing.
func Run() int {
	return runCLI(os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

func runCLI(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	if err := rootCmd.Execute(); err != nil {
		var exitErr errExit
		if errors.As(err, &exitErr) {
			return int(exitErr)
		}
		fmt.Fprintln(stderr, err)
		if d := erruser.Details(err); d != "" {
			fmt.Fprintf(stderr, "Details: %s\n", d)
		}
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "codexreview",
		Short:   "Accumulate assistant edits and run a code review agent when they add up",
		Version: version.String(),
	}
	pf := rootCmd.PersistentFlags()
	pf.StringP("dir", "C", "", "Run as if started in this directory")
	pf.String("state-dir", "", "State directory (default <repo>/.codexreview)")
	pf.String("log-level", "", "Log level: debug, info, warn, error (overrides config and env)")
	pf.Int("write-cap", 0, "Max lines credited to one whole-file write (default from config, 200)")
	pf.Duration("timeout", 0, "Review agent timeout, 0 for none (default from config, 10m)")
	pf.Int("history-max-records", 0, "Records in history.jsonl before rotation, 0 to never rotate (default from config, 200)")
	pf.Bool("git-numstat", true, "Use git diff totals for the line metric when inside a work tree")
	pf.String("agent-cmd", "", "Review agent command: JSON argv array or shell words (below "+agentcmd.EnvAgentCmd+")")
	pf.Bool("trace", false, "Print internal steps to stderr (accumulate, numstat, decide, agent I/O)")

	rootCmd.AddCommand(newHookCmd())
	rootCmd.AddCommand(newDecideCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newReviewCmd())
	rootCmd.AddCommand(newResetCmd())
	rootCmd.AddCommand(newHooksCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	return rootCmd
}

// env is the per-invocation context shared by all commands.
type env struct {
	root      string // repository root, or the working directory outside git
	cfg       *config.Config
	stateDir  string
	statePath string
	log       *logging.Logger
	tr        *trace.Tracer
}

func (e *env) close() {
	_ = e.log.Close()
}

// newEnv resolves the working directory, loads config, and opens the logger.
// dir is the directory reported by the hook payload; --dir wins over it and
// both fall back to the process working directory.
func newEnv(cmd *cobra.Command, dir string) (*env, error) {
	if flagDir, _ := cmd.Flags().GetString("dir"); flagDir != "" {
		dir = flagDir
	}
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, erruser.New("Could not determine current directory.", err)
		}
		dir = cwd
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, erruser.New("Could not resolve working directory.", err)
	}
	root := dir
	if git.IsInsideWorkTree(dir) {
		if r, err := git.RepoRoot(dir); err == nil {
			root = r
		}
	}
	cfg, err := config.Load(context.Background(), config.LoadOptions{RepoRoot: root, Overrides: overridesFromFlags(cmd)})
	if err != nil {
		return nil, err
	}
	stateDir := cfg.EffectiveStateDir(root)
	log, err := logging.New(stateDir, cfg.LogLevel)
	if err != nil {
		// Logging failures never fail a hook.
		fmt.Fprintf(cmd.ErrOrStderr(), "codexreview: logging disabled: %v\n", err)
		log = logging.Discard()
	}
	var traceOut io.Writer
	if on, _ := cmd.Flags().GetBool("trace"); on {
		traceOut = cmd.ErrOrStderr()
	}
	e := &env{
		root:      root,
		cfg:       cfg,
		stateDir:  stateDir,
		statePath: state.DefaultPath(stateDir),
		log:       log.With("cmd", cmd.CommandPath(), "pid", os.Getpid()),
		tr:        trace.New(traceOut),
	}
	e.tr.Section("Config")
	e.tr.KV(map[string]any{"root": root, "state_dir": stateDir, "log_level": cfg.LogLevel, "use_git_numstat": cfg.UseGitNumstat})
	return e, nil
}

func overridesFromFlags(cmd *cobra.Command) *config.Overrides {
	var o config.Overrides
	fs := cmd.Flags()
	set := false
	if fs.Changed("state-dir") {
		v, _ := fs.GetString("state-dir")
		o.StateDir = &v
		set = true
	}
	if fs.Changed("log-level") {
		v, _ := fs.GetString("log-level")
		o.LogLevel = &v
		set = true
	}
	if fs.Changed("write-cap") {
		v, _ := fs.GetInt("write-cap")
		o.WriteCap = &v
		set = true
	}
	if fs.Changed("timeout") {
		v, _ := fs.GetDuration("timeout")
		o.Timeout = &v
		set = true
	}
	if fs.Changed("history-max-records") {
		v, _ := fs.GetInt("history-max-records")
		o.HistoryMaxRecords = &v
		set = true
	}
	if fs.Changed("git-numstat") {
		v, _ := fs.GetBool("git-numstat")
		o.UseGitNumstat = &v
		set = true
	}
	if fs.Changed("agent-cmd") {
		v, _ := fs.GetString("agent-cmd")
		o.AgentCmd = &v
		set = true
	}
	if !set {
		return nil
	}
	return &o
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the codexreview version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version.Long())
			return nil
		},
	}
}
