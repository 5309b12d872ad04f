package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"teamrun/checkpoint"
	"teamrun/config"
	"teamrun/gates"
	"teamrun/log"
	"teamrun/mcp"
	"teamrun/orchestrator"
	"teamrun/runtime"
	"teamrun/taskgraph"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"

	passStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	titleStyle = lipgloss.NewStyle().Bold(true).Underline(true)

	gateSignals   gates.Signals
	checkpointDir string
	mcpGoal       string
	mcpRunID      string
	mcpTasksFile  string
	mcpReadOnly   bool
	mcpResumeFrom string

	rootCmd = &cobra.Command{
		Use:   "teamrun",
		Short: "Teamrun - coordination engine for multi-agent team runs",
		Long: "Teamrun tracks a team run's task dependency graph, run phase, event history\n" +
			"and worker heartbeats, and persists checkpoints so a crashed run can resume.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	gatesCmd = &cobra.Command{
		Use:   "gates",
		Short: "Evaluate the regression gates for a run configuration",
		Long: "Evaluates the fixed set of operational signals and exits nonzero unless every\n" +
			"gate passes. Use this as a release gate before trusting a configuration.",
		RunE: func(cmd *cobra.Command, args []string) error {
			report := gates.EvaluateMvpRegressionGates(gateSignals)

			fmt.Println(titleStyle.Render("Regression gates"))
			for _, g := range report.Gates {
				verdict := passStyle.Render("PASS")
				if !g.Passed {
					verdict = failStyle.Render("FAIL")
				}
				fmt.Printf("  %s  %s\n", verdict, labelStyle.Render(g.Name))
			}
			if !report.Passed {
				return fmt.Errorf("regression gates failed")
			}
			fmt.Println(passStyle.Render("All gates passed."))
			return nil
		},
	}

	checkpointsCmd = &cobra.Command{
		Use:   "checkpoints",
		Short: "Inspect run checkpoints",
	}

	checkpointsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List checkpoint files",
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Initialize(false)
			defer log.Close()

			dir := resolveCheckpointDir()
			paths, err := checkpoint.ListFiles(dir)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				fmt.Printf("No checkpoints in %s\n", dir)
				return nil
			}

			fmt.Println(titleStyle.Render("Checkpoints in " + dir))
			for _, path := range paths {
				cp, err := checkpoint.Load(path)
				if err != nil {
					fmt.Printf("  %s  %s\n", failStyle.Render("INVALID"), path)
					continue
				}
				fmt.Printf("  %s  phase=%s pending=%d updated=%s\n",
					cp.CheckpointID,
					labelStyle.Render(string(cp.Phase)),
					len(cp.PendingTasks),
					cp.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	checkpointsShowCmd = &cobra.Command{
		Use:   "show <checkpoint-id>",
		Short: "Show one checkpoint document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Initialize(false)
			defer log.Close()

			path := checkpoint.Path(args[0], resolveCheckpointDir())
			cp, err := checkpoint.Load(path)
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(cp, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal checkpoint: %w", err)
			}
			fmt.Println(string(data))
			return nil
		},
	}

	mcpCmd = &cobra.Command{
		Use:   "mcp",
		Short: "Serve a run to worker agents over MCP stdio",
		Long: "Starts a coordinated run and exposes it to out-of-process worker agents as MCP\n" +
			"tools (claim_tasks, submit_result, complete_task, ...). Tasks are read from a JSON\n" +
			"file; with --resume the run's goal and phase are restored from a checkpoint.",
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Initialize(true)
			defer log.Close()
			mcp.SetLogger(log.InfoLog)

			cfg := config.LoadConfig()

			opts := orchestrator.Options{
				RunID:         mcpRunID,
				Goal:          mcpGoal,
				PolicyProfile: cfg.DefaultPolicyProfile,
			}

			if mcpResumeFrom != "" {
				cp, err := checkpoint.Load(mcpResumeFrom)
				if err != nil {
					return fmt.Errorf("failed to resume from checkpoint: %w", err)
				}
				if runtime.IsTerminal(cp.Phase) {
					return fmt.Errorf("checkpoint %q is in terminal phase %q and cannot be resumed", cp.CheckpointID, cp.Phase)
				}
				opts.RunID = cp.CheckpointID
				opts.Goal = cp.Goal
				opts.PolicyProfile = cp.PolicyProfile
				opts.InitialPhase = cp.Phase
			}

			if opts.Goal == "" {
				return fmt.Errorf("a run goal is required (--goal or --resume)")
			}

			if mcpTasksFile != "" {
				tasks, err := loadTasksFile(mcpTasksFile)
				if err != nil {
					return err
				}
				opts.Tasks = tasks
			}

			run, err := orchestrator.NewRun(opts)
			if err != nil {
				return err
			}

			log.InfoLog.Printf("serving run %s over MCP stdio", run.ID())
			server := mcp.NewTeamrunMCPServer(run, mcpReadOnly)
			return server.Serve()
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("teamrun version %s\n", version)
		},
	}
)

// resolveCheckpointDir prefers the --dir flag, falling back to the
// configured checkpoint directory.
func resolveCheckpointDir() string {
	if checkpointDir != "" {
		return checkpointDir
	}
	return config.LoadConfig().CheckpointDir
}

// loadTasksFile reads an ordered JSON task list for a new run.
func loadTasksFile(path string) ([]taskgraph.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tasks file: %w", err)
	}
	var tasks []taskgraph.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("failed to parse tasks file: %w", err)
	}
	return tasks, nil
}

func init() {
	gatesCmd.Flags().BoolVar(&gateSignals.ReplayEquivalent, "replay-equivalent", false, "event replay reproduces state")
	gatesCmd.Flags().BoolVar(&gateSignals.CapEnforcementActive, "cap-enforcement", false, "claim batch caps are enforced")
	gatesCmd.Flags().BoolVar(&gateSignals.HeartbeatPolicyActive, "heartbeat-policy", false, "stale-heartbeat policy is active")
	gatesCmd.Flags().BoolVar(&gateSignals.TrustGatingActive, "trust-gating", false, "review gating is active")
	gatesCmd.Flags().BoolVar(&gateSignals.MutableGraphEnabled, "mutable-graph", false, "task graph mutation is enabled")
	gatesCmd.Flags().BoolVar(&gateSignals.ReconcileEnabled, "reconcile", false, "reconcile phase is enabled")

	checkpointsCmd.PersistentFlags().StringVar(&checkpointDir, "dir", "", "checkpoint directory (default: configured checkpoint_dir)")
	checkpointsCmd.AddCommand(checkpointsListCmd)
	checkpointsCmd.AddCommand(checkpointsShowCmd)

	mcpCmd.Flags().StringVar(&mcpGoal, "goal", "", "the run's objective")
	mcpCmd.Flags().StringVar(&mcpRunID, "run-id", "", "run identifier (default: generated)")
	mcpCmd.Flags().StringVar(&mcpTasksFile, "tasks-file", "", "JSON file with the initial ordered task list")
	mcpCmd.Flags().BoolVar(&mcpReadOnly, "read-only", false, "register only the inspection tools")
	mcpCmd.Flags().StringVar(&mcpResumeFrom, "resume", "", "checkpoint file to restore goal/phase from")

	rootCmd.AddCommand(gatesCmd)
	rootCmd.AddCommand(checkpointsCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, strings.TrimSpace(err.Error()))
		os.Exit(1)
	}
}
