package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/ascii"
	gferrors "github.com/fulmenhq/gofulmen/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/goalsmith/goalsmith/internal/client"
	"github.com/goalsmith/goalsmith/internal/config"
	errwrap "github.com/goalsmith/goalsmith/internal/errors"
	"github.com/goalsmith/goalsmith/internal/goals"
	"github.com/goalsmith/goalsmith/internal/observability"
	"github.com/goalsmith/goalsmith/internal/output"
	"github.com/goalsmith/goalsmith/internal/quota"
)

// goalRepository is the part of the store the plan loop needs.
type goalRepository interface {
	FindGoal(ctx context.Context, ref string) (*goals.Goal, error)
	SaveGoal(ctx context.Context, g *goals.Goal) error
}

// taskGenerator calls the task generation endpoint.
type taskGenerator interface {
	GenerateTasks(ctx context.Context, input string) (*client.Result, error)
	RemainingRequests() int
}

var (
	goalNewName   string
	goalNewPrompt string
	goalPlanMode  string
	goalResetYes  bool
)

var goalCmd = &cobra.Command{
	Use:     "goal",
	Aliases: []string{"goals"},
	Short:   "Manage goals and their tasks",
	Long: `Create goals, generate task lists for them through a goalsmith server, and
track task progress. Goals are kept in the local store.`,
}

var goalNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a goal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		existing, err := db.ListGoals(cmd.Context())
		if err != nil {
			return err
		}

		now := time.Now()
		goal := goals.New(existing, now)
		if strings.TrimSpace(goalNewName) != "" {
			if err := goals.Rename(goal, goalNewName); err != nil {
				return err
			}
		}
		if err := goals.SetPrompt(goal, strings.TrimSpace(goalNewPrompt), now); err != nil {
			return err
		}
		if err := db.SaveGoal(cmd.Context(), goal); err != nil {
			return err
		}

		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Created goal %s (%s)\n", goal.Name, goal.ID)
		return err
	},
}

var goalListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List goals",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		list, err := db.ListGoals(cmd.Context())
		if err != nil {
			return err
		}
		return writeRendered(cmd, func(f output.Formatter) (string, error) {
			return f.FormatGoals(list)
		})
	},
}

var goalShowCmd = &cobra.Command{
	Use:   "show <goal>",
	Short: "Show a goal and its tasks",
	Long:  "Show a goal and its tasks. <goal> is a goal id, a unique id prefix, or a goal name.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		goal, err := db.FindGoal(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return writeRendered(cmd, func(f output.Formatter) (string, error) {
			return f.FormatGoal(goal)
		})
	},
}

var goalPlanCmd = &cobra.Command{
	Use:   "plan <goal>...",
	Short: "Generate tasks for goals",
	Long: `Send each goal's description to the goalsmith server and store the generated
tasks. Goals run one at a time. With --mode new (default) the task list is
replaced; with --mode additional the new tasks are appended.

A local request budget (quota.client) is checked before every request, so an
exhausted budget fails without contacting the server.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := goals.ParseMode(goalPlanMode)
		if err != nil {
			return errwrap.WrapInvalidInput(cmd.Context(), err, "--mode must be new or additional")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		defer enableTracing(cfg.AILink.TraceFile)()

		c := newTaskClient(cfg)
		return planGoals(cmd.Context(), cmd.OutOrStdout(), db, c, args, mode, time.Now)
	},
}

var goalDoneCmd = &cobra.Command{
	Use:   "done <goal> <task-number>",
	Short: "Mark a task done",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setTaskStatus(cmd, args[0], args[1], true)
	},
}

var goalUndoCmd = &cobra.Command{
	Use:   "undo <goal> <task-number>",
	Short: "Mark a task not done",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setTaskStatus(cmd, args[0], args[1], false)
	},
}

var goalRenameCmd = &cobra.Command{
	Use:   "rename <goal> <name>",
	Short: "Rename a goal",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateGoal(cmd, args[0], func(g *goals.Goal) error {
			return goals.Rename(g, strings.Join(args[1:], " "))
		})
	},
}

var goalPromptCmd = &cobra.Command{
	Use:   "prompt <goal> <description>",
	Short: "Set a goal's description",
	Long:  "Set the description sent to the server by goal plan. A description that already produced tasks is kept in the goal's history.",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateGoal(cmd, args[0], func(g *goals.Goal) error {
			return goals.SetPrompt(g, strings.Join(args[1:], " "), time.Now())
		})
	},
}

var goalRemoveCmd = &cobra.Command{
	Use:     "rm <goal>...",
	Aliases: []string{"delete"},
	Short:   "Delete goals",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		for _, ref := range args {
			goal, err := db.FindGoal(cmd.Context(), ref)
			if err != nil {
				return err
			}
			if err := db.DeleteGoal(cmd.Context(), goal.ID); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted goal %s (%s)\n", goal.Name, goal.ID)
		}
		return nil
	},
}

var goalResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every goal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !goalResetYes {
			return errwrap.NewInvalidInputError("reset deletes every goal; pass --yes to confirm")
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		deleted, err := db.DeleteAllGoals(cmd.Context())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d goal(s)\n", deleted)
		return err
	},
}

func newTaskClient(cfg *config.Config) *client.Client {
	return client.New(cfg.Client.ServerURL,
		client.WithTimeout(cfg.Client.Timeout),
		client.WithTracker(quota.NewClientTracker(cfg.Quota.Client)),
	)
}

// planGoals generates tasks for each referenced goal in turn. Failures are
// reported per goal and do not stop the loop; only successful results are
// saved. The returned error summarizes the failures.
func planGoals(ctx context.Context, w io.Writer, repo goalRepository, gen taskGenerator, refs []string, mode goals.Mode, now func() time.Time) error {
	failed := 0
	for _, ref := range refs {
		if err := planGoal(ctx, w, repo, gen, ref, mode, now); err != nil {
			failed++
			_, _ = fmt.Fprintf(w, "✗ %s: %s\n", ref, planErrorMessage(err))
			if observability.CLILogger != nil {
				observability.CLILogger.Debug("Goal planning failed", zap.String("goal", ref), zap.Error(err))
			}
		}
	}

	_, _ = fmt.Fprintf(w, "Requests remaining: %d\n", gen.RemainingRequests())

	if failed > 0 {
		return fmt.Errorf("%d of %d goal(s) failed", failed, len(refs))
	}
	return nil
}

func planGoal(ctx context.Context, w io.Writer, repo goalRepository, gen taskGenerator, ref string, mode goals.Mode, now func() time.Time) error {
	goal, err := repo.FindGoal(ctx, ref)
	if err != nil {
		return err
	}
	if strings.TrimSpace(goal.Prompt) == "" {
		return errwrap.NewInvalidInputError("goal has no description; set one with 'goalsmith goal prompt'")
	}

	result, err := gen.GenerateTasks(ctx, goal.Prompt)
	if err != nil {
		return err
	}

	if err := goals.ApplyTaskList(goal, result.Breakdown, mode, now()); err != nil {
		return err
	}
	if err := repo.SaveGoal(ctx, goal); err != nil {
		return fmt.Errorf("save goal: %w", err)
	}

	done, total := goal.Progress()
	lines := []string{fmt.Sprintf("%s (%d/%d done)", goal.Name, done, total), ""}
	for i, task := range goal.Tasks {
		mark := " "
		if task.Done {
			mark = "x"
		}
		lines = append(lines, fmt.Sprintf("%d. [%s] %s", i+1, mark, task.Description))
	}
	_, err = fmt.Fprint(w, ascii.DrawBox(strings.Join(lines, "\n"), 0))
	return err
}

// planErrorMessage returns the text shown for a failed goal: the server's
// message for API errors, the envelope message for local rejections, the
// error text otherwise.
func planErrorMessage(err error) string {
	var apiErr *client.APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.Error()
	}
	var envelope *gferrors.ErrorEnvelope
	if stderrors.As(err, &envelope) && envelope != nil {
		return envelope.Message
	}
	return err.Error()
}

// parseTaskNumber converts a 1-based task number into an index.
func parseTaskNumber(arg string, total int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return 0, errwrap.NewInvalidInputError(fmt.Sprintf("invalid task number %q", arg))
	}
	if n < 1 || n > total {
		return 0, fmt.Errorf("%w: task %d (goal has %d tasks)", goals.ErrTaskIndex, n, total)
	}
	return n - 1, nil
}

func setTaskStatus(cmd *cobra.Command, ref, number string, done bool) error {
	return updateGoal(cmd, ref, func(g *goals.Goal) error {
		index, err := parseTaskNumber(number, len(g.Tasks))
		if err != nil {
			return err
		}
		return goals.SetTaskStatus(g, index, done)
	})
}

// updateGoal loads ref, applies fn and saves the goal when fn succeeds.
func updateGoal(cmd *cobra.Command, ref string, fn func(*goals.Goal) error) error {
	db, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close() // nolint:errcheck // best-effort cleanup

	goal, err := db.FindGoal(cmd.Context(), ref)
	if err != nil {
		return err
	}
	if err := fn(goal); err != nil {
		return err
	}
	if err := db.SaveGoal(cmd.Context(), goal); err != nil {
		return err
	}

	done, total := goal.Progress()
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d/%d tasks done\n", goal.Name, done, total)
	return err
}

func init() {
	rootCmd.AddCommand(goalCmd)
	goalCmd.AddCommand(goalNewCmd, goalListCmd, goalShowCmd, goalPlanCmd, goalDoneCmd, goalUndoCmd,
		goalRenameCmd, goalPromptCmd, goalRemoveCmd, goalResetCmd)

	goalNewCmd.Flags().StringVar(&goalNewName, "name", "", "goal name (default Untitled_NN)")
	goalNewCmd.Flags().StringVar(&goalNewPrompt, "prompt", "", "goal description")

	goalPlanCmd.Flags().StringVar(&goalPlanMode, "mode", string(goals.ModeNew), "new (replace tasks) or additional (append tasks)")

	goalResetCmd.Flags().BoolVar(&goalResetYes, "yes", false, "confirm deleting every goal")

	addOutputFlags(goalListCmd)
	addOutputFlags(goalShowCmd)
}
