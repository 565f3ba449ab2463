package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/forge-cli/internal/core/domain"
	"github.com/custodia-labs/forge-cli/internal/core/ports/driving"
)

var (
	proposeTitle         string
	proposeBody          string
	proposeOrchestration string
	rollbackReason       string
)

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Drive change proposals through the PR workflow",
	Long: `Manages change proposals through the branch, commit, pull request,
merge and rollback state machine. Every transition is validated
against the declared edge set and recorded in the record's history.`,
}

var workflowProposeCmd = &cobra.Command{
	Use:   "propose [files...]",
	Short: "Create a change proposal from local files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runWorkflowPropose,
}

var workflowAdvanceCmd = &cobra.Command{
	Use:   "advance [id] [action]",
	Short: "Advance a record one state (branch, commit, open_pr, merge, close)",
	Args:  cobra.ExactArgs(2),
	RunE:  runWorkflowAdvance,
}

var workflowRollbackCmd = &cobra.Command{
	Use:   "rollback [id]",
	Short: "Open an inverse-diff PR reverting a merged change",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowRollback,
}

var workflowStatusCmd = &cobra.Command{
	Use:   "status [id]",
	Short: "Show one workflow record",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowStatus,
}

var workflowListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all workflow records",
	RunE:  runWorkflowList,
}

func init() {
	workflowProposeCmd.Flags().StringVarP(&proposeTitle, "title", "t", "", "change title (required)")
	workflowProposeCmd.Flags().StringVarP(&proposeBody, "body", "b", "", "change description")
	workflowProposeCmd.Flags().StringVar(&proposeOrchestration, "orchestration", "", "orchestration run the change came from")
	workflowProposeCmd.MarkFlagRequired("title") //nolint:errcheck

	workflowRollbackCmd.Flags().StringVar(&rollbackReason, "reason", "", "why the change is being rolled back")

	workflowCmd.AddCommand(workflowProposeCmd)
	workflowCmd.AddCommand(workflowAdvanceCmd)
	workflowCmd.AddCommand(workflowRollbackCmd)
	workflowCmd.AddCommand(workflowStatusCmd)
	workflowCmd.AddCommand(workflowListCmd)
	rootCmd.AddCommand(workflowCmd)
}

func runWorkflowPropose(cmd *cobra.Command, args []string) error {
	if workflowService == nil {
		return errors.New("workflow service not configured")
	}

	files := make(map[string]string, len(args))
	for _, path := range args {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		files[path] = string(content)
	}

	record, err := workflowService.Propose(cmd.Context(), driving.ProposeRequest{
		OrchestrationID: proposeOrchestration,
		Title:           proposeTitle,
		Body:            proposeBody,
		Files:           files,
	})
	if err != nil {
		return fmt.Errorf("propose failed: %w", err)
	}

	cmd.Printf("Proposed %s (%d files).\n", record.ID, len(record.Files))
	return nil
}

func runWorkflowAdvance(cmd *cobra.Command, args []string) error {
	if workflowService == nil {
		return errors.New("workflow service not configured")
	}

	id, action := args[0], args[1]
	ctx := cmd.Context()

	var (
		record *domain.WorkflowRecord
		err    error
	)
	switch action {
	case "branch":
		record, err = workflowService.CreateBranch(ctx, id)
	case "commit":
		record, err = workflowService.CommitFiles(ctx, id)
	case "open_pr":
		record, err = workflowService.OpenPullRequest(ctx, id)
	case "merge":
		record, err = workflowService.Merge(ctx, id)
	case "close":
		record, err = workflowService.Close(ctx, id)
	default:
		return fmt.Errorf("unknown action %q (want branch, commit, open_pr, merge or close)", action)
	}
	if err != nil {
		return fmt.Errorf("advance failed: %w", err)
	}

	printWorkflowRecord(cmd, record)
	return nil
}

func runWorkflowRollback(cmd *cobra.Command, args []string) error {
	if workflowService == nil {
		return errors.New("workflow service not configured")
	}

	record, err := workflowService.Rollback(cmd.Context(), args[0], rollbackReason)
	if err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}

	cmd.Printf("Rolled back %s: PR #%d reverts PR #%d.\n",
		record.ID, record.RollbackPRNumber, record.PRNumber)
	return nil
}

func runWorkflowStatus(cmd *cobra.Command, args []string) error {
	if workflowService == nil {
		return errors.New("workflow service not configured")
	}

	record, err := workflowService.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get failed: %w", err)
	}

	printWorkflowRecord(cmd, record)
	for _, transition := range record.History {
		cmd.Printf("  %s  %s -> %s", transition.At.Format("2006-01-02 15:04:05"), transition.From, transition.To)
		if transition.Note != "" {
			cmd.Printf("  (%s)", transition.Note)
		}
		cmd.Println()
	}
	return nil
}

func runWorkflowList(cmd *cobra.Command, _ []string) error {
	if workflowService == nil {
		return errors.New("workflow service not configured")
	}

	records, err := workflowService.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("list failed: %w", err)
	}

	if len(records) == 0 {
		cmd.Println("No workflow records.")
		return nil
	}

	for i := range records {
		printWorkflowRecord(cmd, &records[i])
	}
	return nil
}

func printWorkflowRecord(cmd *cobra.Command, record *domain.WorkflowRecord) {
	line := fmt.Sprintf("%s  %-15s  %s", record.ID, record.State, record.Title)
	if record.PRNumber > 0 {
		line += fmt.Sprintf("  PR #%d", record.PRNumber)
	}
	if record.RollbackPRNumber > 0 {
		line += fmt.Sprintf("  rollback PR #%d", record.RollbackPRNumber)
	}
	cmd.Println(line)
}
