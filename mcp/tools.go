package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"teamrun/orchestrator"
	"teamrun/runtime"
	"teamrun/state"
	"teamrun/taskgraph"

	gomcp "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// taskView is the JSON representation of a task returned by list_tasks and
// claim_tasks.
type taskView struct {
	ID          string   `json:"id"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status"`
	BlockedBy   []string `json:"blocked_by,omitempty"`
	AssignedTo  string   `json:"assigned_to,omitempty"`
	Result      string   `json:"result,omitempty"`
	Error       string   `json:"error,omitempty"`
}

func toTaskViews(tasks []taskgraph.Task) []taskView {
	views := make([]taskView, len(tasks))
	for i, t := range tasks {
		views[i] = taskView{
			ID:          t.ID,
			Description: t.Description,
			Status:      string(t.Status),
			BlockedBy:   t.BlockedBy,
			AssignedTo:  t.AssignedTo,
			Result:      t.Result,
			Error:       t.Error,
		}
	}
	return views
}

// intParam extracts a numeric parameter from the request arguments,
// returning defaultVal if not present. MCP numbers arrive as float64.
func intParam(req gomcp.CallToolRequest, name string, defaultVal int) int {
	if args := req.GetArguments(); args != nil {
		if v, ok := args[name].(float64); ok {
			return int(v)
		}
	}
	return defaultVal
}

// jsonResult marshals v as indented JSON tool output.
func jsonResult(v any) (*gomcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return gomcp.NewToolResultError("failed to marshal response: " + err.Error()), nil
	}
	return gomcp.NewToolResultText(string(data)), nil
}

// handleTeamStatus returns the run's compact state snapshot.
func handleTeamStatus(run *orchestrator.Run) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		Log("tool call: team_status (run=%s)", run.ID())
		return jsonResult(run.StatusSnapshot())
	}
}

// handleListTasks returns every task with its lifecycle fields.
func handleListTasks(run *orchestrator.Run) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		Log("tool call: list_tasks (run=%s)", run.ID())
		tasks := run.Tasks()
		if len(tasks) == 0 {
			return gomcp.NewToolResultText("No tasks in this run."), nil
		}
		return jsonResult(toTaskViews(tasks))
	}
}

// handleAwaitingReview returns submitted-but-unreviewed tasks.
func handleAwaitingReview(run *orchestrator.Run) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		Log("tool call: awaiting_review (run=%s)", run.ID())
		tasks := run.AwaitingReview()
		if len(tasks) == 0 {
			return gomcp.NewToolResultText("No tasks awaiting review."), nil
		}
		return jsonResult(toTaskViews(tasks))
	}
}

// handleClaimTasks claims ready tasks for the calling worker.
func handleClaimTasks(run *orchestrator.Run) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		workerID := req.GetString("worker_id", "")
		maxCount := intParam(req, "max_count", 1)
		Log("tool call: claim_tasks (worker=%s max=%d)", workerID, maxCount)
		if workerID == "" {
			return gomcp.NewToolResultError("missing required parameter: worker_id"), nil
		}
		if maxCount < 1 {
			return gomcp.NewToolResultError("max_count must be >= 1"), nil
		}

		claimed, err := run.ClaimTasks(workerID, maxCount)
		if err != nil {
			return gomcp.NewToolResultError("failed to claim tasks: " + err.Error()), nil
		}
		if len(claimed) == 0 {
			return gomcp.NewToolResultText("No ready tasks to claim."), nil
		}
		return jsonResult(toTaskViews(claimed))
	}
}

// handleSubmitResult records a worker's output on a claimed task.
func handleSubmitResult(run *orchestrator.Run) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		workerID := req.GetString("worker_id", "")
		taskID := req.GetString("task_id", "")
		result := req.GetString("result", "")
		Log("tool call: submit_result (worker=%s task=%s)", workerID, taskID)
		if workerID == "" {
			return gomcp.NewToolResultError("missing required parameter: worker_id"), nil
		}
		if taskID == "" {
			return gomcp.NewToolResultError("missing required parameter: task_id"), nil
		}
		if result == "" {
			return gomcp.NewToolResultError("missing required parameter: result"), nil
		}

		if err := run.Submit(workerID, taskID, result); err != nil {
			return gomcp.NewToolResultError("failed to submit result: " + err.Error()), nil
		}
		return gomcp.NewToolResultText(fmt.Sprintf("Result submitted for task %s; awaiting review.", taskID)), nil
	}
}

// handleCompleteTask accepts a submitted task as done.
func handleCompleteTask(run *orchestrator.Run) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		taskID := req.GetString("task_id", "")
		Log("tool call: complete_task (task=%s)", taskID)
		if taskID == "" {
			return gomcp.NewToolResultError("missing required parameter: task_id"), nil
		}

		if err := run.Complete(taskID); err != nil {
			return gomcp.NewToolResultError("failed to complete task: " + err.Error()), nil
		}
		return gomcp.NewToolResultText(fmt.Sprintf("Task %s completed.", taskID)), nil
	}
}

// handleRejectTask defers a claimed task with a reason.
func handleRejectTask(run *orchestrator.Run) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		taskID := req.GetString("task_id", "")
		reason := req.GetString("reason", "")
		Log("tool call: reject_task (task=%s)", taskID)
		if taskID == "" {
			return gomcp.NewToolResultError("missing required parameter: task_id"), nil
		}
		if reason == "" {
			return gomcp.NewToolResultError("missing required parameter: reason"), nil
		}

		if err := run.Reject(taskID, reason); err != nil {
			return gomcp.NewToolResultError("failed to reject task: " + err.Error()), nil
		}
		return gomcp.NewToolResultText(fmt.Sprintf("Task %s deferred: %s", taskID, reason)), nil
	}
}

// handleRequeueTask returns a deferred task to the pending pool.
func handleRequeueTask(run *orchestrator.Run) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		taskID := req.GetString("task_id", "")
		Log("tool call: requeue_task (task=%s)", taskID)
		if taskID == "" {
			return gomcp.NewToolResultError("missing required parameter: task_id"), nil
		}

		if err := run.Requeue(taskID); err != nil {
			return gomcp.NewToolResultError("failed to requeue task: " + err.Error()), nil
		}
		return gomcp.NewToolResultText(fmt.Sprintf("Task %s requeued.", taskID)), nil
	}
}

// handleHeartbeat records a worker's liveness.
func handleHeartbeat(run *orchestrator.Run) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		workerID := req.GetString("worker_id", "")
		status := req.GetString("status", state.WorkerBusy)
		taskID := req.GetString("task_id", "")
		attempt := intParam(req, "attempt", 0)
		Log("tool call: heartbeat (worker=%s status=%s)", workerID, status)
		if workerID == "" {
			return gomcp.NewToolResultError("missing required parameter: worker_id"), nil
		}
		if status != state.WorkerBusy && status != state.WorkerIdle {
			return gomcp.NewToolResultError("status must be 'busy' or 'idle'"), nil
		}

		err := run.Heartbeat(state.Heartbeat{
			WorkerID: workerID,
			Status:   status,
			TaskID:   taskID,
			Attempt:  attempt,
		})
		if err != nil {
			return gomcp.NewToolResultError("failed to record heartbeat: " + err.Error()), nil
		}
		return gomcp.NewToolResultText("Heartbeat recorded."), nil
	}
}

// handleTransitionPhase drives the run's phase machine.
func handleTransitionPhase(run *orchestrator.Run) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		phase := req.GetString("phase", "")
		Log("tool call: transition_phase (phase=%s)", phase)
		if phase == "" {
			return gomcp.NewToolResultError("missing required parameter: phase"), nil
		}

		next, err := run.TransitionPhase(runtime.Phase(phase))
		if err != nil {
			return gomcp.NewToolResultError(err.Error()), nil
		}
		return gomcp.NewToolResultText(fmt.Sprintf("Run phase is now %s.", next)), nil
	}
}
