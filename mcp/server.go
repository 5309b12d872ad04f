package mcp

import (
	"teamrun/orchestrator"

	gomcp "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

const serverInstructions = "You are a worker agent in a Teamrun coordinated run. " +
	"Tasks form a dependency graph: claim ready tasks with claim_tasks, do the work " +
	"out-of-process, then submit_result. A reviewer resolves your submission with " +
	"complete_task or reject_task; rejected tasks return to the pool only via " +
	"requeue_task. Call heartbeat periodically so the run knows you are alive, and " +
	"team_status to see the run's phase, version and task states before claiming."

// TeamrunMCPServer exposes one coordinated run to out-of-process worker
// agents over stdio.
type TeamrunMCPServer struct {
	server *mcpserver.MCPServer
	run    *orchestrator.Run
}

// NewTeamrunMCPServer creates an MCP server bound to a run. readOnly gates
// registration of the mutating tools.
func NewTeamrunMCPServer(run *orchestrator.Run, readOnly bool) *TeamrunMCPServer {
	s := mcpserver.NewMCPServer(
		"teamrun",
		"0.1.0",
		mcpserver.WithInstructions(serverInstructions),
	)

	t := &TeamrunMCPServer{
		server: s,
		run:    run,
	}

	t.registerReadTools()
	if !readOnly {
		t.registerWriteTools()
	}

	Log("server created: run=%s readOnly=%v", run.ID(), readOnly)
	return t
}

// registerReadTools registers the read-only inspection tools.
func (t *TeamrunMCPServer) registerReadTools() {
	teamStatus := gomcp.NewTool("team_status",
		gomcp.WithDescription(
			"Get the run's compact state snapshot: phase, graph version, task and event "+
				"counts, and every task's status. Call this before claiming to see what is ready.",
		),
		gomcp.WithReadOnlyHintAnnotation(true),
	)
	t.server.AddTool(teamStatus, handleTeamStatus(t.run))

	listTasks := gomcp.NewTool("list_tasks",
		gomcp.WithDescription("List every task in the run with its status, dependencies, assignment and result."),
		gomcp.WithReadOnlyHintAnnotation(true),
	)
	t.server.AddTool(listTasks, handleListTasks(t.run))

	awaitingReview := gomcp.NewTool("awaiting_review",
		gomcp.WithDescription(
			"List tasks that have a submitted result but no review decision yet. "+
				"Reviewers resolve these with complete_task or reject_task.",
		),
		gomcp.WithReadOnlyHintAnnotation(true),
	)
	t.server.AddTool(awaitingReview, handleAwaitingReview(t.run))
}

// registerWriteTools registers the mutating worker and reviewer tools.
func (t *TeamrunMCPServer) registerWriteTools() {
	claimTasks := gomcp.NewTool("claim_tasks",
		gomcp.WithDescription(
			"Claim up to max_count ready tasks. A task is ready when it is pending and all "+
				"of its blockers are done. Claimed tasks are assigned to you exclusively.",
		),
		gomcp.WithString("worker_id",
			gomcp.Required(),
			gomcp.Description("Your stable worker identifier."),
		),
		gomcp.WithNumber("max_count",
			gomcp.Description("Maximum number of tasks to claim (default 1)."),
		),
	)
	t.server.AddTool(claimTasks, handleClaimTasks(t.run))

	submitResult := gomcp.NewTool("submit_result",
		gomcp.WithDescription(
			"Submit your output for a claimed task. The task stays in_progress until a "+
				"reviewer completes or rejects it; submitting again overwrites the prior result.",
		),
		gomcp.WithString("worker_id",
			gomcp.Required(),
			gomcp.Description("Your stable worker identifier."),
		),
		gomcp.WithString("task_id",
			gomcp.Required(),
			gomcp.Description("The claimed task to submit a result for."),
		),
		gomcp.WithString("result",
			gomcp.Required(),
			gomcp.Description("The task output awaiting review."),
		),
	)
	t.server.AddTool(submitResult, handleSubmitResult(t.run))

	completeTask := gomcp.NewTool("complete_task",
		gomcp.WithDescription(
			"Accept a submitted task as done. Tasks blocked on it become claimable.",
		),
		gomcp.WithString("task_id",
			gomcp.Required(),
			gomcp.Description("The task to mark done. It must have a submitted result."),
		),
	)
	t.server.AddTool(completeTask, handleCompleteTask(t.run))

	rejectTask := gomcp.NewTool("reject_task",
		gomcp.WithDescription(
			"Reject a claimed task with a reason. The task is deferred and its submitted "+
				"result discarded; it will not be re-claimed until requeue_task is called.",
		),
		gomcp.WithString("task_id",
			gomcp.Required(),
			gomcp.Description("The task to defer."),
		),
		gomcp.WithString("reason",
			gomcp.Required(),
			gomcp.Description("Why the task was rejected."),
		),
	)
	t.server.AddTool(rejectTask, handleRejectTask(t.run))

	requeueTask := gomcp.NewTool("requeue_task",
		gomcp.WithDescription("Return a deferred task to the pending pool so it can be claimed fresh."),
		gomcp.WithString("task_id",
			gomcp.Required(),
			gomcp.Description("The deferred task to requeue."),
		),
	)
	t.server.AddTool(requeueTask, handleRequeueTask(t.run))

	heartbeat := gomcp.NewTool("heartbeat",
		gomcp.WithDescription(
			"Report that you are alive and what you are working on. Call this periodically; "+
				"a stale heartbeat may get your task rejected and requeued by policy.",
		),
		gomcp.WithString("worker_id",
			gomcp.Required(),
			gomcp.Description("Your stable worker identifier."),
		),
		gomcp.WithString("status",
			gomcp.Description("Either 'busy' or 'idle' (default 'busy')."),
		),
		gomcp.WithString("task_id",
			gomcp.Description("The task you are currently working on, if any."),
		),
		gomcp.WithNumber("attempt",
			gomcp.Description("Retry counter for the current task."),
		),
	)
	t.server.AddTool(heartbeat, handleHeartbeat(t.run))

	transitionPhase := gomcp.NewTool("transition_phase",
		gomcp.WithDescription(
			"Drive the run to its next phase. Legal transitions: planning -> executing/await_user/failed, "+
				"executing -> reconciling/await_user/failed, reconciling -> planning/await_user/failed/completed, "+
				"await_user -> planning/failed. failed and completed are terminal.",
		),
		gomcp.WithString("phase",
			gomcp.Required(),
			gomcp.Description("The target phase."),
		),
	)
	t.server.AddTool(transitionPhase, handleTransitionPhase(t.run))
}

// Serve starts the MCP server using stdio transport.
func (t *TeamrunMCPServer) Serve() error {
	return mcpserver.ServeStdio(t.server)
}
