package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"renewflow/internal/audit"
	"renewflow/internal/customers"
	"renewflow/internal/daemon"
	"renewflow/internal/notify"
	"renewflow/internal/queue"
	"renewflow/internal/renewal"
	"renewflow/internal/scoringcfg"
	"renewflow/internal/store"
	"renewflow/internal/task"
	"renewflow/internal/trigger"
	"renewflow/internal/workspace"
)

const appName = "renewflow"

func main() {
	flag.String("workspace", "", "Path to workspace root")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s: renewal workflow prioritization and wake-trigger scheduling\n\n", appName)
		fmt.Fprintf(os.Stderr, "Usage:\n  %s [command] [flags]\n\n", appName)
		fmt.Fprintln(os.Stderr, "Commands:")
		fmt.Fprintln(os.Stderr, "  audit    Inspect the audit log")
		fmt.Fprintln(os.Stderr, "  config   Manage scoring configuration")
		fmt.Fprintln(os.Stderr, "  daemon   Manage daemon")
		fmt.Fprintln(os.Stderr, "  event    Record and list domain events")
		fmt.Fprintln(os.Stderr, "  init     Initialize a new workspace")
		fmt.Fprintln(os.Stderr, "  queue    Build and inspect the priority queue")
		fmt.Fprintln(os.Stderr, "  task     Manage tasks")
		fmt.Fprintln(os.Stderr, "  trigger  Manage wake triggers")
		fmt.Fprintln(os.Stderr, "  help     Show this help")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		flag.PrintDefaults()
	}

	workspacePath, remaining, err := extractWorkspaceFlag(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	args := remaining
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		flag.Usage()
		return
	}

	var runErr error
	switch args[0] {
	case "audit":
		runErr = runAudit(args[1:], workspacePath)
	case "config":
		runErr = runConfig(args[1:], workspacePath)
	case "daemon":
		runErr = runDaemon(args[1:], workspacePath)
	case "event":
		runErr = runEvent(args[1:], workspacePath)
	case "init":
		runErr = runInit(args[1:], workspacePath)
	case "queue":
		runErr = runQueue(args[1:], workspacePath)
	case "task":
		runErr = runTask(args[1:], workspacePath)
	case "trigger":
		runErr = runTrigger(args[1:], workspacePath)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		flag.Usage()
		os.Exit(1)
	}
	if runErr != nil {
		fmt.Fprintln(os.Stderr, runErr)
		os.Exit(1)
	}
}

type workspaceOverrides struct {
	StateDB      string
	AuditDB      string
	CustomerBook string
}

type resolvedWorkspace struct {
	Workspace    *workspace.Workspace
	StateDB      string
	AuditDB      string
	CustomerBook string
}

func resolveWorkspaceAndOverrides(root string, overrides workspaceOverrides) (*resolvedWorkspace, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("--workspace is required")
	}
	ws, err := workspace.Resolve(root)
	if err != nil {
		return nil, err
	}
	resolved := &resolvedWorkspace{Workspace: ws}
	resolved.StateDB = ws.StateDBPath
	resolved.AuditDB = ws.AuditDBPath
	resolved.CustomerBook = ws.CustomerBookPath

	if overrides.StateDB != "" {
		resolved.StateDB, err = ws.ResolvePath(overrides.StateDB)
		if err != nil {
			return nil, fmt.Errorf("resolve --state-db: %w", err)
		}
	}
	if overrides.AuditDB != "" {
		resolved.AuditDB, err = ws.ResolvePath(overrides.AuditDB)
		if err != nil {
			return nil, fmt.Errorf("resolve --audit-db: %w", err)
		}
	}
	if overrides.CustomerBook != "" {
		resolved.CustomerBook, err = ws.ResolvePath(overrides.CustomerBook)
		if err != nil {
			return nil, fmt.Errorf("resolve --customers: %w", err)
		}
	}
	return resolved, nil
}

func extractWorkspaceFlag(args []string) (string, []string, error) {
	var workspacePath string
	remaining := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--workspace" {
			if i+1 >= len(args) {
				return "", nil, fmt.Errorf("--workspace requires a value")
			}
			workspacePath = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--workspace=") {
			workspacePath = strings.TrimPrefix(arg, "--workspace=")
			continue
		}
		remaining = append(remaining, arg)
	}
	return workspacePath, remaining, nil
}

func openState(resolved *resolvedWorkspace) (*store.Store, error) {
	st, err := store.Open(resolved.StateDB)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	return st, nil
}

func configStore(st *store.Store, resolved *resolvedWorkspace) *scoringcfg.Store {
	return scoringcfg.NewStore(st, audit.NewLogger(resolved.AuditDB), 0)
}

func runInit(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(workspacePath) == "" {
		return fmt.Errorf("--workspace is required")
	}

	root, err := workspace.ResolveRoot(workspacePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create workspace root: %w", err)
	}
	ws, err := workspace.Resolve(root)
	if err != nil {
		return err
	}

	logger := audit.NewLogger(ws.AuditDBPath)
	if err := logger.LogEvent("cli", "workspace_init_started", map[string]any{"workspace": ws.Root}); err != nil {
		fmt.Fprintln(os.Stderr, "audit log failed:", err)
	}
	var finishErr error
	defer func() {
		finishPayload := map[string]any{"workspace": ws.Root}
		if finishErr != nil {
			finishPayload["error"] = finishErr.Error()
		}
		_ = logger.LogEvent("cli", "workspace_init_finished", finishPayload)
	}()

	if err := ws.EnsureDirs(); err != nil {
		finishErr = err
		return finishErr
	}

	st, err := store.Open(ws.StateDBPath)
	if err != nil {
		finishErr = err
		return finishErr
	}
	st.Close()

	if err := writeFileIfMissing(ws.CustomerBookPath, minimalCustomerBookTemplate); err != nil {
		finishErr = err
		return finishErr
	}

	fmt.Fprintf(os.Stdout, "Initialized workspace: %s\n", ws.Root)
	fmt.Fprintln(os.Stdout, "Next steps:")
	fmt.Fprintf(os.Stdout, "  edit %s\n", ws.CustomerBookPath)
	fmt.Fprintf(os.Stdout, "  %s queue build --workspace %s\n", appName, ws.Root)
	fmt.Fprintf(os.Stdout, "  %s daemon run --workspace %s\n", appName, ws.Root)
	return nil
}

func runQueue(args []string, workspacePath string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		return fmt.Errorf("%s queue: missing subcommand", appName)
	}

	switch args[0] {
	case "build":
		return runQueueBuild(args[1:], workspacePath)
	default:
		return fmt.Errorf("%s queue: unknown subcommand %q", appName, args[0])
	}
}

func runQueueBuild(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("queue build", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	customerBook := fs.String("customers", "", "Path to customer book YAML (default: <workspace>/customers.yml)")
	stateDB := fs.String("state-db", "", "Path to state SQLite DB (default: <workspace>/data/state.sqlite)")
	auditDB := fs.String("audit-db", "", "Path to audit SQLite DB (default: <workspace>/audit/audit.sqlite)")
	owner := fs.String("owner", "", "Restrict to customers owned by this CSM")
	typeFilter := fs.String("type", "", "Comma-separated workflow types to keep")
	stageFilter := fs.String("stage", "", "Comma-separated renewal stages to keep")
	minPriority := fs.Int("min-priority", 0, "Minimum priority to keep (0 = no floor)")
	group := fs.Bool("group", false, "Group assignments by customer")
	stats := fs.Bool("stats", false, "Print queue statistics instead of assignments")
	explain := fs.Bool("explain", false, "Print the factor breakdown for each assignment")
	asJSON := fs.Bool("json", false, "Emit JSON")

	if err := fs.Parse(args); err != nil {
		return err
	}

	resolved, err := resolveWorkspaceAndOverrides(workspacePath, workspaceOverrides{
		StateDB:      *stateDB,
		AuditDB:      *auditDB,
		CustomerBook: *customerBook,
	})
	if err != nil {
		return err
	}
	if err := resolved.Workspace.EnsureDirs(); err != nil {
		return err
	}

	st, err := openState(resolved)
	if err != nil {
		return err
	}
	defer st.Close()

	book := &customers.Book{Path: resolved.CustomerBook}
	snapshots, err := book.ListNeedingEvaluation(context.Background(), customers.Filter{OwnerID: *owner})
	if err != nil {
		return err
	}
	contexts, err := book.OwnerContexts()
	if err != nil {
		return err
	}

	cfg := configStore(st, resolved).Config()
	result := queue.Build(snapshots, cfg, queue.BuildOptions{
		OwnerFilter:  *owner,
		UserContexts: contexts,
	})

	logger := audit.NewLogger(resolved.AuditDB)
	_ = logger.LogEvent("cli", "queue_built", map[string]any{
		"workspace":   resolved.Workspace.Root,
		"owner":       *owner,
		"assignments": len(result.Assignments),
		"warnings":    len(result.Warnings),
	})

	assignments := queue.Filter(result.Assignments, buildCriteria(*typeFilter, *stageFilter, *minPriority))

	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s: %s\n", w.CustomerID, w.Message)
	}

	if *stats {
		return emit(queue.Summarize(assignments), *asJSON, printStats)
	}
	if *group {
		return emit(queue.GroupByCustomer(assignments), *asJSON, printGroups)
	}
	if *asJSON {
		return emitJSON(assignments)
	}
	printAssignments(assignments, *explain)
	return nil
}

func buildCriteria(typeFilter, stageFilter string, minPriority int) queue.Criteria {
	var c queue.Criteria
	for _, t := range splitList(typeFilter) {
		c.Types = append(c.Types, renewal.WorkflowType(t))
	}
	for _, s := range splitList(stageFilter) {
		c.Stages = append(c.Stages, renewal.Stage(s))
	}
	if minPriority > 0 {
		c.MinPriority = &minPriority
	}
	return c
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func emit[T any](v T, asJSON bool, printer func(T)) error {
	if asJSON {
		return emitJSON(v)
	}
	printer(v)
	return nil
}

func emitJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printAssignments(assignments []queue.Assignment, explain bool) {
	if len(assignments) == 0 {
		fmt.Fprintln(os.Stdout, "Queue is empty.")
		return
	}
	for i, a := range assignments {
		fmt.Fprintf(os.Stdout, "%3d. [%4d] %-12s %s", i+1, a.Priority, a.WorkflowType, a.Customer.ID)
		if a.Customer.Name != "" {
			fmt.Fprintf(os.Stdout, " (%s)", a.Customer.Name)
		}
		if a.Stage != "" {
			fmt.Fprintf(os.Stdout, " stage=%s", a.Stage)
		}
		fmt.Fprintln(os.Stdout)
		if explain {
			fmt.Fprintf(os.Stdout, "     %s\n", a.Factors.Explain())
		}
	}
}

func printGroups(groups []queue.CustomerGroup) {
	if len(groups) == 0 {
		fmt.Fprintln(os.Stdout, "Queue is empty.")
		return
	}
	for _, g := range groups {
		name := g.CustomerID
		if g.CustomerName != "" {
			name = fmt.Sprintf("%s (%s)", g.CustomerID, g.CustomerName)
		}
		fmt.Fprintf(os.Stdout, "%s  max=%d total=%d\n", name, g.MaxPriority, g.TotalPriority)
		for _, a := range g.Assignments {
			fmt.Fprintf(os.Stdout, "  [%4d] %s\n", a.Priority, a.WorkflowType)
		}
	}
}

func printStats(s queue.Stats) {
	fmt.Fprintf(os.Stdout, "Assignments: %d across %d customers\n", s.Total, s.UniqueCustomers)
	if s.Total == 0 {
		return
	}
	fmt.Fprintf(os.Stdout, "Priority: min=%d avg=%.1f max=%d\n", s.MinPriority, s.AvgPriority, s.MaxPriority)
	for wt, n := range s.ByType {
		fmt.Fprintf(os.Stdout, "  type %-12s %d\n", wt, n)
	}
	for stage, n := range s.ByStage {
		fmt.Fprintf(os.Stdout, "  stage %-11s %d\n", stage, n)
	}
}

func runTask(args []string, workspacePath string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		return fmt.Errorf("%s task: missing subcommand", appName)
	}

	switch args[0] {
	case "create":
		return runTaskCreate(args[1:], workspacePath)
	case "list":
		return runTaskList(args[1:], workspacePath)
	case "show":
		return runTaskShow(args[1:], workspacePath)
	case "snooze":
		return runTaskSnooze(args[1:], workspacePath)
	case "start":
		return runTaskTransition(args[1:], workspacePath, "start")
	case "complete":
		return runTaskTransition(args[1:], workspacePath, "complete")
	case "skip":
		return runTaskTransition(args[1:], workspacePath, "skip")
	case "dismiss":
		return runTaskTransition(args[1:], workspacePath, "dismiss")
	case "cancel":
		return runTaskTransition(args[1:], workspacePath, "cancel")
	case "wake":
		return runTaskTransition(args[1:], workspacePath, "wake")
	default:
		return fmt.Errorf("%s task: unknown subcommand %q", appName, args[0])
	}
}

func runTaskCreate(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("task create", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	customerID := fs.String("customer", "", "Customer ID the task belongs to")
	workflowType := fs.String("type", string(renewal.WorkflowRenewal), "Workflow type")
	title := fs.String("title", "", "Task title")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *customerID == "" {
		return fmt.Errorf("--customer is required")
	}
	if *title == "" {
		return fmt.Errorf("--title is required")
	}

	resolved, err := resolveWorkspaceAndOverrides(workspacePath, workspaceOverrides{})
	if err != nil {
		return err
	}
	if err := resolved.Workspace.EnsureDirs(); err != nil {
		return err
	}
	st, err := openState(resolved)
	if err != nil {
		return err
	}
	defer st.Close()

	t := task.New("", *customerID, *workflowType, *title, time.Now())
	if err := st.CreateTask(&t); err != nil {
		return err
	}

	logger := audit.NewLogger(resolved.AuditDB)
	_ = logger.LogEvent("cli", "task_created", map[string]any{
		"task_id":       t.ID,
		"customer_id":   t.CustomerID,
		"workflow_type": t.WorkflowType,
	})

	fmt.Fprintf(os.Stdout, "Created task: %s\n", t.ID)
	return nil
}

func runTaskList(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("task list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	status := fs.String("status", "", "Filter by status")
	limit := fs.Int("limit", 50, "Maximum tasks to list")
	asJSON := fs.Bool("json", false, "Emit JSON")

	if err := fs.Parse(args); err != nil {
		return err
	}

	resolved, err := resolveWorkspaceAndOverrides(workspacePath, workspaceOverrides{})
	if err != nil {
		return err
	}
	st, err := openState(resolved)
	if err != nil {
		return err
	}
	defer st.Close()

	tasks, err := st.ListTasks(*status, *limit)
	if err != nil {
		return err
	}
	if *asJSON {
		return emitJSON(tasks)
	}
	if len(tasks) == 0 {
		fmt.Fprintln(os.Stdout, "No tasks.")
		return nil
	}
	for _, t := range tasks {
		line := fmt.Sprintf("%s [%s] %s: %s", t.ID, t.Status, t.CustomerID, t.Title)
		if t.RequiresDecision {
			line += " DECISION REQUIRED"
		}
		if t.SnoozedUntil != nil {
			line += fmt.Sprintf(" snoozed_until=%s", t.SnoozedUntil.Format(time.RFC3339))
		}
		fmt.Fprintln(os.Stdout, line)
	}
	return nil
}

func runTaskShow(args []string, workspacePath string) error {
	id, remaining := popID(args)
	fs := flag.NewFlagSet("task show", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(remaining); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("task id is required")
	}

	resolved, err := resolveWorkspaceAndOverrides(workspacePath, workspaceOverrides{})
	if err != nil {
		return err
	}
	st, err := openState(resolved)
	if err != nil {
		return err
	}
	defer st.Close()

	t, err := st.GetTask(id)
	if err != nil {
		return err
	}
	return emitJSON(t)
}

func runTaskSnooze(args []string, workspacePath string) error {
	id, remaining := popID(args)
	fs := flag.NewFlagSet("task snooze", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	check := fs.Bool("check", false, "Report snooze eligibility without snoozing")
	wakeOn := fs.String("wake-on-event", "", "Also register an event wake trigger for this key")
	wakeAt := fs.String("wake-at", "", "Also register a date wake trigger (RFC3339)")

	if err := fs.Parse(remaining); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("task id is required")
	}

	resolved, err := resolveWorkspaceAndOverrides(workspacePath, workspaceOverrides{})
	if err != nil {
		return err
	}
	st, err := openState(resolved)
	if err != nil {
		return err
	}
	defer st.Close()

	t, err := st.GetTask(id)
	if err != nil {
		return err
	}

	now := time.Now()
	if *check {
		elig, err := task.CanSnooze(*t, now)
		if err != nil {
			return err
		}
		return emitJSON(elig)
	}

	if err := task.Snooze(t, now); err != nil {
		return err
	}
	if err := st.UpdateTask(*t); err != nil {
		return err
	}

	logger := audit.NewLogger(resolved.AuditDB)
	_ = logger.LogEvent("cli", "task_snoozed", map[string]any{
		"task_id":       t.ID,
		"snooze_count":  t.SnoozeCount,
		"snoozed_until": t.SnoozedUntil.Format(time.RFC3339),
	})

	if *wakeOn != "" {
		tr := store.WakeTrigger{
			OwnerKind:  trigger.OwnerTask,
			OwnerID:    t.ID,
			Kind:       string(trigger.KindEvent),
			ConfigJSON: trigger.EventConfigJSON(*wakeOn),
			CreatedAt:  now,
		}
		if err := st.CreateTrigger(&tr); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Registered event trigger: %s\n", tr.ID)
	}
	if *wakeAt != "" {
		fireAt, err := time.Parse(time.RFC3339, *wakeAt)
		if err != nil {
			return fmt.Errorf("parse --wake-at: %w", err)
		}
		tr := store.WakeTrigger{
			OwnerKind:  trigger.OwnerTask,
			OwnerID:    t.ID,
			Kind:       string(trigger.KindDate),
			ConfigJSON: trigger.DateConfigJSON(fireAt),
			CreatedAt:  now,
		}
		if err := st.CreateTrigger(&tr); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Registered date trigger: %s\n", tr.ID)
	}

	fmt.Fprintf(os.Stdout, "Snoozed task %s until %s (deadline %s)\n",
		t.ID, t.SnoozedUntil.Format(time.RFC3339), t.SnoozeDeadline.Format(time.RFC3339))
	return nil
}

func runTaskTransition(args []string, workspacePath, transition string) error {
	id, remaining := popID(args)
	fs := flag.NewFlagSet("task "+transition, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(remaining); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("task id is required")
	}

	resolved, err := resolveWorkspaceAndOverrides(workspacePath, workspaceOverrides{})
	if err != nil {
		return err
	}
	st, err := openState(resolved)
	if err != nil {
		return err
	}
	defer st.Close()

	t, err := st.GetTask(id)
	if err != nil {
		return err
	}

	now := time.Now()
	switch transition {
	case "start":
		err = task.Start(t, now)
	case "complete":
		err = task.Complete(t, now)
	case "skip":
		err = task.Skip(t, now)
	case "dismiss":
		err = task.DismissWithoutChoice(t, now)
	case "cancel":
		err = task.Cancel(t, now)
	case "wake":
		err = task.Wake(t, now)
	default:
		return fmt.Errorf("unknown transition: %s", transition)
	}
	if err != nil {
		return err
	}

	if err := st.UpdateTask(*t); err != nil {
		return err
	}

	logger := audit.NewLogger(resolved.AuditDB)
	_ = logger.LogEvent("cli", "task_"+transition, map[string]any{
		"task_id":     t.ID,
		"customer_id": t.CustomerID,
		"status":      string(t.Status),
	})

	fmt.Fprintf(os.Stdout, "Task %s is now %s\n", t.ID, t.Status)
	return nil
}

func popID(args []string) (string, []string) {
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		return args[0], args[1:]
	}
	return "", args
}

func runTrigger(args []string, workspacePath string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		return fmt.Errorf("%s trigger: missing subcommand", appName)
	}

	switch args[0] {
	case "add":
		return runTriggerAdd(args[1:], workspacePath)
	case "list":
		return runTriggerList(args[1:], workspacePath)
	case "evaluate":
		return runTriggerEvaluate(args[1:], workspacePath)
	default:
		return fmt.Errorf("%s trigger: unknown subcommand %q", appName, args[0])
	}
}

func runTriggerAdd(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("trigger add", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	ownerKind := fs.String("owner-kind", trigger.OwnerTask, "Owner kind: task or workflow")
	ownerID := fs.String("owner", "", "Owner id the trigger wakes")
	kind := fs.String("kind", "", "Trigger kind: date or event")
	fireAt := fs.String("at", "", "Fire time for date triggers (RFC3339)")
	eventKey := fs.String("event", "", "Event key for event triggers")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *ownerID == "" {
		return fmt.Errorf("--owner is required")
	}

	var configJSON string
	switch trigger.Kind(*kind) {
	case trigger.KindDate:
		if *fireAt == "" {
			return fmt.Errorf("--at is required for date triggers")
		}
		parsed, err := time.Parse(time.RFC3339, *fireAt)
		if err != nil {
			return fmt.Errorf("parse --at: %w", err)
		}
		configJSON = trigger.DateConfigJSON(parsed)
	case trigger.KindEvent:
		if *eventKey == "" {
			return fmt.Errorf("--event is required for event triggers")
		}
		configJSON = trigger.EventConfigJSON(*eventKey)
	default:
		return fmt.Errorf("--kind must be date or event")
	}
	if _, err := trigger.ParseConfig(trigger.Kind(*kind), configJSON); err != nil {
		return err
	}

	resolved, err := resolveWorkspaceAndOverrides(workspacePath, workspaceOverrides{})
	if err != nil {
		return err
	}
	if err := resolved.Workspace.EnsureDirs(); err != nil {
		return err
	}
	st, err := openState(resolved)
	if err != nil {
		return err
	}
	defer st.Close()

	tr := store.WakeTrigger{
		OwnerKind:  *ownerKind,
		OwnerID:    *ownerID,
		Kind:       *kind,
		ConfigJSON: configJSON,
		CreatedAt:  time.Now(),
	}
	if err := st.CreateTrigger(&tr); err != nil {
		return err
	}

	logger := audit.NewLogger(resolved.AuditDB)
	_ = logger.LogEvent("cli", "trigger_added", map[string]any{
		"trigger_id": tr.ID,
		"owner_kind": tr.OwnerKind,
		"owner_id":   tr.OwnerID,
		"kind":       tr.Kind,
	})

	fmt.Fprintf(os.Stdout, "Created trigger: %s\n", tr.ID)
	return nil
}

func runTriggerList(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("trigger list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	limit := fs.Int("limit", 50, "Maximum triggers to list")
	asJSON := fs.Bool("json", false, "Emit JSON")

	if err := fs.Parse(args); err != nil {
		return err
	}

	resolved, err := resolveWorkspaceAndOverrides(workspacePath, workspaceOverrides{})
	if err != nil {
		return err
	}
	st, err := openState(resolved)
	if err != nil {
		return err
	}
	defer st.Close()

	triggers, err := st.ListTriggers(*limit)
	if err != nil {
		return err
	}
	if *asJSON {
		return emitJSON(triggers)
	}
	if len(triggers) == 0 {
		fmt.Fprintln(os.Stdout, "No triggers.")
		return nil
	}
	for _, tr := range triggers {
		state := "pending"
		if tr.IsFired {
			state = "fired"
		}
		line := fmt.Sprintf("%s [%s/%s] %s %s", tr.ID, tr.Kind, state, tr.OwnerKind, tr.OwnerID)
		if tr.LastError != "" {
			line += " error=" + tr.LastError
		}
		fmt.Fprintln(os.Stdout, line)
	}
	return nil
}

func runTriggerEvaluate(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("trigger evaluate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	notifications := fs.Bool("notify", false, "Send desktop notifications for fired triggers")

	if err := fs.Parse(args); err != nil {
		return err
	}

	resolved, err := resolveWorkspaceAndOverrides(workspacePath, workspaceOverrides{})
	if err != nil {
		return err
	}
	st, err := openState(resolved)
	if err != nil {
		return err
	}
	defer st.Close()

	var notifier notify.Notifier = notify.Log{}
	if *notifications {
		notifier = &notify.Desktop{Enabled: true}
	}
	eval := trigger.NewEvaluator(st, notifier, audit.NewLogger(resolved.AuditDB))

	fired, err := eval.EvaluateDue(context.Background(), time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Fired %d trigger(s)\n", len(fired))
	for _, id := range fired {
		fmt.Fprintf(os.Stdout, "  %s\n", id)
	}
	return nil
}

func runEvent(args []string, workspacePath string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		return fmt.Errorf("%s event: missing subcommand", appName)
	}

	switch args[0] {
	case "record":
		return runEventRecord(args[1:], workspacePath)
	case "list":
		return runEventList(args[1:], workspacePath)
	default:
		return fmt.Errorf("%s event: unknown subcommand %q", appName, args[0])
	}
}

func runEventRecord(args []string, workspacePath string) error {
	key, remaining := popID(args)
	fs := flag.NewFlagSet("event record", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	payloadJSON := fs.String("payload-json", "", "Optional event payload as JSON")

	if err := fs.Parse(remaining); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("event key is required")
	}
	if *payloadJSON != "" {
		var scratch map[string]any
		if err := json.Unmarshal([]byte(*payloadJSON), &scratch); err != nil {
			return fmt.Errorf("parse --payload-json: %w", err)
		}
	}

	resolved, err := resolveWorkspaceAndOverrides(workspacePath, workspaceOverrides{})
	if err != nil {
		return err
	}
	if err := resolved.Workspace.EnsureDirs(); err != nil {
		return err
	}
	st, err := openState(resolved)
	if err != nil {
		return err
	}
	defer st.Close()

	id, err := st.RecordEvent(key, *payloadJSON, time.Now())
	if err != nil {
		return err
	}

	logger := audit.NewLogger(resolved.AuditDB)
	_ = logger.LogEvent("cli", "event_recorded", map[string]any{
		"event_id":  id,
		"event_key": key,
	})

	fmt.Fprintf(os.Stdout, "Recorded event: %s\n", id)
	return nil
}

func runEventList(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("event list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	key := fs.String("key", "", "Filter by event key")
	limit := fs.Int("limit", 50, "Maximum events to list")
	asJSON := fs.Bool("json", false, "Emit JSON")

	if err := fs.Parse(args); err != nil {
		return err
	}

	resolved, err := resolveWorkspaceAndOverrides(workspacePath, workspaceOverrides{})
	if err != nil {
		return err
	}
	st, err := openState(resolved)
	if err != nil {
		return err
	}
	defer st.Close()

	events, err := st.ListEvents(*key, *limit)
	if err != nil {
		return err
	}
	if *asJSON {
		return emitJSON(events)
	}
	if len(events) == 0 {
		fmt.Fprintln(os.Stdout, "No events.")
		return nil
	}
	for _, e := range events {
		fmt.Fprintf(os.Stdout, "%s %s %s\n", e.OccurredAt.Format(time.RFC3339), e.EventKey, e.ID)
	}
	return nil
}

func runConfig(args []string, workspacePath string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		return fmt.Errorf("%s config: missing subcommand", appName)
	}

	switch args[0] {
	case "get":
		return runConfigGet(args[1:], workspacePath)
	case "set":
		return runConfigSet(args[1:], workspacePath)
	case "list":
		return runConfigList(args[1:], workspacePath)
	default:
		return fmt.Errorf("%s config: unknown subcommand %q", appName, args[0])
	}
}

func runConfigGet(args []string, workspacePath string) error {
	key, remaining := popID(args)
	fs := flag.NewFlagSet("config get", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(remaining); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("config key is required")
	}

	resolved, err := resolveWorkspaceAndOverrides(workspacePath, workspaceOverrides{})
	if err != nil {
		return err
	}
	st, err := openState(resolved)
	if err != nil {
		return err
	}
	defer st.Close()

	raw, err := configStore(st, resolved).Get(key)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(raw))
	return nil
}

func runConfigSet(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("config set", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	key := fs.String("key", "", "Config key to set")
	value := fs.String("value", "", "New value as JSON")
	actor := fs.String("actor", "cli", "Actor recorded in the audit log")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *key == "" {
		return fmt.Errorf("--key is required")
	}
	if *value == "" {
		return fmt.Errorf("--value is required")
	}

	resolved, err := resolveWorkspaceAndOverrides(workspacePath, workspaceOverrides{})
	if err != nil {
		return err
	}
	if err := resolved.Workspace.EnsureDirs(); err != nil {
		return err
	}
	st, err := openState(resolved)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := configStore(st, resolved).Update(*key, *value, *actor); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Updated %s\n", *key)
	return nil
}

func runConfigList(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("config list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	asJSON := fs.Bool("json", false, "Emit JSON")

	if err := fs.Parse(args); err != nil {
		return err
	}

	resolved, err := resolveWorkspaceAndOverrides(workspacePath, workspaceOverrides{})
	if err != nil {
		return err
	}
	st, err := openState(resolved)
	if err != nil {
		return err
	}
	defer st.Close()

	all, err := configStore(st, resolved).GetAll()
	if err != nil {
		return err
	}
	if *asJSON {
		return emitJSON(all)
	}
	for _, key := range scoringcfg.Keys() {
		fmt.Fprintf(os.Stdout, "%s = %s\n", key, string(all[key]))
	}
	return nil
}

func runDaemon(args []string, workspacePath string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		return fmt.Errorf("%s daemon: missing subcommand", appName)
	}

	switch args[0] {
	case "run":
		return runDaemonRun(args[1:], workspacePath)
	case "sweep":
		return runDaemonSweep(args[1:], workspacePath)
	default:
		return fmt.Errorf("%s daemon: unknown subcommand %q", appName, args[0])
	}
}

func daemonFromFlags(workspacePath string, pollInterval, decisionGrace time.Duration, notifications bool) (*daemon.Daemon, *resolvedWorkspace, error) {
	resolved, err := resolveWorkspaceAndOverrides(workspacePath, workspaceOverrides{})
	if err != nil {
		return nil, nil, err
	}
	if err := resolved.Workspace.EnsureDirs(); err != nil {
		return nil, nil, err
	}

	d, err := daemon.New(daemon.Config{
		Workspace:     resolved.Workspace,
		StorePath:     resolved.StateDB,
		PollInterval:  pollInterval,
		DecisionGrace: decisionGrace,
		Notifications: notifications,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create daemon: %w", err)
	}
	return d, resolved, nil
}

func runDaemonRun(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("daemon run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	pollInterval := fs.Duration("poll", 30*time.Second, "Poll interval between sweeps")
	decisionGrace := fs.Duration("decision-grace", daemon.DefaultDecisionGrace, "How long an unanswered decision waits before auto-skip")
	notifications := fs.Bool("notify", false, "Send desktop notifications")

	if err := fs.Parse(args); err != nil {
		return err
	}

	d, resolved, err := daemonFromFlags(workspacePath, *pollInterval, *decisionGrace, *notifications)
	if err != nil {
		return err
	}
	defer d.Close()

	fmt.Fprintf(os.Stdout, "Starting daemon for workspace: %s\n", resolved.Workspace.Root)
	fmt.Fprintf(os.Stdout, "Poll interval: %s, decision grace: %s\n", *pollInterval, *decisionGrace)

	return d.Run(context.Background())
}

func runDaemonSweep(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("daemon sweep", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	decisionGrace := fs.Duration("decision-grace", daemon.DefaultDecisionGrace, "How long an unanswered decision waits before auto-skip")
	notifications := fs.Bool("notify", false, "Send desktop notifications")

	if err := fs.Parse(args); err != nil {
		return err
	}

	d, _, err := daemonFromFlags(workspacePath, 0, *decisionGrace, *notifications)
	if err != nil {
		return err
	}
	defer d.Close()

	d.RunSweeps(context.Background(), time.Now())
	fmt.Fprintln(os.Stdout, "Sweeps complete.")
	return nil
}

func runAudit(args []string, workspacePath string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		return fmt.Errorf("%s audit: missing subcommand", appName)
	}

	switch args[0] {
	case "recent":
		return runAuditRecent(args[1:], workspacePath)
	default:
		return fmt.Errorf("%s audit: unknown subcommand %q", appName, args[0])
	}
}

func runAuditRecent(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("audit recent", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	limit := fs.Int("limit", 20, "Maximum events to list")
	auditDB := fs.String("audit-db", "", "Path to audit SQLite DB (default: <workspace>/audit/audit.sqlite)")
	asJSON := fs.Bool("json", false, "Emit JSON")

	if err := fs.Parse(args); err != nil {
		return err
	}

	resolved, err := resolveWorkspaceAndOverrides(workspacePath, workspaceOverrides{AuditDB: *auditDB})
	if err != nil {
		return err
	}

	logger := audit.NewLogger(resolved.AuditDB)
	events, err := logger.ListRecent(*limit)
	if err != nil {
		return err
	}
	if *asJSON {
		return emitJSON(events)
	}
	if len(events) == 0 {
		fmt.Fprintln(os.Stdout, "No audit events.")
		return nil
	}
	for _, e := range events {
		fmt.Fprintf(os.Stdout, "%s %-10s %s %s\n", e.Timestamp.Format(time.RFC3339), e.Actor, e.Type, e.PayloadJSON)
	}
	return nil
}

func writeFileIfMissing(path string, contents string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	return os.WriteFile(path, []byte(contents), 0o644)
}

const minimalCustomerBookTemplate = `customers:
  - id: cust-acme
    name: Acme Corp
    arr: 120000
    renewal_id: ren-acme-2026
    renewal_date: 2026-11-30
    account_plan: invest
    opportunity_score: 72
    risk_score: 35
    owner_id: csm-1
    active_workflows: 2

owners:
  - id: csm-1
    experience_level: senior
    current_workload: 5
`
