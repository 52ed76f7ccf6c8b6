// ABOUTME: Follow-up task CLI commands
// ABOUTME: Lists tasks with overdue markers, adds tasks, and changes task status
package cli

import (
	"context"
	"flag"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/harperreed/pipedash/dashboard"
	"github.com/harperreed/pipedash/models"
)

const dueSoonDays = 3

func taskIndicator(t models.Task) string {
	switch {
	case t.IsOverdue():
		return "🔴"
	case t.IsDueSoon(dueSoonDays):
		return "🟡"
	default:
		return "🟢"
	}
}

// TaskListCommand lists open tasks, soonest due first.
func TaskListCommand(ctx context.Context, d *dashboard.Dashboard, args []string) error {
	fs := flag.NewFlagSet("tasks", flag.ContinueOnError)
	fs.SetOutput(out)
	overdueOnly := fs.Bool("overdue-only", false, "Show only overdue tasks")
	all := fs.Bool("all", false, "Include done and cancelled tasks")
	lead := fs.String("lead", "", "Only tasks for this lead ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	leadID, err := parseOptionalID(*lead, "lead")
	if err != nil {
		return err
	}

	var tasks []models.Task
	for _, rec := range d.Store().List(models.KindTask) {
		t, ok := rec.(models.Task)
		if !ok {
			continue
		}
		if leadID != nil && (t.LeadID == nil || *t.LeadID != *leadID) {
			continue
		}
		if !*all && (t.Status == models.TaskStatusDone || t.Status == models.TaskStatusCancelled) {
			continue
		}
		if *overdueOnly && !t.IsOverdue() {
			continue
		}
		tasks = append(tasks, t)
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i].DueAt, tasks[j].DueAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})

	if len(tasks) == 0 {
		_, _ = fmt.Fprintln(out, "No tasks found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TASK\tSTATUS\tDUE\tLEAD\tID")
	_, _ = fmt.Fprintln(w, "----\t------\t---\t----\t--")
	for _, t := range tasks {
		due := "-"
		if t.DueAt != nil {
			due = t.DueAt.Format("2006-01-02")
		}
		_, _ = fmt.Fprintf(w, "%s %s\t%s\t%s\t%s\t%s\n",
			taskIndicator(t), t.Title, t.Status, due, leadName(d, t.LeadID), t.ID)
	}
	_ = w.Flush()
	return nil
}

// AddTaskCommand creates a follow-up task.
func AddTaskCommand(ctx context.Context, d *dashboard.Dashboard, args []string) error {
	fs := flag.NewFlagSet("add-task", flag.ContinueOnError)
	fs.SetOutput(out)
	title := fs.String("title", "", "Task title (required)")
	lead := fs.String("lead", "", "Lead ID")
	assignee := fs.String("assignee", "", "Assignee user ID")
	due := fs.String("due", "", "Due date (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	leadID, err := parseOptionalID(*lead, "lead")
	if err != nil {
		return err
	}
	assigneeID, err := parseOptionalID(*assignee, "assignee")
	if err != nil {
		return err
	}
	dueAt, err := parseDate(*due)
	if err != nil {
		return err
	}

	task, err := d.CreateTask(ctx, *title, leadID, assigneeID, dueAt)
	if err != nil {
		return describe(err)
	}
	_, _ = fmt.Fprintf(out, "✓ Task created: %s (ID: %s)\n", task.Title, task.ID)
	return nil
}

// TaskStatusCommand moves a task to a new status.
func TaskStatusCommand(ctx context.Context, d *dashboard.Dashboard, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: task-status <task-id> <todo|in_progress|done|cancelled>")
	}
	id, err := parseID(args, "task")
	if err != nil {
		return err
	}
	task, err := d.TransitionTask(ctx, id, args[1])
	if err != nil {
		return describe(err)
	}
	_, _ = fmt.Fprintf(out, "✓ %s is now %s\n", task.Title, task.Status)
	return nil
}
