// ABOUTME: Project membership CLI command
// ABOUTME: Adds and removes leads from a project as a diff against the membership it read
package cli

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/harperreed/pipedash/dashboard"
)

// idList collects repeated or comma-separated lead IDs.
type idList []uuid.UUID

func (l *idList) String() string {
	parts := make([]string, 0, len(*l))
	for _, id := range *l {
		parts = append(parts, id.String())
	}
	return strings.Join(parts, ",")
}

func (l *idList) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := uuid.Parse(part)
		if err != nil {
			return fmt.Errorf("invalid lead ID %q: %w", part, err)
		}
		*l = append(*l, id)
	}
	return nil
}

// ProjectMembersCommand edits which leads belong to a project.
func ProjectMembersCommand(ctx context.Context, d *dashboard.Dashboard, args []string) error {
	fs := flag.NewFlagSet("members", flag.ContinueOnError)
	fs.SetOutput(out)
	var add, remove idList
	fs.Var(&add, "add", "Lead IDs to add (repeatable or comma-separated)")
	fs.Var(&remove, "remove", "Lead IDs to remove (repeatable or comma-separated)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	projectID, err := parseID(fs.Args(), "project")
	if err != nil {
		return err
	}

	edit, err := d.BeginMembershipEdit(projectID)
	if err != nil {
		return err
	}

	dropped := map[uuid.UUID]bool{}
	for _, id := range remove {
		dropped[id] = true
	}
	members := make([]uuid.UUID, 0, len(edit.Snapshot)+len(add))
	seen := map[uuid.UUID]bool{}
	for _, id := range append(append([]uuid.UUID{}, edit.Snapshot...), add...) {
		if dropped[id] || seen[id] {
			continue
		}
		seen[id] = true
		members = append(members, id)
	}

	project, err := d.CommitMembership(ctx, edit, members)
	if err != nil {
		return describe(err)
	}

	_, _ = fmt.Fprintf(out, "✓ %s now has %d leads\n", project.Title, len(project.LeadIDs))
	for _, id := range project.LeadIDs {
		id := id
		_, _ = fmt.Fprintf(out, "  %s\n", leadName(d, &id))
	}
	return nil
}
