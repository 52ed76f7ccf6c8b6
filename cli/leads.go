// ABOUTME: Lead CLI commands
// ABOUTME: List, add, edit, move, trash, restore, purge, and comment on leads
package cli

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"

	"github.com/harperreed/pipedash/dashboard"
	"github.com/harperreed/pipedash/models"
	"github.com/harperreed/pipedash/pipeline"
)

// ListLeadsCommand prints the board, one row per lead, in column order.
func ListLeadsCommand(ctx context.Context, d *dashboard.Dashboard, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(out)
	query := fs.String("query", "", "Search by name, email, or company")
	stage := fs.String("stage", "", "Only show this stage")
	owner := fs.String("owner", "", "Filter by owner ID")
	project := fs.String("project", "", "Filter by project ID")
	sortBy := fs.String("sort", string(pipeline.SortLastName), "Sort by lastName or createdAt")
	desc := fs.Bool("desc", false, "Sort descending")
	trash := fs.Bool("trash", false, "List the trash instead of the board")
	if err := fs.Parse(args); err != nil {
		return err
	}

	filter := pipeline.Filter{Search: *query}
	var err error
	if filter.OwnerID, err = parseOptionalID(*owner, "owner"); err != nil {
		return err
	}
	if filter.ProjectID, err = parseOptionalID(*project, "project"); err != nil {
		return err
	}
	sort := pipeline.Sort{Field: pipeline.SortField(*sortBy), Direction: pipeline.Asc}
	if *desc {
		sort.Direction = pipeline.Desc
	}

	var only models.Stage
	if *stage != "" {
		if only, err = models.ParseStage(*stage); err != nil {
			return err
		}
	}

	leads := d.Store().Leads()
	projects := d.Store().Projects()

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STAGE\tNAME\tCOMPANY\tEMAIL\tID")
	_, _ = fmt.Fprintln(w, "-----\t----\t-------\t-----\t--")

	count := 0
	if *trash || only == models.StageTrash {
		for _, l := range pipeline.TrashList(leads, projects, filter, sort) {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", l.Stage, l.FullName(), orDash(l.Company), orDash(l.Email), l.ID)
			count++
		}
	} else {
		board := pipeline.Build(leads, projects, filter, sort)
		for _, col := range board.Columns {
			if only != "" && col.Stage != only {
				continue
			}
			for _, l := range col.Leads {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", col.Stage, l.FullName(), orDash(l.Company), orDash(l.Email), l.ID)
				count++
			}
		}
	}
	_ = w.Flush()

	if count == 0 {
		_, _ = fmt.Fprintln(out, "No leads found")
	}
	return nil
}

// AddLeadCommand creates a lead.
func AddLeadCommand(ctx context.Context, d *dashboard.Dashboard, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	fs.SetOutput(out)
	first := fs.String("first", "", "First name")
	last := fs.String("last", "", "Last name")
	email := fs.String("email", "", "Email address")
	phone := fs.String("phone", "", "Phone number")
	company := fs.String("company", "", "Company name")
	owner := fs.String("owner", "", "Owner user ID")
	project := fs.String("project", "", "Project ID")
	stage := fs.String("stage", string(models.StageIdentified), "Initial pipeline stage")
	linkedin := fs.String("linkedin", "", "LinkedIn URL")
	website := fs.String("website", "", "Website URL")
	if err := fs.Parse(args); err != nil {
		return err
	}

	input := dashboard.LeadInput{
		FirstName:   *first,
		LastName:    *last,
		Email:       *email,
		Phone:       *phone,
		Company:     *company,
		SocialLinks: models.SocialLinks{LinkedIn: *linkedin, Website: *website},
	}
	var err error
	if input.OwnerID, err = parseOptionalID(*owner, "owner"); err != nil {
		return err
	}
	if input.ProjectID, err = parseOptionalID(*project, "project"); err != nil {
		return err
	}
	if input.Stage, err = models.ParseStage(*stage); err != nil {
		return err
	}

	lead, err := d.CreateLead(ctx, input)
	if err != nil {
		return describe(err)
	}

	_, _ = fmt.Fprintf(out, "✓ Lead created: %s (ID: %s)\n", lead.FullName(), lead.ID)
	_, _ = fmt.Fprintf(out, "  Stage: %s\n", lead.Stage)
	if lead.Company != "" {
		_, _ = fmt.Fprintf(out, "  Company: %s\n", lead.Company)
	}
	return nil
}

// EditLeadCommand sends only the flags that were given.
func EditLeadCommand(ctx context.Context, d *dashboard.Dashboard, args []string) error {
	fs := flag.NewFlagSet("edit", flag.ContinueOnError)
	fs.SetOutput(out)
	first := fs.String("first", "", "First name")
	last := fs.String("last", "", "Last name")
	email := fs.String("email", "", "Email address")
	phone := fs.String("phone", "", "Phone number")
	company := fs.String("company", "", "Company name")
	owner := fs.String("owner", "", "Owner user ID")
	project := fs.String("project", "", "Project ID")
	if err := fs.Parse(args); err != nil {
		return err
	}

	id, err := parseID(fs.Args(), "lead")
	if err != nil {
		return err
	}

	var patch dashboard.LeadPatch
	var visitErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "first":
			patch.FirstName = first
		case "last":
			patch.LastName = last
		case "email":
			patch.Email = email
		case "phone":
			patch.Phone = phone
		case "company":
			patch.Company = company
		case "owner":
			ownerID, err := parseOptionalID(*owner, "owner")
			if err != nil {
				visitErr = err
			}
			patch.OwnerID = ownerID
		case "project":
			projectID, err := parseOptionalID(*project, "project")
			if err != nil {
				visitErr = err
			}
			patch.ProjectID = projectID
		}
	})
	if visitErr != nil {
		return visitErr
	}

	lead, err := d.UpdateLead(ctx, id, patch)
	if err != nil {
		return describe(err)
	}
	_, _ = fmt.Fprintf(out, "✓ Lead updated: %s\n", lead.FullName())
	return nil
}

// MoveLeadCommand moves a lead to another pipeline stage.
func MoveLeadCommand(ctx context.Context, d *dashboard.Dashboard, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: move <lead-id> <stage>")
	}
	id, err := parseID(args, "lead")
	if err != nil {
		return err
	}
	stage, err := models.ParseStage(args[1])
	if err != nil {
		return err
	}
	if stage == models.StageTrash {
		return fmt.Errorf("use 'trash' to move a lead to the trash")
	}

	outcome, err := d.MoveLead(ctx, id, stage)
	if err != nil {
		return describe(err)
	}
	if !outcome.Issued {
		_, _ = fmt.Fprintf(out, "%s is already in %s\n", outcome.Lead.FullName(), stage)
		return nil
	}

	_, _ = fmt.Fprintf(out, "✓ Moved %s to %s\n", outcome.Lead.FullName(), outcome.Lead.Stage)
	for _, pending := range d.PendingCaptures() {
		if pending.ID == id {
			_, _ = fmt.Fprintf(out, "  Record the deal: pipedash add-deal --lead %s --amount <cents>\n", id)
		}
	}
	return nil
}

// TrashLeadCommand soft-deletes a lead after confirmation.
func TrashLeadCommand(ctx context.Context, d *dashboard.Dashboard, args []string) error {
	fs := flag.NewFlagSet("trash", flag.ContinueOnError)
	fs.SetOutput(out)
	yes := fs.Bool("yes", false, "Skip the confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := parseID(fs.Args(), "lead")
	if err != nil {
		return err
	}

	var promptErr error
	outcome, err := d.SoftDeleteLead(ctx, id, func(lead models.Lead) bool {
		ok, err := confirm(fmt.Sprintf("Move %s to the trash?", lead.FullName()), *yes)
		promptErr = err
		return ok
	})
	if promptErr != nil {
		return promptErr
	}
	if err != nil {
		return describe(err)
	}
	if !outcome.Issued {
		_, _ = fmt.Fprintln(out, "Cancelled")
		return nil
	}
	_, _ = fmt.Fprintf(out, "✓ Moved %s to the trash\n", outcome.Lead.FullName())
	return nil
}

// RestoreLeadCommand brings a lead back from the trash.
func RestoreLeadCommand(ctx context.Context, d *dashboard.Dashboard, args []string) error {
	id, err := parseID(args, "lead")
	if err != nil {
		return err
	}
	lead, err := d.RestoreLead(ctx, id)
	if err != nil {
		return describe(err)
	}
	_, _ = fmt.Fprintf(out, "✓ Restored %s to %s\n", lead.FullName(), lead.Stage)
	return nil
}

// PurgeLeadCommand permanently deletes a trashed lead with its deals and comments.
func PurgeLeadCommand(ctx context.Context, d *dashboard.Dashboard, args []string) error {
	fs := flag.NewFlagSet("purge", flag.ContinueOnError)
	fs.SetOutput(out)
	yes := fs.Bool("yes", false, "Skip the confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := parseID(fs.Args(), "lead")
	if err != nil {
		return err
	}
	lead, ok := d.Store().Lead(id)
	if !ok {
		return fmt.Errorf("lead not found: %s", id)
	}

	ok, err = confirm(fmt.Sprintf("Permanently delete %s? This cannot be undone.", lead.FullName()), *yes)
	if err != nil {
		return err
	}
	if !ok {
		_, _ = fmt.Fprintln(out, "Cancelled")
		return nil
	}
	if err := d.PurgeLead(ctx, id); err != nil {
		return describe(err)
	}
	_, _ = fmt.Fprintf(out, "✓ Deleted %s\n", lead.FullName())
	return nil
}

// ShowLeadCommand prints one lead with its deals, comments, and tasks.
func ShowLeadCommand(ctx context.Context, d *dashboard.Dashboard, args []string) error {
	id, err := parseID(args, "lead")
	if err != nil {
		return err
	}
	lead, ok := d.Store().Lead(id)
	if !ok {
		return fmt.Errorf("lead not found: %s", id)
	}

	_, _ = fmt.Fprintf(out, "%s (%s)\n", lead.FullName(), lead.Stage)
	_, _ = fmt.Fprintf(out, "  Company: %s\n", orDash(lead.Company))
	_, _ = fmt.Fprintf(out, "  Email:   %s\n", orDash(lead.Email))
	_, _ = fmt.Fprintf(out, "  Phone:   %s\n", orDash(lead.Phone))

	if deals := d.Store().DealsForLead(id); len(deals) > 0 {
		_, _ = fmt.Fprintln(out, "\nDeals:")
		for _, deal := range deals {
			_, _ = fmt.Fprintf(out, "  %s  %s  (ID: %s)\n", models.FormatAmount(deal.TotalAmount, deal.Currency), deal.Type, deal.ID)
		}
	}
	if comments := d.Comments(id); len(comments) > 0 {
		_, _ = fmt.Fprintln(out, "\nComments:")
		for _, c := range comments {
			_, _ = fmt.Fprintf(out, "  [%s] %s\n", c.CreatedAt.Format("2006-01-02 15:04"), c.Body)
		}
	}
	if tasks := d.Store().TasksForLead(id); len(tasks) > 0 {
		_, _ = fmt.Fprintln(out, "\nTasks:")
		for _, t := range tasks {
			_, _ = fmt.Fprintf(out, "  %s %s (%s)\n", taskIndicator(t), t.Title, t.Status)
		}
	}
	return nil
}

// CommentCommand adds a comment to a lead.
func CommentCommand(ctx context.Context, d *dashboard.Dashboard, args []string) error {
	fs := flag.NewFlagSet("comment", flag.ContinueOnError)
	fs.SetOutput(out)
	author := fs.String("author", "", "Author user ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	id, err := parseID(rest, "lead")
	if err != nil {
		return err
	}
	authorID, err := parseOptionalID(*author, "author")
	if err != nil {
		return err
	}

	body := strings.Join(rest[1:], " ")
	c, err := d.AddComment(ctx, id, body, authorID)
	if err != nil {
		return describe(err)
	}
	_, _ = fmt.Fprintf(out, "✓ Comment added (ID: %s)\n", c.ID)
	return nil
}

// leadName resolves a lead id for display.
func leadName(d *dashboard.Dashboard, id *uuid.UUID) string {
	if id == nil {
		return "-"
	}
	if l, ok := d.Store().Lead(*id); ok {
		return l.FullName()
	}
	return id.String()
}
