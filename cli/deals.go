// ABOUTME: Deal CLI commands
// ABOUTME: Records deals for closed leads, lists them, and prints the per-stage pipeline summary
package cli

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/harperreed/pipedash/dashboard"
	"github.com/harperreed/pipedash/models"
	"github.com/harperreed/pipedash/pipeline"
)

// AddDealCommand records a deal against a closed lead.
func AddDealCommand(ctx context.Context, d *dashboard.Dashboard, args []string) error {
	fs := flag.NewFlagSet("add-deal", flag.ContinueOnError)
	fs.SetOutput(out)
	lead := fs.String("lead", "", "Closed lead ID (required)")
	amount := fs.Int64("amount", 0, "Deal amount in cents")
	currency := fs.String("currency", "USD", "Currency code")
	dealType := fs.String("type", string(models.DealConsulting), "Consulting, OnlineTraining, or Offsite")
	project := fs.String("project", "", "Project ID")
	start := fs.String("start", "", "Start date (YYYY-MM-DD)")
	end := fs.String("end", "", "End date (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *lead == "" {
		return fmt.Errorf("--lead is required")
	}
	leadID, err := parseOptionalID(*lead, "lead")
	if err != nil {
		return err
	}

	input := dashboard.DealInput{
		TotalAmount: *amount,
		Currency:    *currency,
		Type:        models.DealType(*dealType),
	}
	for _, t := range []models.DealType{models.DealConsulting, models.DealOnlineTraining, models.DealOffsite} {
		if strings.EqualFold(string(t), *dealType) {
			input.Type = t
		}
	}
	if input.ProjectID, err = parseOptionalID(*project, "project"); err != nil {
		return err
	}
	if input.StartDate, err = parseDate(*start); err != nil {
		return err
	}
	if input.EndDate, err = parseDate(*end); err != nil {
		return err
	}

	deal, err := d.CaptureDeal(ctx, *leadID, input)
	if err != nil {
		return describe(err)
	}

	_, _ = fmt.Fprintf(out, "✓ Deal created: %s %s (ID: %s)\n", models.FormatAmount(deal.TotalAmount, deal.Currency), deal.Type, deal.ID)
	_, _ = fmt.Fprintf(out, "  Lead: %s\n", leadName(d, leadID))
	return nil
}

// ListDealsCommand lists deals with their leads.
func ListDealsCommand(ctx context.Context, d *dashboard.Dashboard, args []string) error {
	fs := flag.NewFlagSet("list-deals", flag.ContinueOnError)
	fs.SetOutput(out)
	currency := fs.String("currency", "", "Only show this currency")
	if err := fs.Parse(args); err != nil {
		return err
	}

	deals := d.Store().Deals()
	if len(deals) == 0 {
		_, _ = fmt.Fprintln(out, "No deals found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "LEAD\tAMOUNT\tTYPE\tCREATED\tID")
	_, _ = fmt.Fprintln(w, "----\t------\t----\t-------\t--")
	for _, deal := range deals {
		if *currency != "" && !strings.EqualFold(deal.Currency, *currency) {
			continue
		}
		leadID := deal.LeadID
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			leadName(d, &leadID),
			models.FormatAmount(deal.TotalAmount, deal.Currency),
			deal.Type,
			deal.CreatedAt.Format("2006-01-02"),
			deal.ID)
	}
	_ = w.Flush()
	return nil
}

// DeleteDealCommand removes a deal.
func DeleteDealCommand(ctx context.Context, d *dashboard.Dashboard, args []string) error {
	id, err := parseID(args, "deal")
	if err != nil {
		return err
	}
	if err := d.DeleteDeal(ctx, id); err != nil {
		return describe(err)
	}
	_, _ = fmt.Fprintf(out, "✓ Deal deleted: %s\n", id)
	return nil
}

// SummaryCommand prints lead counts and deal totals per stage.
func SummaryCommand(ctx context.Context, d *dashboard.Dashboard, args []string) error {
	summary := pipeline.Summarize(d.Store().Leads(), d.Store().Deals())

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STAGE\tLEADS\tDEAL VALUE")
	_, _ = fmt.Fprintln(w, "-----\t-----\t----------")
	for _, st := range summary {
		var totals []string
		for _, cur := range st.Currencies() {
			totals = append(totals, models.FormatAmount(st.DealValue[cur], cur))
		}
		value := "-"
		if len(totals) > 0 {
			value = strings.Join(totals, ", ")
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\n", st.Stage, st.Leads, value)
	}
	_ = w.Flush()
	return nil
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return &t, nil
}
