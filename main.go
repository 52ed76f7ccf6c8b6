// ABOUTME: Entry point for the pipedash sales pipeline client
// ABOUTME: Loads config, wires backend, stream, and journal into a dashboard, and routes CLI commands
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/oauth2"

	"github.com/harperreed/pipedash/backend"
	"github.com/harperreed/pipedash/cli"
	"github.com/harperreed/pipedash/config"
	"github.com/harperreed/pipedash/dashboard"
	"github.com/harperreed/pipedash/journal"
	"github.com/harperreed/pipedash/logger"
)

const version = "0.1.0"

type commandFunc func(ctx context.Context, d *dashboard.Dashboard, args []string) error

// streaming commands keep the push stream and journal open while they run.
var streaming = map[string]bool{
	"board": true,
	"watch": true,
}

var commands = map[string]commandFunc{
	"board":       cli.BoardCommand,
	"watch":       cli.WatchCommand,
	"list":        cli.ListLeadsCommand,
	"show":        cli.ShowLeadCommand,
	"add":         cli.AddLeadCommand,
	"edit":        cli.EditLeadCommand,
	"move":        cli.MoveLeadCommand,
	"trash":       cli.TrashLeadCommand,
	"restore":     cli.RestoreLeadCommand,
	"purge":       cli.PurgeLeadCommand,
	"comment":     cli.CommentCommand,
	"summary":     cli.SummaryCommand,
	"tasks":       cli.TaskListCommand,
	"add-task":    cli.AddTaskCommand,
	"task-status": cli.TaskStatusCommand,
	"members":     cli.ProjectMembersCommand,
	"add-deal":    cli.AddDealCommand,
	"list-deals":  cli.ListDealsCommand,
	"delete-deal": cli.DeleteDealCommand,
}

func main() {
	// Global flags
	showVersion := flag.Bool("version", false, "Show version and exit")
	envFile := flag.String("env-file", ".env", "Load environment overrides from this file if it exists")
	apiURL := flag.String("api-url", "", "Backend base URL (overrides config)")

	// Parse global flags but don't fail on unknown (for subcommands)
	_ = flag.CommandLine.Parse(os.Args[1:])

	// Handle version flag
	if *showVersion {
		fmt.Printf("pipedash version %s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	command := args[0]
	commandArgs := args[1:]

	switch command {
	case "version":
		fmt.Printf("pipedash version %s\n", version)
		return
	case "help":
		printUsage()
		return
	case "config":
		if err := configCommand(*envFile, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
		return
	}

	run, ok := commands[command]
	if !ok {
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *apiURL != "" {
		cfg.APIURL = *apiURL
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	lg, err := logger.New(logger.Config{Env: cfg.LogEnv, Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		log.Fatalf("Failed to open log: %v", err)
	}
	defer func() { _ = lg.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, cfg, lg, command, run, commandArgs); err != nil {
		lg.Error().Err(err).Str("command", command).Msg("command failed")
		stop()
		_ = lg.Close()
		log.Fatalf("Error: %v", err)
	}
}

// execute mounts a dashboard for one command and unmounts it afterwards.
func execute(ctx context.Context, cfg *config.Config, lg *logger.Logger, name string, run commandFunc, args []string) error {
	tokens := tokenSource(cfg)
	client := backend.NewClient(cfg.APIURL, tokens, &http.Client{}, lg.Component("backend"))

	opts := dashboard.Options{
		Config:  cfg,
		Backend: client,
		Logger:  lg.Zerolog(),
	}

	if streaming[name] {
		if cfg.StreamURL != "" {
			opts.Stream = backend.NewSubscriber(backend.SubscriberOptions{
				URL:    cfg.StreamURL,
				Tokens: tokens,
				Logger: lg.Component("stream"),
			})
		}

		j, err := journal.Open(cfg.JournalDir, cfg.JournalTTL, lg.Zerolog())
		if err != nil {
			lg.Warn().Err(err).Str("dir", cfg.JournalDir).Msg("journal unavailable, duplicates are only suppressed in memory")
		} else {
			defer func() { _ = j.Close() }()
			opts.Journal = j
		}
	}

	d := dashboard.New(opts)
	if err := d.Mount(ctx); err != nil {
		return fmt.Errorf("failed to load pipeline: %w", err)
	}

	runErr := run(ctx, d, args)
	if err := d.Unmount(); err != nil && !errors.Is(err, context.Canceled) {
		lg.Warn().Err(err).Msg("stream ended with error")
	}
	return runErr
}

func tokenSource(cfg *config.Config) backend.TokenSource {
	if cfg.CanRefresh() {
		oc := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL},
		}
		return backend.NewOAuth2Tokens(oc, cfg.AccessToken, cfg.RefreshToken)
	}
	return backend.StaticTokens(cfg.AccessToken)
}

// configCommand prints or initializes the config file.
func configCommand(envFile string, args []string) error {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	initCfg := fs.Bool("init", false, "Write the current settings to the config file")
	_ = fs.Parse(args)

	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if *initCfg {
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Printf("✓ Config written to %s\n", config.Path())
		return nil
	}

	fmt.Printf("Config file:   %s\n", config.Path())
	fmt.Printf("API URL:       %s\n", cfg.APIURL)
	fmt.Printf("Stream URL:    %s\n", orNone(cfg.StreamURL))
	fmt.Printf("Token refresh: %t\n", cfg.CanRefresh())
	fmt.Printf("Same-id policy: %s\n", cfg.SameIDPolicy)
	fmt.Printf("Journal:       %s\n", cfg.JournalDir)
	fmt.Printf("Log file:      %s\n", cfg.LogFile)
	fmt.Printf("Device ID:     %s\n", orNone(cfg.DeviceID))
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func printUsage() {
	fmt.Printf(`pipedash v%s - Sales pipeline dashboard

USAGE:
  pipedash [global flags] <command> [flags] [args]

GLOBAL FLAGS:
  --version              Show version and exit
  --env-file <path>      Environment overrides file (default: .env)
  --api-url <url>        Backend base URL (overrides config)

COMMANDS:
  board                  Open the interactive kanban board
    --plain                  Print the board instead of opening the TUI
  watch                  Print notifications as they arrive
    --json                   One JSON object per line
    --history                Print queued notifications first

  list                   List leads by stage
    --query <text>           Search name, email, or company
    --stage <stage>          Only show one stage
    --owner <id>             Filter by owner
    --project <id>           Filter by project
    --sort <field>           lastName or createdAt (default: lastName)
    --desc                   Sort descending
    --trash                  List the trash
  show <lead-id>         Show a lead with its deals, comments, and tasks
  add                    Add a lead
    --first, --last, --email, --phone, --company, --owner, --project,
    --stage, --linkedin, --website
  edit [flags] <lead-id> Edit a lead (only given flags are sent)
  move <lead-id> <stage> Move a lead to another pipeline stage
  trash [--yes] <lead-id>    Move a lead to the trash
  restore <lead-id>          Restore a lead from the trash
  purge [--yes] <lead-id>    Permanently delete a trashed lead
  comment <lead-id> <text>   Comment on a lead

  add-deal               Record a deal for a closed lead
    --lead <id>              Lead ID (required)
    --amount <cents>         Amount in cents
    --currency <code>        Currency (default: USD)
    --type <type>            Consulting, OnlineTraining, or Offsite
    --start, --end           Dates (YYYY-MM-DD)
  list-deals             List deals
  delete-deal <deal-id>  Delete a deal
  summary                Lead counts and deal value per stage

  tasks                  List open follow-up tasks
    --overdue-only, --all, --lead <id>
  add-task               Add a task (--title, --lead, --assignee, --due)
  task-status <id> <status>  Set todo, in_progress, done, or cancelled

  members [flags] <project-id>  Edit project membership
    --add <ids>              Lead IDs to add
    --remove <ids>           Lead IDs to remove

  config [--init]        Show or write the config file
  version                Show version

STAGES:
  Identified, Contacted, Qualified, Negotiation, Closed

EXAMPLES:
  # Open the board
  pipedash board

  # Move a lead and record the deal
  pipedash move 0b6c... closed
  pipedash add-deal --lead 0b6c... --amount 1250000 --currency EUR

`, version)
}
