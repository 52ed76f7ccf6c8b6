// ABOUTME: Offline replay of captured push-stream events
// ABOUTME: Feeds JSON-lines events through a reconciler and prints the resulting queue and store

package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"

	"github.com/harperreed/pipedash/journal"
	"github.com/harperreed/pipedash/logger"
	"github.com/harperreed/pipedash/models"
	"github.com/harperreed/pipedash/store"
	"github.com/harperreed/pipedash/stream"
)

type options struct {
	journalDir string
	queueCap   int
	verbose    bool
}

func main() {
	journalDir := flag.String("journal", "", "Journal directory; events already recorded there are skipped")
	queueCap := flag.Int("queue-cap", stream.DefaultQueueCap, "Notification queue capacity")
	verbose := flag.Bool("v", false, "Log each event decision to stderr")
	flag.Parse()

	in := io.Reader(os.Stdin)
	if flag.NArg() > 0 {
		f, err := os.Open(flag.Arg(0))
		if err != nil {
			log.Fatalf("Failed to open events: %v", err)
		}
		defer func() { _ = f.Close() }()
		in = f
	}

	if err := replay(in, os.Stdout, options{journalDir: *journalDir, queueCap: *queueCap, verbose: *verbose}); err != nil {
		log.Fatalf("Replay failed: %v", err)
	}
}

func replay(in io.Reader, out io.Writer, opts options) error {
	lg := logger.Nop()
	if opts.verbose {
		var err error
		lg, err = logger.New(logger.Config{Env: "development", Level: "debug"})
		if err != nil {
			return err
		}
	}

	events, err := readEvents(in)
	if err != nil {
		return err
	}

	var j *journal.Journal
	if opts.journalDir != "" {
		j, err = journal.Open(opts.journalDir, journal.DefaultTTL, lg.Zerolog())
	} else {
		j, err = journal.OpenInMemory(journal.DefaultTTL)
	}
	if err != nil {
		return err
	}
	defer func() { _ = j.Close() }()

	s := store.New()
	r := stream.NewReconciler(stream.Options{
		Store:    s,
		Journal:  j,
		QueueCap: opts.queueCap,
		Logger:   lg.Zerolog(),
	})
	r.Replay(events)

	queue := r.Queue()
	fmt.Fprintf(out, "Replayed %d events, %d notifications queued\n\n", len(events), len(queue))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSEVERITY\tTYPE\tMESSAGE")
	for _, n := range queue {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", n.ID, n.Severity, n.Type, n.Message)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	for _, kind := range models.Kinds {
		if n := s.Len(kind); n > 0 {
			fmt.Fprintf(out, "%-8s %d\n", kind, n)
		}
	}
	return nil
}

func readEvents(in io.Reader) ([]models.StreamEvent, error) {
	var events []models.StreamEvent
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var ev models.StreamEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return events, nil
}
