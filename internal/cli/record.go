package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/gkobilansky/funnelstat/internal/ledger"
	"github.com/gkobilansky/funnelstat/internal/store"
)

func newRecordCmd(a *app) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "record <id>",
		Short: "Record events from a JSON lines file",
		Long: `Record funnel events from a JSON lines file as one atomic batch.

Each line is an event object. test_id defaults to <id>; id and created_at
are filled in when missing. If any line is invalid nothing is recorded.

Example line:
  {"variant_id":"b","participant_id":"jane@example.com","event_type":"replied"}

Examples:
  funnelstat record subject --file events.jsonl
  cat events.jsonl | funnelstat record subject --file -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			testID := args[0]

			var in io.Reader = cmd.InOrStdin()
			if file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", file, err)
				}
				defer f.Close()
				in = f
			}

			events, err := readEvents(in, testID)
			if err != nil {
				return err
			}

			return a.withLedger(func(_ store.Store, l *ledger.Ledger) error {
				if err := l.RecordBatch(context.Background(), events); err != nil {
					return fmt.Errorf("nothing recorded: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s events for '%s'\n", humanize.Comma(int64(len(events))), testID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "JSON lines file, - for stdin")
	return cmd
}

// readEvents decodes one event per non-blank line.
func readEvents(r io.Reader, testID string) ([]store.Event, error) {
	var events []store.Event
	scanner := newLineScanner(r)
	for line := 1; scanner.Scan(); line++ {
		e, ok, err := decodeEvent(scanner.Bytes(), testID)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if ok {
			events = append(events, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return events, nil
}

func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return scanner
}

func decodeEvent(line []byte, testID string) (store.Event, bool, error) {
	if strings.TrimSpace(string(line)) == "" {
		return store.Event{}, false, nil
	}
	var e store.Event
	if err := json.Unmarshal(line, &e); err != nil {
		return store.Event{}, false, err
	}
	if e.TestID == "" {
		e.TestID = testID
	}
	if e.TestID != testID {
		return store.Event{}, false, fmt.Errorf("event is for test '%s', not '%s'", e.TestID, testID)
	}
	return e, true, nil
}
