package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"canvasmith/internal/adapter/history"
	"canvasmith/internal/domain"
)

// parseHistoryFlags reads --session, --status and --limit.
func parseHistoryFlags(args []string) (history.Filter, error) {
	f := history.Filter{Limit: 50}
	for i := 0; i < len(args); i++ {
		name, value, inline := strings.Cut(args[i], "=")
		if !inline {
			if i+1 >= len(args) {
				return f, fmt.Errorf("flag %s needs a value", name)
			}
			value = args[i+1]
			i++
		}
		switch name {
		case "--session":
			f.SessionID = value
		case "--status":
			f.Status = domain.ActionStatus(value)
		case "--limit":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return f, fmt.Errorf("invalid --limit %q", value)
			}
			f.Limit = n
		default:
			return f, fmt.Errorf("unknown flag %s", name)
		}
	}
	return f, nil
}

func runHistory(args []string) error {
	filter, err := parseHistoryFlags(args)
	if err != nil {
		return err
	}
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.List(context.Background(), filter)
	if err != nil {
		return err
	}
	printHistory(os.Stdout, records)
	return nil
}

func printHistory(w io.Writer, records []history.Record) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tACTION\tKIND\tSTATUS\tDURATION\tUPDATED\tERROR")
	for _, r := range records {
		duration := "-"
		if r.StartedAt != nil && r.FinishedAt != nil {
			duration = r.FinishedAt.Sub(*r.StartedAt).Round(time.Millisecond).String()
		}
		errText := ""
		if r.Error != nil {
			errText = r.Error.Title
			if errText == "" {
				errText = r.Error.Message
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.SessionID, r.ID, r.Kind, r.Status, duration,
			r.UpdatedAt.Local().Format(time.DateTime), errText)
	}
	tw.Flush()
}
