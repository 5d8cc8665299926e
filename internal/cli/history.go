// Package cli provides the grid event history command.
package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tOgg1/gradebook/internal/db"
	"github.com/tOgg1/gradebook/internal/models"
)

var (
	historyType   string
	historySince  string
	historyLimit  int
	historyCursor string
	historyAll    bool
	historyFollow bool
)

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringVar(&historyType, "type", "", "filter by event type, comma-separated (e.g. grid.bulk_applied)")
	historyCmd.Flags().StringVar(&historySince, "since", "", "only events since a duration ago (1h, 7d) or a timestamp")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "maximum events to show")
	historyCmd.Flags().StringVar(&historyCursor, "cursor", "", "continue after this event ID")
	historyCmd.Flags().BoolVar(&historyAll, "all", false, "include events of every mark set")
	historyCmd.Flags().BoolVarP(&historyFollow, "follow", "f", false, "stream new events as JSON Lines until interrupted")
}

// historyResult is the JSON form of history.
type historyResult struct {
	Events     []*models.Event `json:"events"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded grid events",
	Long: `Show the grid events recorded in the database: context changes, tile
loads and failures, cell writes, bulk writes and aggregate invalidations.

By default only events of the current mark set are shown. With --follow,
new events are streamed as JSON Lines until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		since, err := ParseSince(historySince)
		if err != nil {
			return err
		}
		query := db.EventQuery{
			Types:  parseEventTypes(historyType),
			Since:  since,
			Cursor: historyCursor,
			Limit:  historyLimit,
		}
		if !historyAll {
			current, err := contextStore().Load()
			if err != nil {
				return fmt.Errorf("failed to load context: %w", err)
			}
			if current.HasMarkSet() {
				query.MarkSet = current.Ref().String()
			}
		}

		database, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer database.Close()

		repo := db.NewEventRepository(database)
		if historyFollow {
			config := DefaultStreamConfig()
			config.MarkSet = query.MarkSet
			config.EventTypes = query.Types
			config.Since = since
			return NewEventStreamer(repo, cmd.OutOrStdout(), config).Stream(ctx)
		}

		page, err := repo.Query(ctx, query)
		if err != nil {
			return err
		}
		result := historyResult{Events: page.Events, NextCursor: page.NextCursor}
		if result.Events == nil {
			result.Events = []*models.Event{}
		}

		out := cmd.OutOrStdout()
		if IsJSONLOutput() {
			return WriteOutput(out, result.Events)
		}
		if IsJSONOutput() {
			return WriteOutput(out, result)
		}
		if len(result.Events) == 0 {
			fmt.Fprintln(out, "No events found.")
			return nil
		}

		writer := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
		fmt.Fprintln(writer, "TIME\tTYPE\tENTITY\tPAYLOAD")
		for _, event := range result.Events {
			fmt.Fprintf(writer, "%s\t%s\t%s:%s\t%s\n",
				event.Timestamp.Local().Format("15:04:05.000"),
				event.Type,
				event.EntityType,
				event.EntityID,
				truncate(string(event.Payload), 60),
			)
		}
		if err := writer.Flush(); err != nil {
			return err
		}
		if result.NextCursor != "" {
			fmt.Fprintf(out, "\nMore events: gradebook history --cursor %s\n", result.NextCursor)
		}
		return nil
	},
}

func parseEventTypes(value string) []models.EventType {
	var types []models.EventType
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			types = append(types, models.EventType(part))
		}
	}
	return types
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
