// Package cli provides export commands for gradebook data.
package cli

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/tOgg1/gradebook/internal/models"
)

var exportOutput string

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to a file instead of stdout")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the current mark set",
	Long: `Export every mark of the current mark set. The grid is read tile by tile
through the same cache the other grid commands use.

Output is CSV with one row per student unless --json or --jsonl is given.
Cells without a mark are left empty.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openGridSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		_, dims := s.coord.Context()
		result, err := buildGridView(cmd, s, models.Window{RowCount: dims.Rows, ColCount: dims.Cols})
		if err != nil {
			return err
		}

		var out io.Writer = cmd.OutOrStdout()
		if exportOutput != "" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", exportOutput, err)
			}
			defer f.Close()
			out = f
		}

		if IsJSONLOutput() {
			return WriteOutput(out, result.Rows)
		}
		if IsJSONOutput() {
			return WriteOutput(out, result)
		}
		return writeGridCSV(out, result)
	},
}

func writeGridCSV(out io.Writer, result *gridShowResult) error {
	writer := csv.NewWriter(out)

	header := make([]string, 0, len(result.Assessments)+1)
	header = append(header, "student")
	for _, a := range result.Assessments {
		header = append(header, a.Title)
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, row := range result.Rows {
		record := make([]string, 0, len(row.Cells)+1)
		record = append(record, row.Student)
		for _, cell := range row.Cells {
			record = append(record, cell.String())
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
