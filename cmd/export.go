package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"

	"github.com/vulnradar/vulnradar/internal/model"
)

var (
	exportOut    string
	exportFormat string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the latest snapshot as a spreadsheet or JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		snap, err := st.LatestSnapshot(ctx)
		if err != nil {
			return eris.Wrap(err, "load latest snapshot")
		}
		if snap.Len() == 0 {
			return eris.New("no snapshot to export; run a scan first")
		}

		switch exportFormat {
		case "xlsx":
			file, err := buildWorkbook(snap)
			if err != nil {
				return err
			}
			if err := file.Save(exportOut); err != nil {
				return eris.Wrapf(err, "write %s", exportOut)
			}
		case "json":
			data, err := json.MarshalIndent(snap.SortedRecords(), "", "  ")
			if err != nil {
				return eris.Wrap(err, "encode snapshot")
			}
			if err := os.WriteFile(exportOut, append(data, '\n'), 0o644); err != nil {
				return eris.Wrapf(err, "write %s", exportOut)
			}
		default:
			return eris.Errorf("unknown format %q (want xlsx or json)", exportFormat)
		}

		fmt.Fprintf(os.Stdout, "Exported %d records to %s\n", snap.Len(), exportOut)
		return nil
	},
}

// buildWorkbook renders a snapshot as a two-sheet workbook: every record,
// and the relevant subset.
func buildWorkbook(snap *model.Snapshot) (*xlsx.File, error) {
	file := xlsx.NewFile()

	all, err := file.AddSheet("All Records")
	if err != nil {
		return nil, eris.Wrap(err, "add sheet")
	}
	relevant, err := file.AddSheet("Relevant")
	if err != nil {
		return nil, eris.Wrap(err, "add sheet")
	}

	writeHeader(all)
	writeHeader(relevant)

	for _, rec := range snap.SortedRecords() {
		writeRecord(all, rec)
		if rec.IsRelevant {
			writeRecord(relevant, rec)
		}
	}
	return file, nil
}

func writeHeader(sheet *xlsx.Sheet) {
	row := sheet.AddRow()
	for _, h := range []string{
		"CVE", "Critical", "Warning", "KEV", "KEV Due", "PatchThis",
		"Priority", "EPSS", "CVSS", "Vendors", "Products", "Description",
	} {
		row.AddCell().Value = h
	}
}

func writeRecord(sheet *xlsx.Sheet, rec model.CanonicalRecord) {
	row := sheet.AddRow()
	row.AddCell().Value = rec.ID
	row.AddCell().SetBool(rec.IsCritical)
	row.AddCell().SetBool(rec.IsWarning)
	row.AddCell().SetBool(rec.ActiveThreat)
	if rec.KEV != nil {
		row.AddCell().Value = rec.KEV.DueDate
	} else {
		row.AddCell()
	}
	row.AddCell().SetBool(rec.InPatchThis)
	row.AddCell().Value = rec.PriorityLabel
	if rec.ProbabilityScore != nil {
		row.AddCell().SetFloatWithFormat(*rec.ProbabilityScore, "0.00000")
	} else {
		row.AddCell()
	}
	if score := rec.BestCVSSScore(); score > 0 {
		row.AddCell().SetFloatWithFormat(score, "0.0")
	} else {
		row.AddCell()
	}
	row.AddCell().Value = strings.Join(rec.Vendors, ", ")
	row.AddCell().Value = strings.Join(rec.Products, ", ")
	row.AddCell().Value = rec.Description
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "radar_export.xlsx", "output file path")
	exportCmd.Flags().StringVar(&exportFormat, "format", "xlsx", "output format: xlsx or json")
	rootCmd.AddCommand(exportCmd)
}
