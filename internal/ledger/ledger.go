// Package ledger exports run ledgers as CSV and terminal tables.
package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"

	"capline/internal/domain"
)

// Columns is the stable CSV contract, in order.
var Columns = []string{
	"timestamp",
	"run_id",
	"difficulty",
	"learner_team",
	"ai_team",
	"mission_id",
	"role",
	"option_id",
	"legal",
	"delta_cap_health",
	"delta_roster_strength",
	"delta_flexibility",
	"delta_player_relations",
	"delta_franchise_value_growth",
	"cap_delta_m",
	"dead_cap_delta_m",
	"composite_after",
	"gate_flags",
	"cleared",
	"claim_code",
	"review_checksum",
	"metric_deltas",
}

// Record renders a row in Columns order.
func Record(r domain.LedgerRow) []string {
	return []string{
		r.Timestamp,
		r.RunID,
		r.Difficulty,
		r.LearnerTeam,
		r.AITeam,
		r.MissionID,
		r.Role,
		r.OptionID,
		strconv.FormatBool(r.Legal),
		strconv.Itoa(r.DeltaCapHealth),
		strconv.Itoa(r.DeltaRosterStrength),
		strconv.Itoa(r.DeltaFlexibility),
		strconv.Itoa(r.DeltaPlayerRelations),
		strconv.Itoa(r.DeltaFranchiseValueGrowth),
		r.CapDeltaM,
		r.DeadCapDeltaM,
		strconv.Itoa(r.CompositeAfter),
		r.GateFlags,
		r.Cleared,
		r.ClaimCode,
		r.ReviewChecksum,
		r.MetricDeltas,
	}
}

// WriteCSV writes a header line and one record per row.
func WriteCSV(w io.Writer, rows []domain.LedgerRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(Record(r)); err != nil {
			return fmt.Errorf("write csv row %s: %w", r.MissionID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a ledger written by WriteCSV.
func ReadCSV(r io.Reader) ([]domain.LedgerRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Columns)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("read csv: missing header")
	}
	for i, c := range Columns {
		if records[0][i] != c {
			return nil, fmt.Errorf("read csv: column %d is %q, want %q", i, records[0][i], c)
		}
	}
	rows := make([]domain.LedgerRow, 0, len(records)-1)
	for n, rec := range records[1:] {
		row, err := ParseRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", n+2, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ParseRecord is the inverse of Record.
func ParseRecord(rec []string) (domain.LedgerRow, error) {
	if len(rec) != len(Columns) {
		return domain.LedgerRow{}, fmt.Errorf("record has %d fields, want %d", len(rec), len(Columns))
	}
	var ints [6]int
	for i, idx := range []int{9, 10, 11, 12, 13, 16} {
		v, err := strconv.Atoi(rec[idx])
		if err != nil {
			return domain.LedgerRow{}, fmt.Errorf("%s: %w", Columns[idx], err)
		}
		ints[i] = v
	}
	legal, err := strconv.ParseBool(rec[8])
	if err != nil {
		return domain.LedgerRow{}, fmt.Errorf("legal: %w", err)
	}
	return domain.LedgerRow{
		Timestamp:                 rec[0],
		RunID:                     rec[1],
		Difficulty:                rec[2],
		LearnerTeam:               rec[3],
		AITeam:                    rec[4],
		MissionID:                 rec[5],
		Role:                      rec[6],
		OptionID:                  rec[7],
		Legal:                     legal,
		DeltaCapHealth:            ints[0],
		DeltaRosterStrength:       ints[1],
		DeltaFlexibility:          ints[2],
		DeltaPlayerRelations:      ints[3],
		DeltaFranchiseValueGrowth: ints[4],
		CapDeltaM:                 rec[14],
		DeadCapDeltaM:             rec[15],
		CompositeAfter:            ints[5],
		GateFlags:                 rec[17],
		Cleared:                   rec[18],
		ClaimCode:                 rec[19],
		ReviewChecksum:            rec[20],
		MetricDeltas:              rec[21],
	}, nil
}

// RenderTable prints a compact view of the ledger for terminals.
func RenderTable(w io.Writer, rows []domain.LedgerRow) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Mission", "Role", "Option", "Legal", "Cap", "Dead", "Composite", "Gates", "Cleared"})
	for _, r := range rows {
		tw.AppendRow(table.Row{r.MissionID, r.Role, r.OptionID, r.Legal, r.CapDeltaM, r.DeadCapDeltaM, r.CompositeAfter, r.GateFlags, r.Cleared})
	}
	tw.Render()
}
