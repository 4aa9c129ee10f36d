package slurm

import (
	"encoding/csv"
	"fmt"
	"strings"
)

// accountingRecord is one row of sacct's delimited output.
type accountingRecord struct {
	JobID   string
	State   string
	Elapsed string
	Start   string
	Comment string
}

// accountingColumns is the column set every sacct query requests. The wide
// comment field carries the 36-character stable id.
const accountingColumns = "jobid,state,elapsed,start,comment%36"

// parseAccounting decodes sacct's pipe-delimited tabular output. Records are
// returned in sacct's order: oldest start time first.
func parseAccounting(raw string) ([]accountingRecord, error) {
	reader := csv.NewReader(strings.NewReader(raw))
	reader.Comma = '|'
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse sacct output: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := rows[0]
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	records := make([]accountingRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		records = append(records, accountingRecord{
			JobID:   field(row, "jobid"),
			State:   field(row, "state"),
			Elapsed: field(row, "elapsed"),
			Start:   field(row, "start"),
			Comment: field(row, "comment"),
		})
	}
	return records, nil
}

// latestByStableID reduces accounting records to the most recent instance per
// tracked stable id. Multiple instances share a stable id across restarts;
// records arrive oldest-first, so a reverse scan with a seen-set keeps only
// the newest.
func latestByStableID(records []accountingRecord, tracked map[string]bool) map[string]accountingRecord {
	latest := make(map[string]accountingRecord)
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		id := rec.Comment
		if !tracked[id] {
			continue
		}
		if _, ok := latest[id]; ok {
			continue
		}
		latest[id] = rec
	}
	return latest
}
