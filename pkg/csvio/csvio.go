// Package csvio loads contact CSVs with flexible header matching and writes
// the augmented output file.
package csvio

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Ebop14/outreach-bot/pkg/models"
)

// headerAliases maps each contact field to the column names it may appear
// under, matched case-insensitively.
var headerAliases = map[string][]string{
	"email":      {"email", "e-mail"},
	"first_name": {"first_name", "first name", "firstname", "first"},
	"last_name":  {"last_name", "last name", "lastname", "last"},
	"company":    {"company", "organization"},
	"website":    {"website", "url", "domain"},
	"title":      {"title", "job_title", "position"},
}

// Row pairs a parsed contact with its original cells, preserved verbatim for
// the output file.
type Row struct {
	Contact models.Contact
	Raw     []string
}

// Input is a loaded contact file.
type Input struct {
	Path   string
	Header []string
	Rows   []Row
}

// Load reads a contact CSV. Column order is free and extra columns are kept;
// rows with missing fields are loaded as-is and rejected later, per row,
// by contact validation.
func Load(path string) (*Input, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty input: %s", path)
	}

	header := records[0]
	header[0] = strings.TrimPrefix(header[0], "﻿")
	columns := resolveColumns(header)

	in := &Input{Path: path, Header: header}
	for i, cells := range records[1:] {
		contact := models.Contact{
			Email:     cell(cells, columns["email"]),
			FirstName: cell(cells, columns["first_name"]),
			LastName:  cell(cells, columns["last_name"]),
			Company:   cell(cells, columns["company"]),
			Website:   cell(cells, columns["website"]),
			Title:     cell(cells, columns["title"]),
			RowIndex:  i,
		}
		in.Rows = append(in.Rows, Row{Contact: contact, Raw: cells})
	}
	return in, nil
}

// resolveColumns maps each contact field to its column index, or -1.
func resolveColumns(header []string) map[string]int {
	columns := make(map[string]int, len(headerAliases))
	for field := range headerAliases {
		columns[field] = -1
	}
	for field, aliases := range headerAliases {
		for _, alias := range aliases {
			for i, name := range header {
				if strings.EqualFold(strings.TrimSpace(name), alias) {
					columns[field] = i
					break
				}
			}
			if columns[field] >= 0 {
				break
			}
		}
	}
	return columns
}

func cell(cells []string, idx int) string {
	if idx < 0 || idx >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[idx])
}

// augmentedColumns are appended to the original header in the output file.
var augmentedColumns = []string{
	"generated_subject",
	"generated_body",
	"ai_generated",
	"quality_score",
	"quality_acceptable",
	"quality_issues",
}

// Writer appends augmented rows to the output CSV, flushing after every row
// so a crash loses at most the row in progress.
type Writer struct {
	f     *os.File
	w     *csv.Writer
	width int
}

// NewWriter opens the output file. With resume set and a non-empty existing
// file, rows are appended and no header is written.
func NewWriter(path string, header []string, resume bool) (*Writer, error) {
	if resume {
		if info, err := os.Stat(path); err == nil && info.Size() > 0 {
			f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				return nil, fmt.Errorf("open output: %w", err)
			}
			return &Writer{f: f, w: csv.NewWriter(f), width: len(header)}, nil
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	w := &Writer{f: f, w: csv.NewWriter(f), width: len(header)}
	if err := w.write(append(append([]string{}, header...), augmentedColumns...)); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// WriteOutcome writes one augmented row. Quality cells are filled only when
// the outcome carries an evaluation; template and failed rows leave them
// empty.
func (w *Writer) WriteOutcome(raw []string, outcome models.Outcome) error {
	cells := make([]string, w.width, w.width+len(augmentedColumns))
	copy(cells, raw)

	score, acceptable, issues := "", "", ""
	if outcome.Evaluation != nil {
		score = strconv.Itoa(outcome.Evaluation.Score)
		acceptable = strconv.FormatBool(outcome.Evaluation.Acceptable)
		issues = strconv.Itoa(outcome.Evaluation.TotalIssues())
	}

	cells = append(cells,
		outcome.Subject,
		outcome.Body,
		strconv.FormatBool(outcome.AIGenerated()),
		score,
		acceptable,
		issues,
	)
	return w.write(cells)
}

func (w *Writer) write(cells []string) error {
	if err := w.w.Write(cells); err != nil {
		return fmt.Errorf("write output row: %w", err)
	}
	w.w.Flush()
	if err := w.w.Error(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

// Close flushes and closes the output file.
func (w *Writer) Close() error {
	w.w.Flush()
	if err := w.w.Error(); err != nil {
		w.f.Close()
		return fmt.Errorf("flush output: %w", err)
	}
	return w.f.Close()
}
