// Package ingest brings external data into the store: bank statement batches
// (CSV or XLSX) with duplicate suppression, and expense records ingested
// idempotently by external id.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/normalize"
)

// BankStore is the transaction-side slice of the store the importer writes.
// InsertBankTransaction reports false when the dedup constraint rejected the row.
type BankStore interface {
	InsertBankTransaction(ctx context.Context, txn *model.BankTransaction) (bool, error)
}

// RowError is a per-row import failure, 1-based over the input file including
// the header row.
type RowError struct {
	Row int    `json:"row"`
	Msg string `json:"msg"`
}

// Report summarizes one bank import batch. Row errors are collected, never
// dropped; a bad row does not abort the batch.
type Report struct {
	BatchID        string     `json:"batch_id"`
	Imported       int        `json:"imported"`
	Duplicates     int        `json:"duplicates"`
	SkippedInbound int        `json:"skipped_inbound"`
	RowErrors      []RowError `json:"row_errors,omitempty"`
}

// Importer loads bank statement files into the transaction store.
type Importer struct {
	store BankStore
	log   *zap.Logger
}

// NewImporter builds an Importer.
func NewImporter(store BankStore) *Importer {
	return &Importer{
		store: store,
		log:   zap.L().With(zap.String("component", "ingest")),
	}
}

// ImportCSV imports a CSV statement. The first row must be a header naming
// the date, description, and amount columns.
func (im *Importer) ImportCSV(ctx context.Context, source string, r io.Reader) (*Report, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read csv header")
	}
	cols, err := resolveColumns(header)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "ingest: read csv row")
		}
		rows = append(rows, row)
	}
	return im.importRows(ctx, source, cols, rows)
}

// ImportXLSX imports the first sheet of an XLSX statement. Row one must be a
// header naming the date, description, and amount columns.
func (im *Importer) ImportXLSX(ctx context.Context, source, path string) (*Report, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("ingest: %s has no sheets", path)
	}
	sheet := f.Sheets[0]

	var header []string
	var rows [][]string
	for i, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		if i == 0 {
			header = cells
			continue
		}
		rows = append(rows, cells)
	}
	if header == nil {
		return nil, eris.Errorf("ingest: %s sheet %q is empty", path, sheet.Name)
	}

	cols, err := resolveColumns(header)
	if err != nil {
		return nil, err
	}
	return im.importRows(ctx, source, cols, rows)
}

type columns struct {
	date, desc, amount int
}

var columnAliases = map[string][]string{
	"date":   {"date", "transaction date", "posted date", "posting date"},
	"desc":   {"description", "memo", "details", "name", "payee"},
	"amount": {"amount", "debit", "transaction amount"},
}

func resolveColumns(header []string) (columns, error) {
	find := func(aliases []string) int {
		for i, h := range header {
			h = strings.ToLower(strings.TrimSpace(h))
			for _, a := range aliases {
				if h == a {
					return i
				}
			}
		}
		return -1
	}

	c := columns{
		date:   find(columnAliases["date"]),
		desc:   find(columnAliases["desc"]),
		amount: find(columnAliases["amount"]),
	}
	if c.date < 0 || c.desc < 0 || c.amount < 0 {
		return columns{}, eris.Errorf("ingest: header %v missing date, description, or amount column", header)
	}
	return c, nil
}

var dateLayouts = []string{"2006-01-02", "01/02/2006", "1/2/2006", "2006/01/02", "Jan 2, 2006"}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("ingest: unrecognized date %q", s)
}

// importRows runs the shared per-row pipeline: parse, inbound filter, in-batch
// dedup, store insert. rows is the file minus its header; row numbers reported
// in errors are 1-based over the whole file.
func (im *Importer) importRows(ctx context.Context, source string, cols columns, rows [][]string) (*Report, error) {
	report := &Report{BatchID: uuid.NewString()}
	seen := make(map[string]bool, len(rows))

	for i, row := range rows {
		rowNum := i + 2 // 1-based, after the header

		txn, skip, err := parseBankRow(source, cols, row)
		if err != nil {
			report.RowErrors = append(report.RowErrors, RowError{Row: rowNum, Msg: err.Error()})
			continue
		}
		if skip {
			report.SkippedInbound++
			continue
		}

		if seen[txn.DedupKey] {
			report.Duplicates++
			continue
		}
		seen[txn.DedupKey] = true

		txn.ImportBatchID = report.BatchID
		inserted, err := im.store.InsertBankTransaction(ctx, txn)
		if err != nil {
			return report, eris.Wrapf(err, "ingest: insert row %d", rowNum)
		}
		if !inserted {
			report.Duplicates++
			continue
		}
		report.Imported++
	}

	im.log.Info("bank import complete",
		zap.String("source", source),
		zap.String("batch_id", report.BatchID),
		zap.Int("imported", report.Imported),
		zap.Int("duplicates", report.Duplicates),
		zap.Int("skipped_inbound", report.SkippedInbound),
		zap.Int("row_errors", len(report.RowErrors)))
	return report, nil
}

func parseBankRow(source string, cols columns, row []string) (*model.BankTransaction, bool, error) {
	max := cols.date
	if cols.desc > max {
		max = cols.desc
	}
	if cols.amount > max {
		max = cols.amount
	}
	if len(row) <= max {
		return nil, false, fmt.Errorf("short row: %d columns", len(row))
	}

	desc := strings.TrimSpace(row[cols.desc])
	if desc == "" {
		return nil, false, fmt.Errorf("empty description")
	}

	date, err := parseDate(row[cols.date])
	if err != nil {
		return nil, false, err
	}

	cents, err := model.ParseCents(row[cols.amount])
	if err != nil {
		return nil, false, err
	}

	// Inbound funds (deposits, transfers in) are not expenses. Credits other
	// than refunds fall out here too; refunds stay in as negative amounts.
	if normalize.IsInboundDescription(desc) {
		return nil, true, nil
	}
	if cents <= 0 && !strings.Contains(strings.ToUpper(desc), "REFUND") {
		return nil, true, nil
	}

	return &model.BankTransaction{
		ID:             uuid.NewString(),
		Source:         source,
		DescriptionRaw: desc,
		AmountCents:    cents,
		TxnDate:        date,
		DedupKey:       normalize.DedupKey(source, date, cents, desc),
		Status:         model.TxnUnmatched,
	}, false, nil
}
