package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/recon-cli/internal/model"
)

// ExpenseStore is the record-side slice of the store expense ingestion writes.
// InsertRecord reports false when the external id already exists.
type ExpenseStore interface {
	InsertRecord(ctx context.Context, rec *model.ExpenseRecord) (bool, error)
}

// ExpensePayload is the wire shape of one ingested expense, from the webhook
// or a JSON-lines file.
type ExpensePayload struct {
	ExternalID       string `json:"external_id"`
	Vendor           string `json:"vendor"`
	Amount           string `json:"amount"`
	Currency         string `json:"currency,omitempty"`
	Date             string `json:"date"`
	Source           string `json:"source,omitempty"`
	CategoryHint     string `json:"category_hint,omitempty"`
	JurisdictionHint string `json:"jurisdiction_hint,omitempty"`
	ReceiptPath      string `json:"receipt_path,omitempty"`
}

// ExpenseReport summarizes a bulk expense ingestion.
type ExpenseReport struct {
	Ingested   int        `json:"ingested"`
	Duplicates int        `json:"duplicates"`
	RowErrors  []RowError `json:"row_errors,omitempty"`
}

// ExpenseService ingests expense records and wakes the queue controller for
// each new pending record.
type ExpenseService struct {
	store  ExpenseStore
	notify func()
	log    *zap.Logger
}

// NewExpenseService builds an ExpenseService. notify may be nil when no
// controller is running (one-shot CLI ingestion).
func NewExpenseService(store ExpenseStore, notify func()) *ExpenseService {
	return &ExpenseService{
		store:  store,
		notify: notify,
		log:    zap.L().With(zap.String("component", "ingest")),
	}
}

// Ingest stores one expense payload. Re-ingesting an external id already
// present is a duplicate, not an error: the stored record is untouched and
// duplicate is true.
func (s *ExpenseService) Ingest(ctx context.Context, raw []byte) (rec *model.ExpenseRecord, duplicate bool, err error) {
	var p ExpensePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false, eris.Wrap(err, "ingest: decode expense payload")
	}
	return s.IngestPayload(ctx, p, raw)
}

// IngestPayload stores one decoded expense payload, keeping raw (when given)
// as the record's original payload for audit.
func (s *ExpenseService) IngestPayload(ctx context.Context, p ExpensePayload, raw []byte) (*model.ExpenseRecord, bool, error) {
	if strings.TrimSpace(p.ExternalID) == "" {
		return nil, false, eris.New("ingest: external_id is required")
	}
	if strings.TrimSpace(p.Vendor) == "" {
		return nil, false, eris.New("ingest: vendor is required")
	}

	cents, err := model.ParseCents(p.Amount)
	if err != nil {
		return nil, false, eris.Wrapf(err, "ingest: expense %s amount", p.ExternalID)
	}
	date, err := parseDate(p.Date)
	if err != nil {
		return nil, false, eris.Wrapf(err, "ingest: expense %s date", p.ExternalID)
	}

	rec := &model.ExpenseRecord{
		ID:               uuid.NewString(),
		ExternalID:       strings.TrimSpace(p.ExternalID),
		VendorRaw:        strings.TrimSpace(p.Vendor),
		AmountCents:      cents,
		Currency:         p.Currency,
		TxnDate:          date,
		Source:           p.Source,
		RawPayload:       string(raw),
		CategoryHint:     p.CategoryHint,
		JurisdictionHint: p.JurisdictionHint,
		Status:           model.RecordPending,
	}
	if p.ReceiptPath != "" {
		path := p.ReceiptPath
		rec.ReceiptPath = &path
	}

	inserted, err := s.store.InsertRecord(ctx, rec)
	if err != nil {
		return nil, false, eris.Wrapf(err, "ingest: insert expense %s", rec.ExternalID)
	}
	if !inserted {
		s.log.Debug("expense already ingested",
			zap.String("external_id", rec.ExternalID))
		return rec, true, nil
	}

	s.log.Info("expense ingested",
		zap.String("record_id", rec.ID),
		zap.String("external_id", rec.ExternalID),
		zap.Int64("amount_cents", rec.AmountCents))
	if s.notify != nil {
		s.notify()
	}
	return rec, false, nil
}

// IngestStream ingests a JSON-lines stream, one expense payload per line.
// Blank lines are skipped; bad lines become row errors and the stream continues.
func (s *ExpenseService) IngestStream(ctx context.Context, r io.Reader) (*ExpenseReport, error) {
	report := &ExpenseReport{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}

		_, duplicate, err := s.Ingest(ctx, []byte(raw))
		if err != nil {
			report.RowErrors = append(report.RowErrors, RowError{Row: line, Msg: err.Error()})
			continue
		}
		if duplicate {
			report.Duplicates++
			continue
		}
		report.Ingested++
	}
	if err := scanner.Err(); err != nil {
		return report, eris.Wrap(err, "ingest: read expense stream")
	}
	return report, nil
}
