package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/recon-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS expense_records (
	id                    TEXT PRIMARY KEY,
	external_id           TEXT NOT NULL UNIQUE,
	vendor_raw            TEXT NOT NULL,
	amount_cents          INTEGER NOT NULL,
	currency              TEXT NOT NULL DEFAULT 'USD',
	txn_date              DATETIME NOT NULL,
	source                TEXT NOT NULL DEFAULT '',
	raw_payload           TEXT NOT NULL DEFAULT '',
	category              TEXT NOT NULL DEFAULT '',
	category_hint         TEXT NOT NULL DEFAULT '',
	jurisdiction          TEXT NOT NULL DEFAULT '',
	jurisdiction_hint     TEXT NOT NULL DEFAULT '',
	status                TEXT NOT NULL DEFAULT 'pending',
	flag_reason           TEXT NOT NULL DEFAULT '',
	flags                 TEXT NOT NULL DEFAULT '[]',
	confidence            INTEGER NOT NULL DEFAULT 0,
	matched_txn_id        TEXT,
	receipt_path          TEXT,
	posted_ref            TEXT NOT NULL DEFAULT '',
	original_amount_cents INTEGER,
	original_date         DATETIME,
	processing_started_at DATETIME,
	processing_attempts   INTEGER NOT NULL DEFAULT 0,
	last_error            TEXT NOT NULL DEFAULT '',
	processed_at          DATETIME,
	created_at            DATETIME NOT NULL,
	updated_at            DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS bank_transactions (
	id                TEXT PRIMARY KEY,
	source            TEXT NOT NULL,
	description_raw   TEXT NOT NULL,
	amount_cents      INTEGER NOT NULL,
	txn_date          DATETIME NOT NULL,
	dedup_key         TEXT NOT NULL,
	status            TEXT NOT NULL DEFAULT 'unmatched',
	matched_record_id TEXT,
	matched_by        TEXT NOT NULL DEFAULT '',
	matched_at        DATETIME,
	import_batch_id   TEXT NOT NULL DEFAULT '',
	created_at        DATETIME NOT NULL,
	UNIQUE (source, txn_date, amount_cents, dedup_key)
);

CREATE TABLE IF NOT EXISTS vendor_rules (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	pattern              TEXT NOT NULL,
	default_category     TEXT NOT NULL DEFAULT '',
	default_jurisdiction TEXT NOT NULL DEFAULT '',
	match_count          INTEGER NOT NULL DEFAULT 0,
	last_matched_at      DATETIME,
	created_at           DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS decisions (
	id                     INTEGER PRIMARY KEY AUTOINCREMENT,
	record_id              TEXT NOT NULL,
	transaction_id         TEXT,
	predicted_category     TEXT NOT NULL DEFAULT '',
	predicted_jurisdiction TEXT NOT NULL DEFAULT '',
	predicted_confidence   INTEGER NOT NULL DEFAULT 0,
	final_category         TEXT NOT NULL DEFAULT '',
	final_jurisdiction     TEXT NOT NULL DEFAULT '',
	corrected              INTEGER NOT NULL DEFAULT 0,
	flags                  TEXT NOT NULL DEFAULT '[]',
	created_at             DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_status ON expense_records(status);
CREATE INDEX IF NOT EXISTS idx_records_status_created ON expense_records(status, created_at);
CREATE INDEX IF NOT EXISTS idx_txns_status ON bank_transactions(status);
CREATE INDEX IF NOT EXISTS idx_txns_source_date ON bank_transactions(source, txn_date);
CREATE INDEX IF NOT EXISTS idx_decisions_record ON decisions(record_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const recordColumns = `id, external_id, vendor_raw, amount_cents, currency, txn_date, source,
	raw_payload, category, category_hint, jurisdiction, jurisdiction_hint, status, flag_reason,
	flags, confidence, matched_txn_id, receipt_path, posted_ref, original_amount_cents,
	original_date, processing_started_at, processing_attempts, last_error, processed_at,
	created_at, updated_at`

func (s *SQLiteStore) InsertRecord(ctx context.Context, rec *model.ExpenseRecord) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = model.RecordPending
	}

	flagsJSON, err := json.Marshal(rec.Flags)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: marshal flags")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO expense_records (id, external_id, vendor_raw, amount_cents, currency,
			txn_date, source, raw_payload, category, category_hint, jurisdiction,
			jurisdiction_hint, status, flags, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (external_id) DO NOTHING`,
		rec.ID, rec.ExternalID, rec.VendorRaw, rec.AmountCents, rec.Currency,
		rec.TxnDate, rec.Source, rec.RawPayload, rec.Category, rec.CategoryHint,
		rec.Jurisdiction, rec.JurisdictionHint, string(rec.Status), string(flagsJSON), now, now,
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: insert record")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*model.ExpenseRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM expense_records WHERE id = ?`, id)
	return scanRecord(row)
}

func (s *SQLiteStore) GetRecordByExternalID(ctx context.Context, externalID string) (*model.ExpenseRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM expense_records WHERE external_id = ?`, externalID)
	return scanRecord(row)
}

func (s *SQLiteStore) CountProcessing(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM expense_records WHERE status = 'processing'`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count processing")
}

func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[model.RecordStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM expense_records GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count by status")
	}
	defer rows.Close()

	counts := make(map[model.RecordStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan status count")
		}
		counts[model.RecordStatus(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count by status iterate")
}

// ClaimOldestPending relies on SQLite's single-writer model: the conditional
// UPDATE selects and transitions the oldest pending row in one statement, so
// concurrent claimants can never both see it as pending.
func (s *SQLiteStore) ClaimOldestPending(ctx context.Context) (*model.ExpenseRecord, error) {
	now := time.Now().UTC()
	row := s.db.QueryRowContext(ctx,
		`UPDATE expense_records
		 SET status = 'processing',
		     processing_started_at = ?,
		     processing_attempts = processing_attempts + 1,
		     updated_at = ?
		 WHERE id = (
		     SELECT id FROM expense_records
		     WHERE status = 'pending'
		     ORDER BY created_at, id
		     LIMIT 1
		 ) AND status = 'pending'
		 RETURNING `+recordColumns,
		now, now,
	)
	rec, err := scanRecord(row)
	if eris.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: claim pending")
	}
	return rec, nil
}

func (s *SQLiteStore) MarkPosted(ctx context.Context, id, txnID string, confidence int, postedRef string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE expense_records
		 SET status = 'posted', matched_txn_id = ?, confidence = ?, posted_ref = ?,
		     flag_reason = '', last_error = '', processed_at = ?, updated_at = ?
		 WHERE id = ? AND status = 'processing'`,
		txnID, confidence, postedRef, now, now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark posted %s", id)
	}
	return checkRowsAffected(res, "processing record", id)
}

func (s *SQLiteStore) MarkFlagged(ctx context.Context, id string, confidence int, flagReason string, flags []string) error {
	flagsJSON, err := json.Marshal(flags)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal flags")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE expense_records
		 SET status = 'flagged', confidence = ?, flag_reason = ?, flags = ?,
		     processed_at = ?, updated_at = ?
		 WHERE id = ? AND status = 'processing'`,
		confidence, flagReason, string(flagsJSON), now, now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark flagged %s", id)
	}
	return checkRowsAffected(res, "processing record", id)
}

func (s *SQLiteStore) MarkError(ctx context.Context, id, lastError string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE expense_records
		 SET status = 'error', last_error = ?, updated_at = ?
		 WHERE id = ? AND status = 'processing'`,
		lastError, now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark error %s", id)
	}
	return checkRowsAffected(res, "processing record", id)
}

func (s *SQLiteStore) ListStuck(ctx context.Context, olderThan time.Time) ([]model.ExpenseRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM expense_records
		 WHERE status = 'processing' AND processing_started_at < ?
		 ORDER BY processing_started_at`,
		olderThan,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list stuck")
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (s *SQLiteStore) ReleaseStuck(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE expense_records
		 SET status = 'pending', processing_started_at = NULL, updated_at = ?
		 WHERE id = ? AND status = 'processing'`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: release stuck %s", id)
	}
	return checkRowsAffected(res, "processing record", id)
}

func (s *SQLiteStore) ResetRecord(ctx context.Context, id, correctedCategory, correctedJurisdiction string) error {
	query := `UPDATE expense_records
		 SET status = 'pending', processing_started_at = NULL, last_error = '',
		     flag_reason = '', updated_at = ?`
	args := []any{time.Now().UTC()}
	if correctedCategory != "" {
		query += `, category = ?`
		args = append(args, correctedCategory)
	}
	if correctedJurisdiction != "" {
		query += `, jurisdiction = ?`
		args = append(args, correctedJurisdiction)
	}
	query += ` WHERE id = ? AND status IN ('flagged', 'error')`
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: reset record %s", id)
	}
	return checkRowsAffected(res, "flagged or errored record", id)
}

const txnColumns = `id, source, description_raw, amount_cents, txn_date, dedup_key, status,
	matched_record_id, matched_by, matched_at, import_batch_id, created_at`

func (s *SQLiteStore) InsertBankTransaction(ctx context.Context, txn *model.BankTransaction) (bool, error) {
	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}
	txn.CreatedAt = time.Now().UTC()
	if txn.Status == "" {
		txn.Status = model.TxnUnmatched
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO bank_transactions (id, source, description_raw, amount_cents, txn_date,
			dedup_key, status, import_batch_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (source, txn_date, amount_cents, dedup_key) DO NOTHING`,
		txn.ID, txn.Source, txn.DescriptionRaw, txn.AmountCents, txn.TxnDate,
		txn.DedupKey, string(txn.Status), txn.ImportBatchID, txn.CreatedAt,
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: insert transaction")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) GetTransaction(ctx context.Context, id string) (*model.BankTransaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+txnColumns+` FROM bank_transactions WHERE id = ?`, id)
	return scanTransaction(row)
}

func (s *SQLiteStore) ListCandidates(ctx context.Context, source string, date time.Time, windowDays int) ([]model.BankTransaction, error) {
	from := date.AddDate(0, 0, -windowDays)
	to := date.AddDate(0, 0, windowDays+1)

	query := `SELECT ` + txnColumns + ` FROM bank_transactions
		 WHERE status = 'unmatched' AND txn_date >= ? AND txn_date < ?`
	args := []any{from, to}
	if source != "" {
		query += ` AND source = ?`
		args = append(args, source)
	}
	query += ` ORDER BY txn_date, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list candidates")
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// MarkTransactionMatched only transitions unmatched rows. Re-marking a row
// already matched to the same record is treated as a no-op so reprocessing a
// partially completed record stays idempotent.
func (s *SQLiteStore) MarkTransactionMatched(ctx context.Context, txnID, recordID, matchedBy string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE bank_transactions
		 SET status = 'matched', matched_record_id = ?, matched_by = ?, matched_at = ?
		 WHERE id = ? AND status = 'unmatched'`,
		recordID, matchedBy, now, txnID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark transaction matched %s", txnID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n > 0 {
		return nil
	}

	existing, err := s.GetTransaction(ctx, txnID)
	if err != nil {
		return err
	}
	if existing.Status == model.TxnMatched && existing.MatchedRecordID != nil && *existing.MatchedRecordID == recordID {
		return nil
	}
	return eris.Errorf("sqlite: transaction %s not matchable (status %s)", txnID, existing.Status)
}

func (s *SQLiteStore) ListOrphanTransactions(ctx context.Context, olderThan time.Time, limit int) ([]model.BankTransaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+txnColumns+` FROM bank_transactions
		 WHERE status = 'unmatched' AND txn_date < ?
		 ORDER BY txn_date, id
		 LIMIT ?`,
		olderThan, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list orphans")
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (s *SQLiteStore) MarkTransactionManual(ctx context.Context, txnID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE bank_transactions SET status = 'manual' WHERE id = ? AND status = 'unmatched'`,
		txnID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark transaction manual %s", txnID)
	}
	return checkRowsAffected(res, "unmatched transaction", txnID)
}

func (s *SQLiteStore) ListVendorRules(ctx context.Context) ([]model.VendorRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pattern, default_category, default_jurisdiction, match_count,
			last_matched_at, created_at
		 FROM vendor_rules ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list vendor rules")
	}
	defer rows.Close()

	var rules []model.VendorRule
	for rows.Next() {
		var r model.VendorRule
		var lastMatched sql.NullTime
		if err := rows.Scan(&r.ID, &r.Pattern, &r.DefaultCategory, &r.DefaultJurisdiction,
			&r.MatchCount, &lastMatched, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan vendor rule")
		}
		if lastMatched.Valid {
			t := lastMatched.Time
			r.LastMatchedAt = &t
		}
		rules = append(rules, r)
	}
	return rules, eris.Wrap(rows.Err(), "sqlite: list vendor rules iterate")
}

func (s *SQLiteStore) CreateVendorRule(ctx context.Context, rule *model.VendorRule) (*model.VendorRule, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO vendor_rules (pattern, default_category, default_jurisdiction, match_count, created_at)
		 VALUES (?, ?, ?, 0, ?)`,
		rule.Pattern, rule.DefaultCategory, rule.DefaultJurisdiction, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: create vendor rule")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: last insert id")
	}

	created := *rule
	created.ID = id
	created.MatchCount = 0
	created.CreatedAt = now
	return &created, nil
}

func (s *SQLiteStore) TouchVendorRule(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE vendor_rules SET match_count = match_count + 1, last_matched_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: touch vendor rule %d", id)
	}
	return checkRowsAffected(res, "vendor rule", idString(id))
}

func (s *SQLiteStore) InsertDecision(ctx context.Context, d *model.Decision) error {
	flagsJSON, err := json.Marshal(d.Flags)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal decision flags")
	}
	d.CreatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO decisions (record_id, transaction_id, predicted_category,
			predicted_jurisdiction, predicted_confidence, final_category,
			final_jurisdiction, corrected, flags, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.RecordID, d.TransactionID, d.PredictedCategory, d.PredictedJurisdiction,
		d.PredictedConfidence, d.FinalCategory, d.FinalJurisdiction, d.Corrected,
		string(flagsJSON), d.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert decision")
	}
	d.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: last insert id")
}

func (s *SQLiteStore) ListDecisions(ctx context.Context, filter DecisionFilter) ([]model.Decision, error) {
	query := `SELECT id, record_id, transaction_id, predicted_category, predicted_jurisdiction,
		predicted_confidence, final_category, final_jurisdiction, corrected, flags, created_at
		FROM decisions WHERE 1=1`
	var args []any

	if filter.RecordID != "" {
		query += ` AND record_id = ?`
		args = append(args, filter.RecordID)
	}
	query += ` ORDER BY id DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list decisions")
	}
	defer rows.Close()

	var decisions []model.Decision
	for rows.Next() {
		var d model.Decision
		var txnID sql.NullString
		var flagsJSON string
		if err := rows.Scan(&d.ID, &d.RecordID, &txnID, &d.PredictedCategory,
			&d.PredictedJurisdiction, &d.PredictedConfidence, &d.FinalCategory,
			&d.FinalJurisdiction, &d.Corrected, &flagsJSON, &d.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan decision")
		}
		if txnID.Valid {
			t := txnID.String
			d.TransactionID = &t
		}
		if err := json.Unmarshal([]byte(flagsJSON), &d.Flags); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal decision flags")
		}
		decisions = append(decisions, d)
	}
	return decisions, eris.Wrap(rows.Err(), "sqlite: list decisions iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*model.ExpenseRecord, error) {
	var r model.ExpenseRecord
	var status string
	var flagsJSON string
	var matchedTxnID, receiptPath sql.NullString
	var origAmount sql.NullInt64
	var origDate, startedAt, processedAt sql.NullTime

	err := row.Scan(&r.ID, &r.ExternalID, &r.VendorRaw, &r.AmountCents, &r.Currency,
		&r.TxnDate, &r.Source, &r.RawPayload, &r.Category, &r.CategoryHint,
		&r.Jurisdiction, &r.JurisdictionHint, &status, &r.FlagReason, &flagsJSON,
		&r.Confidence, &matchedTxnID, &receiptPath, &r.PostedRef, &origAmount,
		&origDate, &startedAt, &r.ProcessingAttempts, &r.LastError, &processedAt,
		&r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan record")
	}

	r.Status = model.RecordStatus(status)
	if err := json.Unmarshal([]byte(flagsJSON), &r.Flags); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal flags")
	}
	if matchedTxnID.Valid {
		v := matchedTxnID.String
		r.MatchedTxnID = &v
	}
	if receiptPath.Valid {
		v := receiptPath.String
		r.ReceiptPath = &v
	}
	if origAmount.Valid {
		v := origAmount.Int64
		r.OriginalAmountCents = &v
	}
	if origDate.Valid {
		v := origDate.Time
		r.OriginalDate = &v
	}
	if startedAt.Valid {
		v := startedAt.Time
		r.ProcessingStartedAt = &v
	}
	if processedAt.Valid {
		v := processedAt.Time
		r.ProcessedAt = &v
	}
	return &r, nil
}

func collectRecords(rows *sql.Rows) ([]model.ExpenseRecord, error) {
	var records []model.ExpenseRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: iterate records")
}

func scanTransaction(row scannable) (*model.BankTransaction, error) {
	var t model.BankTransaction
	var status string
	var matchedRecordID sql.NullString
	var matchedAt sql.NullTime

	err := row.Scan(&t.ID, &t.Source, &t.DescriptionRaw, &t.AmountCents, &t.TxnDate,
		&t.DedupKey, &status, &matchedRecordID, &t.MatchedBy, &matchedAt,
		&t.ImportBatchID, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan transaction")
	}

	t.Status = model.TxnStatus(status)
	if matchedRecordID.Valid {
		v := matchedRecordID.String
		t.MatchedRecordID = &v
	}
	if matchedAt.Valid {
		v := matchedAt.Time
		t.MatchedAt = &v
	}
	return &t, nil
}

func collectTransactions(rows *sql.Rows) ([]model.BankTransaction, error) {
	var txns []model.BankTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *t)
	}
	return txns, eris.Wrap(rows.Err(), "sqlite: iterate transactions")
}
