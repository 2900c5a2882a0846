package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/recon-cli/internal/db"
	"github.com/sells-group/recon-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations.
var preparedStatements = map[string]string{
	"claim_pending":    pgClaimPending,
	"count_processing": `SELECT COUNT(*) FROM expense_records WHERE status = 'processing'`,
	"get_record":       `SELECT ` + recordColumns + ` FROM expense_records WHERE id = $1`,
	"list_rules": `SELECT id, pattern, default_category, default_jurisdiction, match_count,
		last_matched_at, created_at FROM vendor_rules ORDER BY id`,
	"touch_rule": `UPDATE vendor_rules SET match_count = match_count + 1, last_matched_at = $1 WHERE id = $2`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool; used by tests.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS expense_records (
	id                    TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	external_id           TEXT NOT NULL UNIQUE,
	vendor_raw            TEXT NOT NULL,
	amount_cents          BIGINT NOT NULL,
	currency              TEXT NOT NULL DEFAULT 'USD',
	txn_date              TIMESTAMPTZ NOT NULL,
	source                TEXT NOT NULL DEFAULT '',
	raw_payload           TEXT NOT NULL DEFAULT '',
	category              TEXT NOT NULL DEFAULT '',
	category_hint         TEXT NOT NULL DEFAULT '',
	jurisdiction          TEXT NOT NULL DEFAULT '',
	jurisdiction_hint     TEXT NOT NULL DEFAULT '',
	status                TEXT NOT NULL DEFAULT 'pending',
	flag_reason           TEXT NOT NULL DEFAULT '',
	flags                 JSONB NOT NULL DEFAULT '[]',
	confidence            INTEGER NOT NULL DEFAULT 0,
	matched_txn_id        TEXT,
	receipt_path          TEXT,
	posted_ref            TEXT NOT NULL DEFAULT '',
	original_amount_cents BIGINT,
	original_date         TIMESTAMPTZ,
	processing_started_at TIMESTAMPTZ,
	processing_attempts   INTEGER NOT NULL DEFAULT 0,
	last_error            TEXT NOT NULL DEFAULT '',
	processed_at          TIMESTAMPTZ,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS bank_transactions (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	source            TEXT NOT NULL,
	description_raw   TEXT NOT NULL,
	amount_cents      BIGINT NOT NULL,
	txn_date          TIMESTAMPTZ NOT NULL,
	dedup_key         TEXT NOT NULL,
	status            TEXT NOT NULL DEFAULT 'unmatched',
	matched_record_id TEXT,
	matched_by        TEXT NOT NULL DEFAULT '',
	matched_at        TIMESTAMPTZ,
	import_batch_id   TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (source, txn_date, amount_cents, dedup_key)
);

CREATE TABLE IF NOT EXISTS vendor_rules (
	id                   BIGSERIAL PRIMARY KEY,
	pattern              TEXT NOT NULL,
	default_category     TEXT NOT NULL DEFAULT '',
	default_jurisdiction TEXT NOT NULL DEFAULT '',
	match_count          BIGINT NOT NULL DEFAULT 0,
	last_matched_at      TIMESTAMPTZ,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS decisions (
	id                     BIGSERIAL PRIMARY KEY,
	record_id              TEXT NOT NULL,
	transaction_id         TEXT,
	predicted_category     TEXT NOT NULL DEFAULT '',
	predicted_jurisdiction TEXT NOT NULL DEFAULT '',
	predicted_confidence   INTEGER NOT NULL DEFAULT 0,
	final_category         TEXT NOT NULL DEFAULT '',
	final_jurisdiction     TEXT NOT NULL DEFAULT '',
	corrected              BOOLEAN NOT NULL DEFAULT false,
	flags                  JSONB NOT NULL DEFAULT '[]',
	created_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_records_status ON expense_records(status);
CREATE INDEX IF NOT EXISTS idx_records_status_created ON expense_records(status, created_at);
CREATE INDEX IF NOT EXISTS idx_txns_status ON bank_transactions(status);
CREATE INDEX IF NOT EXISTS idx_txns_source_date ON bank_transactions(source, txn_date);
CREATE INDEX IF NOT EXISTS idx_decisions_record ON decisions(record_id);
`

// pgClaimPending claims the oldest pending record. SKIP LOCKED makes the
// inner select pass over rows another claimant is transitioning, so two
// concurrent claims never return the same record.
const pgClaimPending = `
UPDATE expense_records
SET status = 'processing',
    processing_started_at = now(),
    processing_attempts = processing_attempts + 1,
    updated_at = now()
WHERE id = (
    SELECT id FROM expense_records
    WHERE status = 'pending'
    ORDER BY created_at, id
    LIMIT 1
    FOR UPDATE SKIP LOCKED
)
RETURNING ` + recordColumns

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) InsertRecord(ctx context.Context, rec *model.ExpenseRecord) (bool, error) {
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
		return false, eris.Wrap(err, "postgres: marshal flags")
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO expense_records (id, external_id, vendor_raw, amount_cents, currency,
			txn_date, source, raw_payload, category, category_hint, jurisdiction,
			jurisdiction_hint, status, flags, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (external_id) DO NOTHING`,
		rec.ID, rec.ExternalID, rec.VendorRaw, rec.AmountCents, rec.Currency,
		rec.TxnDate, rec.Source, rec.RawPayload, rec.Category, rec.CategoryHint,
		rec.Jurisdiction, rec.JurisdictionHint, string(rec.Status), flagsJSON, now, now,
	)
	if err != nil {
		return false, eris.Wrap(err, "postgres: insert record")
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) GetRecord(ctx context.Context, id string) (*model.ExpenseRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM expense_records WHERE id = $1`, id)
	return scanRecordPG(row)
}

func (s *PostgresStore) GetRecordByExternalID(ctx context.Context, externalID string) (*model.ExpenseRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM expense_records WHERE external_id = $1`, externalID)
	return scanRecordPG(row)
}

func (s *PostgresStore) CountProcessing(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM expense_records WHERE status = 'processing'`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count processing")
}

func (s *PostgresStore) CountByStatus(ctx context.Context) (map[model.RecordStatus]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM expense_records GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count by status")
	}
	defer rows.Close()

	counts := make(map[model.RecordStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan status count")
		}
		counts[model.RecordStatus(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count by status iterate")
}

func (s *PostgresStore) ClaimOldestPending(ctx context.Context) (*model.ExpenseRecord, error) {
	row := s.pool.QueryRow(ctx, pgClaimPending)
	rec, err := scanRecordPG(row)
	if eris.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: claim pending")
	}
	return rec, nil
}

func (s *PostgresStore) MarkPosted(ctx context.Context, id, txnID string, confidence int, postedRef string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE expense_records
		 SET status = 'posted', matched_txn_id = $1, confidence = $2, posted_ref = $3,
		     flag_reason = '', last_error = '', processed_at = now(), updated_at = now()
		 WHERE id = $4 AND status = 'processing'`,
		txnID, confidence, postedRef, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark posted %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("processing record not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) MarkFlagged(ctx context.Context, id string, confidence int, flagReason string, flags []string) error {
	flagsJSON, err := json.Marshal(flags)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal flags")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE expense_records
		 SET status = 'flagged', confidence = $1, flag_reason = $2, flags = $3,
		     processed_at = now(), updated_at = now()
		 WHERE id = $4 AND status = 'processing'`,
		confidence, flagReason, flagsJSON, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark flagged %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("processing record not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) MarkError(ctx context.Context, id, lastError string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE expense_records
		 SET status = 'error', last_error = $1, updated_at = now()
		 WHERE id = $2 AND status = 'processing'`,
		lastError, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark error %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("processing record not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) ListStuck(ctx context.Context, olderThan time.Time) ([]model.ExpenseRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM expense_records
		 WHERE status = 'processing' AND processing_started_at < $1
		 ORDER BY processing_started_at`,
		olderThan,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list stuck")
	}
	defer rows.Close()

	var records []model.ExpenseRecord
	for rows.Next() {
		r, err := scanRecordPG(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list stuck iterate")
}

func (s *PostgresStore) ReleaseStuck(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE expense_records
		 SET status = 'pending', processing_started_at = NULL, updated_at = now()
		 WHERE id = $1 AND status = 'processing'`,
		id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: release stuck %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("processing record not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) ResetRecord(ctx context.Context, id, correctedCategory, correctedJurisdiction string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE expense_records
		 SET status = 'pending', processing_started_at = NULL, last_error = '',
		     flag_reason = '',
		     category = COALESCE(NULLIF($1, ''), category),
		     jurisdiction = COALESCE(NULLIF($2, ''), jurisdiction),
		     updated_at = now()
		 WHERE id = $3 AND status IN ('flagged', 'error')`,
		correctedCategory, correctedJurisdiction, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: reset record %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("flagged or errored record not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) InsertBankTransaction(ctx context.Context, txn *model.BankTransaction) (bool, error) {
	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}
	txn.CreatedAt = time.Now().UTC()
	if txn.Status == "" {
		txn.Status = model.TxnUnmatched
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO bank_transactions (id, source, description_raw, amount_cents, txn_date,
			dedup_key, status, import_batch_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (source, txn_date, amount_cents, dedup_key) DO NOTHING`,
		txn.ID, txn.Source, txn.DescriptionRaw, txn.AmountCents, txn.TxnDate,
		txn.DedupKey, string(txn.Status), txn.ImportBatchID, txn.CreatedAt,
	)
	if err != nil {
		return false, eris.Wrap(err, "postgres: insert transaction")
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) GetTransaction(ctx context.Context, id string) (*model.BankTransaction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+txnColumns+` FROM bank_transactions WHERE id = $1`, id)
	return scanTransactionPG(row)
}

func (s *PostgresStore) ListCandidates(ctx context.Context, source string, date time.Time, windowDays int) ([]model.BankTransaction, error) {
	from := date.AddDate(0, 0, -windowDays)
	to := date.AddDate(0, 0, windowDays+1)

	query := `SELECT ` + txnColumns + ` FROM bank_transactions
		 WHERE status = 'unmatched' AND txn_date >= $1 AND txn_date < $2`
	args := []any{from, to}
	if source != "" {
		query += ` AND source = $3`
		args = append(args, source)
	}
	query += ` ORDER BY txn_date, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list candidates")
	}
	defer rows.Close()

	var txns []model.BankTransaction
	for rows.Next() {
		t, err := scanTransactionPG(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *t)
	}
	return txns, eris.Wrap(rows.Err(), "postgres: list candidates iterate")
}

func (s *PostgresStore) MarkTransactionMatched(ctx context.Context, txnID, recordID, matchedBy string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE bank_transactions
		 SET status = 'matched', matched_record_id = $1, matched_by = $2, matched_at = now()
		 WHERE id = $3 AND status = 'unmatched'`,
		recordID, matchedBy, txnID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark transaction matched %s", txnID)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	existing, err := s.GetTransaction(ctx, txnID)
	if err != nil {
		return err
	}
	if existing.Status == model.TxnMatched && existing.MatchedRecordID != nil && *existing.MatchedRecordID == recordID {
		return nil
	}
	return eris.Errorf("postgres: transaction %s not matchable (status %s)", txnID, existing.Status)
}

func (s *PostgresStore) ListOrphanTransactions(ctx context.Context, olderThan time.Time, limit int) ([]model.BankTransaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+txnColumns+` FROM bank_transactions
		 WHERE status = 'unmatched' AND txn_date < $1
		 ORDER BY txn_date, id
		 LIMIT $2`,
		olderThan, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list orphans")
	}
	defer rows.Close()

	var txns []model.BankTransaction
	for rows.Next() {
		t, err := scanTransactionPG(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *t)
	}
	return txns, eris.Wrap(rows.Err(), "postgres: list orphans iterate")
}

func (s *PostgresStore) MarkTransactionManual(ctx context.Context, txnID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE bank_transactions SET status = 'manual' WHERE id = $1 AND status = 'unmatched'`,
		txnID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark transaction manual %s", txnID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("unmatched transaction not found: %s", txnID)
	}
	return nil
}

func (s *PostgresStore) ListVendorRules(ctx context.Context) ([]model.VendorRule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, pattern, default_category, default_jurisdiction, match_count,
			last_matched_at, created_at
		 FROM vendor_rules ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list vendor rules")
	}
	defer rows.Close()

	var rules []model.VendorRule
	for rows.Next() {
		var r model.VendorRule
		if err := rows.Scan(&r.ID, &r.Pattern, &r.DefaultCategory, &r.DefaultJurisdiction,
			&r.MatchCount, &r.LastMatchedAt, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan vendor rule")
		}
		rules = append(rules, r)
	}
	return rules, eris.Wrap(rows.Err(), "postgres: list vendor rules iterate")
}

func (s *PostgresStore) CreateVendorRule(ctx context.Context, rule *model.VendorRule) (*model.VendorRule, error) {
	created := *rule
	err := s.pool.QueryRow(ctx,
		`INSERT INTO vendor_rules (pattern, default_category, default_jurisdiction, match_count, created_at)
		 VALUES ($1, $2, $3, 0, now())
		 RETURNING id, match_count, created_at`,
		rule.Pattern, rule.DefaultCategory, rule.DefaultJurisdiction,
	).Scan(&created.ID, &created.MatchCount, &created.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create vendor rule")
	}
	return &created, nil
}

func (s *PostgresStore) TouchVendorRule(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE vendor_rules SET match_count = match_count + 1, last_matched_at = $1 WHERE id = $2`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: touch vendor rule %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("vendor rule not found: %d", id)
	}
	return nil
}

func (s *PostgresStore) InsertDecision(ctx context.Context, d *model.Decision) error {
	flagsJSON, err := json.Marshal(d.Flags)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal decision flags")
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO decisions (record_id, transaction_id, predicted_category,
			predicted_jurisdiction, predicted_confidence, final_category,
			final_jurisdiction, corrected, flags, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		 RETURNING id, created_at`,
		d.RecordID, d.TransactionID, d.PredictedCategory, d.PredictedJurisdiction,
		d.PredictedConfidence, d.FinalCategory, d.FinalJurisdiction, d.Corrected, flagsJSON,
	).Scan(&d.ID, &d.CreatedAt)
	return eris.Wrap(err, "postgres: insert decision")
}

func (s *PostgresStore) ListDecisions(ctx context.Context, filter DecisionFilter) ([]model.Decision, error) {
	query := `SELECT id, record_id, transaction_id, predicted_category, predicted_jurisdiction,
		predicted_confidence, final_category, final_jurisdiction, corrected, flags, created_at
		FROM decisions WHERE 1=1`
	var args []any

	if filter.RecordID != "" {
		args = append(args, filter.RecordID)
		query += ` AND record_id = $1`
	}
	query += ` ORDER BY id DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	args = append(args, limit)
	if filter.RecordID != "" {
		query += ` LIMIT $2`
	} else {
		query += ` LIMIT $1`
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list decisions")
	}
	defer rows.Close()

	var decisions []model.Decision
	for rows.Next() {
		var d model.Decision
		var flagsJSON []byte
		if err := rows.Scan(&d.ID, &d.RecordID, &d.TransactionID, &d.PredictedCategory,
			&d.PredictedJurisdiction, &d.PredictedConfidence, &d.FinalCategory,
			&d.FinalJurisdiction, &d.Corrected, &flagsJSON, &d.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan decision")
		}
		if err := json.Unmarshal(flagsJSON, &d.Flags); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal decision flags")
		}
		decisions = append(decisions, d)
	}
	return decisions, eris.Wrap(rows.Err(), "postgres: list decisions iterate")
}

// pg scan helpers

func scanRecordPG(row pgx.Row) (*model.ExpenseRecord, error) {
	var r model.ExpenseRecord
	var status string
	var flagsJSON []byte

	err := row.Scan(&r.ID, &r.ExternalID, &r.VendorRaw, &r.AmountCents, &r.Currency,
		&r.TxnDate, &r.Source, &r.RawPayload, &r.Category, &r.CategoryHint,
		&r.Jurisdiction, &r.JurisdictionHint, &status, &r.FlagReason, &flagsJSON,
		&r.Confidence, &r.MatchedTxnID, &r.ReceiptPath, &r.PostedRef, &r.OriginalAmountCents,
		&r.OriginalDate, &r.ProcessingStartedAt, &r.ProcessingAttempts, &r.LastError,
		&r.ProcessedAt, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan record")
	}

	r.Status = model.RecordStatus(status)
	if err := json.Unmarshal(flagsJSON, &r.Flags); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal flags")
	}
	return &r, nil
}

func scanTransactionPG(row pgx.Row) (*model.BankTransaction, error) {
	var t model.BankTransaction
	var status string

	err := row.Scan(&t.ID, &t.Source, &t.DescriptionRaw, &t.AmountCents, &t.TxnDate,
		&t.DedupKey, &status, &t.MatchedRecordID, &t.MatchedBy, &t.MatchedAt,
		&t.ImportBatchID, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan transaction")
	}

	t.Status = model.TxnStatus(status)
	return &t, nil
}
