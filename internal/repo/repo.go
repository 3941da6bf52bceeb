package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"capline/internal/db"
	"capline/internal/domain"
	"capline/internal/ledger"
)

type Repo struct {
	DB *db.DB
}

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyArchived = errors.New("run already archived")
)

// RunRecord is an archived, finished run. It is an export and cannot be
// turned back into a live run.
type RunRecord struct {
	RunID            string             `json:"run_id"`
	Difficulty       string             `json:"difficulty"`
	LearnerTeam      string             `json:"learner_team"`
	AITeam           string             `json:"ai_team"`
	Seed             int64              `json:"seed"`
	Cleared          bool               `json:"cleared"`
	XPAwarded        int                `json:"xp_awarded"`
	ClaimCode        *string            `json:"claim_code"`
	ReviewChecksum   string             `json:"review_checksum"`
	LearnerComposite int                `json:"learner_composite"`
	AIComposite      int                `json:"ai_composite"`
	Margin           int                `json:"margin"`
	StartedAt        string             `json:"started_at"`
	ArchivedAt       string             `json:"archived_at"`
	Result           domain.FinalResult `json:"result"`
}

type ArchiveEvent struct {
	ID        int64           `json:"id"`
	Timestamp string          `json:"ts"`
	Type      string          `json:"type"`
	RunID     string          `json:"run_id"`
	Payload   json.RawMessage `json:"payload"`
}

var runColumns = []string{
	"run_id", "difficulty", "learner_team", "ai_team", "seed",
	"cleared", "legal_gate", "difficulty_gate", "ai_margin_gate",
	"margin", "margin_required", "learner_composite", "ai_composite",
	"xp_awarded", "claim_code", "review_checksum", "mission_count",
	"events_triggered", "result_json", "started_at", "archived_at",
}

// ledgerColumns mirrors ledger.Columns; timestamp is stored as ts.
func ledgerColumns() []string {
	cols := append([]string{}, ledger.Columns...)
	cols[0] = "ts"
	return cols
}

// ledgerInsertColumns is the ledger_rows column list for inserts. run_id
// leads as the row's key, so the record's own run_id field is skipped.
func ledgerInsertColumns() []string {
	cols := []string{"run_id", "seq"}
	for i, c := range ledgerColumns() {
		if i == ledgerRunIDField {
			continue
		}
		cols = append(cols, c)
	}
	return cols
}

const ledgerRunIDField = 1

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullable(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func (r Repo) RunExists(ctx context.Context, runID string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx, r.DB.Rebind(`SELECT 1 FROM runs WHERE run_id=?`), runID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) InsertRunTx(ctx context.Context, tx *sql.Tx, rec RunRecord) error {
	var one int
	err := tx.QueryRowContext(ctx, r.DB.Rebind(`SELECT 1 FROM runs WHERE run_id=?`), rec.RunID).Scan(&one)
	if err == nil {
		return ErrAlreadyArchived
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	data, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	res := rec.Result
	_, err = tx.ExecContext(ctx, r.DB.InsertQuery("runs", runColumns),
		rec.RunID, rec.Difficulty, rec.LearnerTeam, rec.AITeam, rec.Seed,
		boolInt(res.Cleared), boolInt(res.LegalGate), boolInt(res.DifficultyGate), boolInt(res.AIMarginGate),
		res.Margin, res.MarginRequired, res.LearnerComposite, res.AIComposite,
		res.XPAwarded, nullable(res.ClaimCode), res.ReviewChecksum, res.MissionCount,
		res.EventsTriggered, string(data), rec.StartedAt, rec.ArchivedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (r Repo) InsertLedgerRowsTx(ctx context.Context, tx *sql.Tx, runID string, rows []domain.LedgerRow) error {
	q := r.DB.InsertQuery("ledger_rows", ledgerInsertColumns())
	for i, row := range rows {
		if row.RunID != runID {
			return fmt.Errorf("ledger row %d belongs to %s, not %s", i, row.RunID, runID)
		}
		args := []any{runID, i}
		for j, v := range ledger.Record(row) {
			if j == ledgerRunIDField {
				continue
			}
			args = append(args, v)
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert ledger row %d: %w", i, err)
		}
	}
	return nil
}

const runSelect = `SELECT run_id,difficulty,learner_team,ai_team,seed,cleared,xp_awarded,claim_code,review_checksum,learner_composite,ai_composite,margin,started_at,archived_at,result_json FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (RunRecord, error) {
	var (
		rec     RunRecord
		cleared int
		claim   sql.NullString
		result  string
	)
	err := s.Scan(&rec.RunID, &rec.Difficulty, &rec.LearnerTeam, &rec.AITeam, &rec.Seed, &cleared,
		&rec.XPAwarded, &claim, &rec.ReviewChecksum, &rec.LearnerComposite, &rec.AIComposite,
		&rec.Margin, &rec.StartedAt, &rec.ArchivedAt, &result)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, err
	}
	rec.Cleared = cleared == 1
	if claim.Valid {
		c := claim.String
		rec.ClaimCode = &c
	}
	if err := json.Unmarshal([]byte(result), &rec.Result); err != nil {
		return rec, fmt.Errorf("decode result of %s: %w", rec.RunID, err)
	}
	return rec, nil
}

func (r Repo) GetRun(ctx context.Context, runID string) (RunRecord, error) {
	return scanRun(r.DB.QueryRowContext(ctx, r.DB.Rebind(runSelect+` WHERE run_id=?`), runID))
}

// RunFilter narrows ListRuns. Zero values match everything.
type RunFilter struct {
	Difficulty  string
	LearnerTeam string
	ClearedOnly bool
	Limit       int
}

func (r Repo) ListRuns(ctx context.Context, f RunFilter) ([]RunRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.Difficulty != "" {
		where = append(where, "difficulty=?")
		args = append(args, f.Difficulty)
	}
	if f.LearnerTeam != "" {
		where = append(where, "learner_team=?")
		args = append(args, f.LearnerTeam)
	}
	if f.ClearedOnly {
		where = append(where, "cleared=1")
	}
	q := runSelect
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY archived_at DESC, run_id"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, r.DB.Rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

func (r Repo) LedgerRows(ctx context.Context, runID string) ([]domain.LedgerRow, error) {
	cols := ledgerColumns()
	q := fmt.Sprintf(`SELECT %s FROM ledger_rows WHERE run_id=? ORDER BY seq`, strings.Join(cols, ","))
	rows, err := r.DB.QueryContext(ctx, r.DB.Rebind(q), runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.LedgerRow
	for rows.Next() {
		rec := make([]string, len(cols))
		dest := make([]any, len(cols))
		for i := range rec {
			dest[i] = &rec[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		row, err := ledger.ParseRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("ledger row of %s: %w", runID, err)
		}
		res = append(res, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(res) == 0 {
		if ok, err := r.RunExists(ctx, runID); err != nil {
			return nil, err
		} else if !ok {
			return nil, ErrNotFound
		}
	}
	return res, nil
}

func (r Repo) Events(ctx context.Context, runID string) ([]ArchiveEvent, error) {
	rows, err := r.DB.QueryContext(ctx, r.DB.Rebind(`SELECT id,ts,type,run_id,payload_json FROM archive_events WHERE run_id=? ORDER BY id`), runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []ArchiveEvent
	for rows.Next() {
		var (
			e       ArchiveEvent
			payload string
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Type, &e.RunID, &payload); err != nil {
			return nil, err
		}
		e.Payload = json.RawMessage(payload)
		res = append(res, e)
	}
	return res, rows.Err()
}
