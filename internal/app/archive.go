package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"capline/internal/config"
	"capline/internal/db"
	"capline/internal/engine"
	"capline/internal/events"
	"capline/internal/migrate"
	"capline/internal/repo"
)

var ErrRunNotFinished = errors.New("only finished runs can be archived")

// Archive stores finished runs as read-only exports.
type Archive struct {
	DB     *db.DB
	Repo   repo.Repo
	Events events.Writer
	Now    func() time.Time
	Logger *log.Logger
}

// OpenArchive connects to the configured archive database and migrates it.
func OpenArchive(ctx context.Context, workspace string, cfg *config.Config, secrets config.Secrets, logger *log.Logger) (*Archive, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = log.Default()
	}
	conn, err := db.Open(ctx, db.Config{
		Workspace: workspace,
		Dialect:   db.Dialect(cfg.Archive.Dialect),
		Path:      cfg.Archive.Path,
		DSN:       secrets.PostgresDSN,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	version, err := migrate.Migrate(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate archive: %w", err)
	}
	logger.Printf("archive: ready dialect=%s schema_version=%d", conn.Dialect, version)
	return &Archive{
		DB:     conn,
		Repo:   repo.Repo{DB: conn},
		Events: events.Writer{DB: conn},
		Logger: logger,
	}, nil
}

func (a *Archive) Close() error {
	return a.DB.Close()
}

func (a *Archive) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// Store writes a finished run, its ledger and its event log in one
// transaction.
func (a *Archive) Store(ctx context.Context, run *engine.Run) (repo.RunRecord, error) {
	final, ok := run.Final()
	if !ok {
		return repo.RunRecord{}, ErrRunNotFinished
	}
	snap := run.Snapshot()
	rec := repo.RunRecord{
		RunID:            final.RunID,
		Difficulty:       string(final.Difficulty),
		LearnerTeam:      snap.Learner.TeamID,
		AITeam:           snap.AI.TeamID,
		Seed:             run.Seed(),
		Cleared:          final.Cleared,
		XPAwarded:        final.XPAwarded,
		ClaimCode:        final.ClaimCode,
		ReviewChecksum:   final.ReviewChecksum,
		LearnerComposite: final.LearnerComposite,
		AIComposite:      final.AIComposite,
		Margin:           final.Margin,
		StartedAt:        snap.StartedAt,
		ArchivedAt:       a.now().UTC().Format(time.RFC3339),
		Result:           final,
	}
	ev := a.Events
	ev.Now = a.Now

	tx, err := a.DB.BeginTx(ctx, nil)
	if err != nil {
		return repo.RunRecord{}, err
	}
	defer tx.Rollback()
	if err := a.Repo.InsertRunTx(ctx, tx, rec); err != nil {
		return repo.RunRecord{}, err
	}
	if err := a.Repo.InsertLedgerRowsTx(ctx, tx, rec.RunID, run.Ledger()); err != nil {
		return repo.RunRecord{}, err
	}
	for _, e := range run.EventLog() {
		if err := ev.Append(ctx, tx, events.TypeEventInjected, rec.RunID, events.EventPayload{
			"event_id":           e.EventID,
			"event_type":         e.EventType,
			"mission_checkpoint": e.MissionCheckpoint,
			"cap_delta_m":        e.CapDeltaM.String(),
			"dead_cap_delta_m":   e.DeadCapDeltaM.String(),
			"metric_deltas":      e.MetricDeltas,
			"occurred_at":        e.Timestamp,
		}); err != nil {
			return repo.RunRecord{}, err
		}
	}
	if err := ev.Append(ctx, tx, events.TypeGatesResolved, rec.RunID, events.EventPayload{
		"legal_gate":      final.LegalGate,
		"difficulty_gate": final.DifficultyGate,
		"ai_margin_gate":  final.AIMarginGate,
		"cleared":         final.Cleared,
	}); err != nil {
		return repo.RunRecord{}, err
	}
	if err := ev.Append(ctx, tx, events.TypeRunArchived, rec.RunID, events.EventPayload{
		"ledger_rows": len(run.Ledger()),
		"xp_awarded":  final.XPAwarded,
	}); err != nil {
		return repo.RunRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return repo.RunRecord{}, err
	}
	a.Logger.Printf("archive: stored run=%s cleared=%t", rec.RunID, rec.Cleared)
	return rec, nil
}
