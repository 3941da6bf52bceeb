package app_test

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"capline/internal/app"
	"capline/internal/config"
	"capline/internal/domain"
	"capline/internal/engine"
	"capline/internal/events"
	"capline/internal/repo"
)

var quiet = log.New(io.Discard, "", 0)

func finishedRun(t *testing.T, seed int64) *engine.Run {
	t.Helper()
	return playRun(t, seed, nil, func(m domain.Mission) string { return m.Options[0].ID })
}

func playRun(t *testing.T, seed int64, now func() time.Time, pick func(domain.Mission) string) *engine.Run {
	t.Helper()
	r, err := engine.NewRun(engine.Options{LearnerTeamID: "KC", Difficulty: domain.DifficultyRookie, Seed: &seed, Now: now, Logger: quiet})
	if err != nil {
		t.Fatalf("new run: %v", err)
	}
	for {
		m, ok := r.CurrentMission()
		if !ok {
			break
		}
		if _, err := r.SubmitLearnerOption(m.ID, pick(m)); err != nil {
			t.Fatalf("submit: %v", err)
		}
		if _, err := r.ApplyAIChoice(); err != nil {
			t.Fatalf("ai: %v", err)
		}
		if _, err := r.MaybeInjectEvent(); err != nil {
			t.Fatalf("event: %v", err)
		}
	}
	if _, err := r.FinishRun(); err != nil {
		t.Fatalf("finish: %v", err)
	}
	return r
}

func openArchive(t *testing.T) *app.Archive {
	t.Helper()
	a, err := app.OpenArchive(context.Background(), t.TempDir(), config.Default(), config.Secrets{}, quiet)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	a.Now = func() time.Time { return time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { a.Close() })
	return a
}

func TestArchiveRoundTrip(t *testing.T) {
	ctx := context.Background()
	a := openArchive(t)
	run := finishedRun(t, 201)

	rec, err := a.Store(ctx, run)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	got, err := a.Repo.GetRun(ctx, rec.RunID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	final, _ := run.Final()
	if got.Result.ReviewChecksum != final.ReviewChecksum || got.Cleared != final.Cleared || got.LearnerTeam != "KC" {
		t.Fatalf("archived run mismatch: %+v", got)
	}
	if (got.ClaimCode == nil) != (final.ClaimCode == nil) {
		t.Fatalf("claim code mismatch")
	}
	rows, err := a.Repo.LedgerRows(ctx, rec.RunID)
	if err != nil {
		t.Fatalf("ledger rows: %v", err)
	}
	if len(rows) != len(run.Ledger()) {
		t.Fatalf("ledger rows = %d, want %d", len(rows), len(run.Ledger()))
	}
	for i, row := range rows {
		if row != run.Ledger()[i] {
			t.Fatalf("row %d differs:\n%+v\n%+v", i, row, run.Ledger()[i])
		}
	}
	evts, err := a.Repo.Events(ctx, rec.RunID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if want := len(run.EventLog()) + 2; len(evts) != want {
		t.Fatalf("archive events = %d, want %d", len(evts), want)
	}
	if evts[len(evts)-1].Type != events.TypeRunArchived {
		t.Fatalf("last event = %s", evts[len(evts)-1].Type)
	}

	list, err := a.Repo.ListRuns(ctx, repo.RunFilter{Difficulty: "ROOKIE"})
	if err != nil || len(list) != 1 {
		t.Fatalf("list = %d, %v", len(list), err)
	}
	if list, _ := a.Repo.ListRuns(ctx, repo.RunFilter{Difficulty: "LEGEND"}); len(list) != 0 {
		t.Fatalf("filter by difficulty returned %d runs", len(list))
	}
}

func TestArchiveRejectsUnfinishedAndDuplicates(t *testing.T) {
	ctx := context.Background()
	a := openArchive(t)
	seed := int64(5)
	live, err := engine.NewRun(engine.Options{LearnerTeamID: "SF", Difficulty: domain.DifficultyPro, Seed: &seed, Logger: quiet})
	if err != nil {
		t.Fatalf("new run: %v", err)
	}
	if _, err := a.Store(ctx, live); !errors.Is(err, app.ErrRunNotFinished) {
		t.Fatalf("expected not finished, got %v", err)
	}
	run := finishedRun(t, 9)
	if _, err := a.Store(ctx, run); err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, err := a.Store(ctx, run); !errors.Is(err, repo.ErrAlreadyArchived) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if _, err := a.Repo.GetRun(ctx, "RUN-MISSING"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := a.Repo.LedgerRows(ctx, "RUN-MISSING"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestArchiveKeepsReplaysOfOneSeed(t *testing.T) {
	ctx := context.Background()
	a := openArchive(t)
	start := time.Date(2025, 7, 15, 9, 0, 0, 0, time.UTC)
	firstPick := playRun(t, 42, func() time.Time { return start }, func(m domain.Mission) string {
		return m.Options[0].ID
	})
	lastPick := playRun(t, 42, func() time.Time { return start.Add(time.Minute) }, func(m domain.Mission) string {
		return m.Options[len(m.Options)-1].ID
	})
	if firstPick.ID() == lastPick.ID() {
		t.Fatalf("replays of seed 42 share id %s", firstPick.ID())
	}
	for _, r := range []*engine.Run{firstPick, lastPick} {
		if _, err := a.Store(ctx, r); err != nil {
			t.Fatalf("store %s: %v", r.ID(), err)
		}
		rows, err := a.Repo.LedgerRows(ctx, r.ID())
		if err != nil {
			t.Fatalf("ledger rows %s: %v", r.ID(), err)
		}
		if len(rows) != len(r.Ledger()) {
			t.Fatalf("ledger of %s came back as %d rows", r.ID(), len(rows))
		}
		for _, row := range rows {
			if row.RunID != r.ID() {
				t.Fatalf("ledger of %s holds a row of %s", r.ID(), row.RunID)
			}
		}
	}
	list, err := a.Repo.ListRuns(ctx, repo.RunFilter{})
	if err != nil || len(list) != 2 {
		t.Fatalf("list = %d, %v", len(list), err)
	}
}
