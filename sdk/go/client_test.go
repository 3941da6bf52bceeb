package caplinesdk_test

import (
	"bytes"
	"context"
	"io"
	"log"
	"net/http/httptest"
	"testing"

	"capline/internal/app"
	"capline/internal/config"
	"capline/internal/receipt"
	"capline/internal/server"
	caplinesdk "capline/sdk/go"
)

func newClient(t *testing.T) *caplinesdk.Client {
	t.Helper()
	quiet := log.New(io.Discard, "", 0)
	archive, err := app.OpenArchive(context.Background(), t.TempDir(), config.Default(), config.Secrets{}, quiet)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	handler, err := server.New(server.Config{
		Archive:  archive,
		Receipts: receipt.Issuer{Secret: "sdk-secret"},
		BasePath: "/v0",
		Logger:   quiet,
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		archive.Close()
	})
	return caplinesdk.New(srv.URL)
}

func TestClientPlaysAndArchives(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	seed := int64(201)
	h, err := c.CreateRun(ctx, "KC", "ROOKIE", &seed)
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	fin, err := c.PlayFirstOptions(ctx, h.Key)
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if fin.Result.RunID == "" || fin.Receipt == "" {
		t.Fatalf("expected result and receipt, got %+v", fin)
	}
	ok, err := c.VerifyReceipt(ctx, fin.Receipt)
	if err != nil || !ok {
		t.Fatalf("verify receipt: ok=%v err=%v", ok, err)
	}
	csv, err := c.LedgerCSV(ctx, h.Key)
	if err != nil {
		t.Fatalf("ledger csv: %v", err)
	}
	if lines := bytes.Count(csv, []byte("\n")); lines != 8 {
		t.Fatalf("expected 8 csv lines, got %d", lines)
	}
	if _, err := c.Archive(ctx, h.Key); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if _, err := c.Archive(ctx, h.Key); !caplinesdk.IsCode(err, "already_archived") {
		t.Fatalf("expected already_archived, got %v", err)
	}
	runs, err := c.ArchivedRuns(ctx, "ROOKIE", 10)
	if err != nil {
		t.Fatalf("list archive: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != fin.Result.RunID {
		t.Fatalf("unexpected archive listing: %+v", runs)
	}
}

func TestClientSurfacesErrorCodes(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	if _, err := c.CreateRun(ctx, "NYJ", "ROOKIE", nil); !caplinesdk.IsCode(err, "unknown_team") {
		t.Fatalf("expected unknown_team, got %v", err)
	}
	if _, err := c.GetRun(ctx, "missing"); !caplinesdk.IsCode(err, "not_found") {
		t.Fatalf("expected not_found, got %v", err)
	}
}
