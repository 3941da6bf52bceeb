package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"capline/internal/engine"
	"capline/internal/repo"
)

func registerArchive(api huma.API, svc *service) {
	huma.Register(api, huma.Operation{
		OperationID:   "archive-run",
		Method:        http.MethodPost,
		Path:          "/runs/{key}/archive",
		Summary:       "Export a finished run to the archive",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusNotFound, http.StatusConflict, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *runPath) (*struct {
		Body repo.RunRecord `json:"body"`
	}, error) {
		if svc.archive == nil {
			return nil, handleError(errArchiveDisabled)
		}
		var rec repo.RunRecord
		err := svc.runs.with(input.Key, func(r *engine.Run) error {
			var err error
			rec, err = svc.archive.Store(ctx, r)
			return err
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body repo.RunRecord `json:"body"`
		}{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-archived-runs",
		Method:      http.MethodGet,
		Path:        "/archive/runs",
		Summary:     "List archived runs",
		Errors:      []int{http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Difficulty string `query:"difficulty"`
		Team       string `query:"team"`
		Cleared    bool   `query:"cleared"`
		Limit      int    `query:"limit" minimum:"0" maximum:"500"`
	}) (*struct {
		Body ArchivedRunsResponse `json:"body"`
	}, error) {
		if svc.archive == nil {
			return nil, handleError(errArchiveDisabled)
		}
		limit := input.Limit
		if limit == 0 {
			limit = 50
		}
		items, err := svc.archive.Repo.ListRuns(ctx, repo.RunFilter{
			Difficulty:  input.Difficulty,
			LearnerTeam: input.Team,
			ClearedOnly: input.Cleared,
			Limit:       limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []repo.RunRecord{}
		}
		return &struct {
			Body ArchivedRunsResponse `json:"body"`
		}{Body: ArchivedRunsResponse{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-archived-run",
		Method:      http.MethodGet,
		Path:        "/archive/runs/{run_id}",
		Summary:     "Get an archived run with its ledger and archive events",
		Errors:      []int{http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		RunID string `path:"run_id"`
	}) (*struct {
		Body ArchivedRunResponse `json:"body"`
	}, error) {
		if svc.archive == nil {
			return nil, handleError(errArchiveDisabled)
		}
		rec, err := svc.archive.Repo.GetRun(ctx, input.RunID)
		if err != nil {
			return nil, handleError(err)
		}
		rows, err := svc.archive.Repo.LedgerRows(ctx, input.RunID)
		if err != nil {
			return nil, handleError(err)
		}
		evts, err := svc.archive.Repo.Events(ctx, input.RunID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ArchivedRunResponse `json:"body"`
		}{Body: ArchivedRunResponse{Run: rec, Rows: rows, Events: evts}}, nil
	})
}

func registerReceipts(api huma.API, svc *service) {
	huma.Register(api, huma.Operation{
		OperationID: "verify-receipt",
		Method:      http.MethodPost,
		Path:        "/receipts/verify",
		Summary:     "Verify a completion receipt",
		Errors:      []int{http.StatusBadRequest, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Body VerifyReceiptRequest `json:"body"`
	}) (*struct {
		Body VerifyReceiptResponse `json:"body"`
	}, error) {
		if !svc.receipts.Enabled() {
			return nil, handleError(errReceiptsDisabled)
		}
		if input.Body.Token == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "token required", nil)
		}
		res := VerifyReceiptResponse{}
		claims, err := svc.receipts.Verify(input.Body.Token)
		if err != nil {
			res.Error = err.Error()
		} else {
			res.Valid = true
			res.Claims = &claims
		}
		return &struct {
			Body VerifyReceiptResponse `json:"body"`
		}{Body: res}, nil
	})
}
