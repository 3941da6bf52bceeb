package server

import (
	"bytes"
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"capline/internal/domain"
	"capline/internal/engine"
	"capline/internal/ledger"
)

type runPath struct {
	Key string `path:"key" doc:"Run handle returned by create-run"`
}

var runErrors = []int{
	http.StatusBadRequest,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusInternalServerError,
}

func registerRuns(api huma.API, svc *service) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-run",
		Method:        http.MethodPost,
		Path:          "/runs",
		Summary:       "Start a run",
		DefaultStatus: http.StatusCreated,
		Errors:        runErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateRunRequest `json:"body"`
	}) (*struct {
		Body RunResponse `json:"body"`
	}, error) {
		run, err := engine.NewRun(engine.Options{
			LearnerTeamID: input.Body.LearnerTeamID,
			Difficulty:    domain.Difficulty(input.Body.Difficulty),
			Seed:          input.Body.Seed,
			Catalog:       svc.catalog,
			Logger:        svc.logger,
		})
		if err != nil {
			return nil, handleError(err)
		}
		key := svc.runs.add(run)
		var res RunResponse
		err = svc.runs.with(key, func(r *engine.Run) error {
			res = RunResponse{Key: key, Run: r.Snapshot(), Hint: r.Hint()}
			return nil
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RunResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-run",
		Method:      http.MethodGet,
		Path:        "/runs/{key}",
		Summary:     "Get a live run",
		Errors:      runErrors,
	}, func(ctx context.Context, input *runPath) (*struct {
		Body RunResponse `json:"body"`
	}, error) {
		var res RunResponse
		err := svc.runs.with(input.Key, func(r *engine.Run) error {
			res = RunResponse{Key: input.Key, Run: r.Snapshot(), Hint: r.Hint()}
			return nil
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RunResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-run",
		Method:        http.MethodDelete,
		Path:          "/runs/{key}",
		Summary:       "Drop a live run",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *runPath) (*struct{}, error) {
		if !svc.runs.remove(input.Key) {
			return nil, handleError(errRunNotFound)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-decision",
		Method:      http.MethodPost,
		Path:        "/runs/{key}/decisions",
		Summary:     "Submit the learner's option for the current mission",
		Errors:      runErrors,
	}, func(ctx context.Context, input *struct {
		Key  string          `path:"key"`
		Body DecisionRequest `json:"body"`
	}) (*struct {
		Body DecisionResponse `json:"body"`
	}, error) {
		var res DecisionResponse
		err := svc.runs.with(input.Key, func(r *engine.Run) error {
			sub, err := r.SubmitLearnerOption(input.Body.MissionID, input.Body.OptionID)
			if err != nil {
				return err
			}
			res = DecisionResponse{Submission: sub, Run: r.Snapshot()}
			return nil
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DecisionResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "apply-ai",
		Method:      http.MethodPost,
		Path:        "/runs/{key}/ai",
		Summary:     "Let the AI answer the pending turn",
		Errors:      runErrors,
	}, func(ctx context.Context, input *runPath) (*struct {
		Body AIResponse `json:"body"`
	}, error) {
		var res AIResponse
		err := svc.runs.with(input.Key, func(r *engine.Run) error {
			choice, err := r.ApplyAIChoice()
			if err != nil {
				return err
			}
			res = AIResponse{Choice: choice, Run: r.Snapshot()}
			return nil
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AIResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "inject-event",
		Method:      http.MethodPost,
		Path:        "/runs/{key}/events",
		Summary:     "Roll for a market event at the current checkpoint",
		Errors:      runErrors,
	}, func(ctx context.Context, input *runPath) (*struct {
		Body EventResponse `json:"body"`
	}, error) {
		var res EventResponse
		err := svc.runs.with(input.Key, func(r *engine.Run) error {
			ev, err := r.MaybeInjectEvent()
			if err != nil {
				return err
			}
			res = EventResponse{Event: ev, Run: r.Snapshot()}
			return nil
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EventResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "finish-run",
		Method:      http.MethodPost,
		Path:        "/runs/{key}/finish",
		Summary:     "Finalize a run and evaluate its gates",
		Errors:      runErrors,
	}, func(ctx context.Context, input *runPath) (*struct {
		Body FinishResponse `json:"body"`
	}, error) {
		var res FinishResponse
		err := svc.runs.with(input.Key, func(r *engine.Run) error {
			final, err := r.FinishRun()
			if err != nil {
				return err
			}
			res = FinishResponse{Result: final, Run: r.Snapshot()}
			if svc.receipts.Enabled() {
				token, err := svc.receipts.Issue(res.Run.Learner.TeamID, final)
				if err != nil {
					return err
				}
				res.Receipt = token
			}
			return nil
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body FinishResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-ledger",
		Method:      http.MethodGet,
		Path:        "/runs/{key}/ledger",
		Summary:     "Get the run ledger and event log",
		Errors:      runErrors,
	}, func(ctx context.Context, input *runPath) (*struct {
		Body LedgerResponse `json:"body"`
	}, error) {
		var res LedgerResponse
		err := svc.runs.with(input.Key, func(r *engine.Run) error {
			res = LedgerResponse{RunID: r.ID(), Rows: r.Ledger(), EventLog: r.EventLog()}
			return nil
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LedgerResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-ledger-csv",
		Method:      http.MethodGet,
		Path:        "/runs/{key}/ledger.csv",
		Summary:     "Download the run ledger as CSV",
		Errors:      runErrors,
	}, func(ctx context.Context, input *runPath) (*struct {
		ContentType        string `header:"Content-Type"`
		ContentDisposition string `header:"Content-Disposition"`
		Body               []byte
	}, error) {
		var (
			buf   bytes.Buffer
			runID string
		)
		err := svc.runs.with(input.Key, func(r *engine.Run) error {
			runID = r.ID()
			return ledger.WriteCSV(&buf, r.Ledger())
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			ContentType        string `header:"Content-Type"`
			ContentDisposition string `header:"Content-Disposition"`
			Body               []byte
		}{
			ContentType:        "text/csv",
			ContentDisposition: `attachment; filename="` + runID + `.csv"`,
			Body:               buf.Bytes(),
		}, nil
	})
}
