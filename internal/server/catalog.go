package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"capline/internal/rules"
)

func registerCatalog(api huma.API, svc *service) {
	huma.Register(api, huma.Operation{
		OperationID: "list-teams",
		Method:      http.MethodGet,
		Path:        "/teams",
		Summary:     "List team snapshots with their citations",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []TeamResponse `json:"body"`
	}, error) {
		teams := svc.catalog.Teams()
		out := make([]TeamResponse, 0, len(teams))
		for _, t := range teams {
			out = append(out, TeamResponse{TeamSnapshot: t, Citations: svc.catalog.TeamCitations(t.ID)})
		}
		return &struct {
			Body []TeamResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-missions",
		Method:      http.MethodGet,
		Path:        "/missions",
		Summary:     "List missions, or the mission plan of a difficulty",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Difficulty string `query:"difficulty"`
		Backlog    bool   `query:"backlog"`
	}) (*struct {
		Body MissionsResponse `json:"body"`
	}, error) {
		missions := svc.catalog.Missions()
		if input.Difficulty != "" {
			d, err := rules.ParseDifficulty(input.Difficulty)
			if err != nil {
				return nil, handleError(err)
			}
			if missions, err = svc.catalog.BuildMissionPlan(d); err != nil {
				return nil, handleError(err)
			}
		}
		res := MissionsResponse{Difficulty: input.Difficulty, Missions: make([]MissionResponse, 0, len(missions))}
		for _, m := range missions {
			res.Missions = append(res.Missions, missionResponse(m))
		}
		if input.Backlog {
			res.Backlog = svc.catalog.Backlog()
		}
		return &struct {
			Body MissionsResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-citations",
		Method:      http.MethodGet,
		Path:        "/citations",
		Summary:     "List source citations",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body CitationsResponse `json:"body"`
	}, error) {
		return &struct {
			Body CitationsResponse `json:"body"`
		}{Body: CitationsResponse{DataLockDate: svc.catalog.LockDate, Citations: svc.catalog.Citations()}}, nil
	})
}
