package server

import (
	"capline/internal/catalog"
	"capline/internal/domain"
	"capline/internal/engine"
	"capline/internal/receipt"
	"capline/internal/repo"
)

// Request payloads

type CreateRunRequest struct {
	LearnerTeamID string `json:"learner_team_id" example:"KC"`
	Difficulty    string `json:"difficulty" enum:"ROOKIE,PRO,LEGEND"`
	Seed          *int64 `json:"seed,omitempty"`
}

type DecisionRequest struct {
	MissionID string `json:"mission_id" example:"AGENT-001"`
	OptionID  string `json:"option_id" example:"A"`
}

type VerifyReceiptRequest struct {
	Token string `json:"token"`
}

// Response payloads

type TeamResponse struct {
	domain.TeamSnapshot
	Citations []domain.Citation `json:"citations"`
}

type MissionResponse struct {
	domain.Mission
	TuningTags map[string][]string `json:"tuning_tags"`
}

type MissionsResponse struct {
	Difficulty string                  `json:"difficulty,omitempty"`
	Missions   []MissionResponse       `json:"missions"`
	Backlog    []domain.BacklogMission `json:"backlog,omitempty"`
}

type CitationsResponse struct {
	DataLockDate string            `json:"data_lock_date"`
	Citations    []domain.Citation `json:"citations"`
}

type RunResponse struct {
	Key  string          `json:"key"`
	Run  engine.Snapshot `json:"run"`
	Hint domain.Hint     `json:"hint"`
}

type DecisionResponse struct {
	Submission engine.Submission `json:"submission"`
	Run        engine.Snapshot   `json:"run"`
}

type AIResponse struct {
	Choice domain.Choice   `json:"choice"`
	Run    engine.Snapshot `json:"run"`
}

type EventResponse struct {
	Event *domain.Event   `json:"event"`
	Run   engine.Snapshot `json:"run"`
}

type FinishResponse struct {
	Result  domain.FinalResult `json:"result"`
	Receipt string             `json:"receipt,omitempty"`
	Run     engine.Snapshot    `json:"run"`
}

type LedgerResponse struct {
	RunID    string                 `json:"run_id"`
	Rows     []domain.LedgerRow     `json:"rows"`
	EventLog []domain.EventLogEntry `json:"event_log"`
}

type ArchivedRunResponse struct {
	Run    repo.RunRecord      `json:"run"`
	Rows   []domain.LedgerRow  `json:"rows"`
	Events []repo.ArchiveEvent `json:"events"`
}

type ArchivedRunsResponse struct {
	Items []repo.RunRecord `json:"items"`
}

type VerifyReceiptResponse struct {
	Valid  bool            `json:"valid"`
	Claims *receipt.Claims `json:"claims,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func missionResponse(m domain.Mission) MissionResponse {
	tags := make(map[string][]string, len(m.Options))
	for _, o := range m.Options {
		tags[o.ID] = catalog.TuningTags(o)
	}
	return MissionResponse{Mission: m, TuningTags: tags}
}
