package caplinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal capline HTTP API client.
type Client struct {
	BaseURL    string
	BasePath   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// Option is a mission option (partial).
type Option struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Mission is a scripted decision (partial).
type Mission struct {
	ID      string   `json:"id"`
	Role    string   `json:"role"`
	Title   string   `json:"title"`
	Options []Option `json:"options"`
}

// Participant is one side of a run (partial).
type Participant struct {
	TeamID    string         `json:"team_id"`
	Composite int            `json:"composite"`
	Metrics   map[string]int `json:"metrics"`
}

// FinalResult is the outcome of a finished run.
type FinalResult struct {
	RunID            string  `json:"run_id"`
	Difficulty       string  `json:"difficulty"`
	Cleared          bool    `json:"cleared"`
	LegalGate        bool    `json:"legal_gate"`
	DifficultyGate   bool    `json:"difficulty_gate"`
	AIMarginGate     bool    `json:"ai_margin_gate"`
	Margin           int     `json:"margin"`
	MarginRequired   int     `json:"margin_required"`
	LearnerComposite int     `json:"learner_composite"`
	AIComposite      int     `json:"ai_composite"`
	XPAwarded        int     `json:"xp_awarded"`
	ClaimCode        *string `json:"claim_code"`
	ReviewChecksum   string  `json:"review_checksum"`
	MissionCount     int     `json:"mission_count"`
	EventsTriggered  int     `json:"events_triggered"`
}

// Run is a snapshot of a live run (partial).
type Run struct {
	RunID          string       `json:"run_id"`
	Seed           int64        `json:"seed"`
	Difficulty     string       `json:"difficulty"`
	Phase          string       `json:"phase"`
	MissionIndex   int          `json:"mission_index"`
	MissionCount   int          `json:"mission_count"`
	CurrentMission *Mission     `json:"current_mission"`
	LegalPass      bool         `json:"legal_pass"`
	Learner        Participant  `json:"learner"`
	AI             Participant  `json:"ai"`
	Final          *FinalResult `json:"final"`
}

// Hint is coaching text for the next decision.
type Hint struct {
	Trigger     string `json:"trigger"`
	Kid         string `json:"kid"`
	FrontOffice string `json:"front_office"`
}

// RunHandle pairs a server-side handle with the run it refers to.
type RunHandle struct {
	Key  string `json:"key"`
	Run  Run    `json:"run"`
	Hint Hint   `json:"hint"`
}

// Event is a market event applied to the learner.
type Event struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title"`
}

// Finish is the response of FinishRun.
type Finish struct {
	Result  FinalResult `json:"result"`
	Receipt string      `json:"receipt"`
	Run     Run         `json:"run"`
}

// ArchivedRun is a run stored in the archive (partial).
type ArchivedRun struct {
	RunID       string  `json:"run_id"`
	Difficulty  string  `json:"difficulty"`
	LearnerTeam string  `json:"learner_team"`
	Cleared     bool    `json:"cleared"`
	ClaimCode   *string `json:"claim_code"`
	ArchivedAt  string  `json:"archived_at"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsCode reports whether err is an APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// CreateRun starts a run. A nil seed lets the server pick one.
func (c *Client) CreateRun(ctx context.Context, team, difficulty string, seed *int64) (RunHandle, error) {
	body := map[string]any{
		"learner_team_id": team,
		"difficulty":      difficulty,
	}
	if seed != nil {
		body["seed"] = *seed
	}
	var resp RunHandle
	err := c.do(ctx, http.MethodPost, "runs", body, &resp)
	return resp, err
}

// GetRun fetches a live run.
func (c *Client) GetRun(ctx context.Context, key string) (RunHandle, error) {
	var resp RunHandle
	err := c.do(ctx, http.MethodGet, runPath(key, ""), nil, &resp)
	return resp, err
}

// Decide submits the learner's option for the current mission.
func (c *Client) Decide(ctx context.Context, key, missionID, optionID string) (Run, error) {
	var resp struct {
		Run Run `json:"run"`
	}
	body := map[string]any{"mission_id": missionID, "option_id": optionID}
	err := c.do(ctx, http.MethodPost, runPath(key, "decisions"), body, &resp)
	return resp.Run, err
}

// ApplyAI lets the AI answer the pending turn.
func (c *Client) ApplyAI(ctx context.Context, key string) (Run, error) {
	var resp struct {
		Run Run `json:"run"`
	}
	err := c.do(ctx, http.MethodPost, runPath(key, "ai"), nil, &resp)
	return resp.Run, err
}

// MaybeInjectEvent rolls for a market event; the event is nil when none fired.
func (c *Client) MaybeInjectEvent(ctx context.Context, key string) (*Event, error) {
	var resp struct {
		Event *Event `json:"event"`
	}
	err := c.do(ctx, http.MethodPost, runPath(key, "events"), nil, &resp)
	return resp.Event, err
}

// FinishRun finalizes a run.
func (c *Client) FinishRun(ctx context.Context, key string) (Finish, error) {
	var resp Finish
	err := c.do(ctx, http.MethodPost, runPath(key, "finish"), nil, &resp)
	return resp, err
}

// LedgerCSV downloads the run ledger as CSV.
func (c *Client) LedgerCSV(ctx context.Context, key string) ([]byte, error) {
	var buf bytes.Buffer
	err := c.do(ctx, http.MethodGet, runPath(key, "ledger.csv"), nil, &buf)
	return buf.Bytes(), err
}

// Archive exports a finished run.
func (c *Client) Archive(ctx context.Context, key string) (ArchivedRun, error) {
	var resp ArchivedRun
	err := c.do(ctx, http.MethodPost, runPath(key, "archive"), nil, &resp)
	return resp, err
}

// ArchivedRuns lists archived runs, newest first.
func (c *Client) ArchivedRuns(ctx context.Context, difficulty string, limit int) ([]ArchivedRun, error) {
	q := url.Values{}
	if difficulty != "" {
		q.Set("difficulty", difficulty)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	endpoint := "archive/runs"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Items []ArchivedRun `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// VerifyReceipt asks the server to check a completion receipt.
func (c *Client) VerifyReceipt(ctx context.Context, token string) (bool, error) {
	var resp struct {
		Valid bool `json:"valid"`
	}
	err := c.do(ctx, http.MethodPost, "receipts/verify", map[string]string{"token": token}, &resp)
	return resp.Valid, err
}

// PlayFirstOptions drives a run to the end with the first option of every
// mission and finalizes it.
func (c *Client) PlayFirstOptions(ctx context.Context, key string) (Finish, error) {
	h, err := c.GetRun(ctx, key)
	if err != nil {
		return Finish{}, err
	}
	run := h.Run
	for run.CurrentMission != nil {
		m := run.CurrentMission
		if _, err := c.Decide(ctx, key, m.ID, m.Options[0].ID); err != nil {
			return Finish{}, err
		}
		if _, err := c.ApplyAI(ctx, key); err != nil {
			return Finish{}, err
		}
		if _, err := c.MaybeInjectEvent(ctx, key); err != nil {
			return Finish{}, err
		}
		if h, err = c.GetRun(ctx, key); err != nil {
			return Finish{}, err
		}
		run = h.Run
	}
	return c.FinishRun(ctx, key)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if w, ok := out.(io.Writer); ok {
		_, err := io.Copy(w, resp.Body)
		return err
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func runPath(key, sub string) string {
	p := "runs/" + url.PathEscape(key)
	if sub != "" {
		p += "/" + sub
	}
	return p
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(c.BasePath, "/")
}
