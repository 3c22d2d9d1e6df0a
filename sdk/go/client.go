package routinepetsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal routinepet HTTP API client.
type Client struct {
	BaseURL     string
	ActorID     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults. An empty actorID leaves the
// choice of player to the server.
func New(baseURL, actorID string) *Client {
	return &Client{
		BaseURL: baseURL,
		ActorID: actorID,
		Timeout: 10 * time.Second,
	}
}

// Pet is the pet's progress as shown on the dashboard.
type Pet struct {
	TotalExp        int    `json:"total_exp"`
	StageID         int64  `json:"stage_id"`
	StageName       string `json:"stage_name"`
	CurrentStageMin int    `json:"current_stage_min"`
	NextStageMin    *int   `json:"next_stage_min"`
}

// MissionStatus is a mission available on the dashboard day.
type MissionStatus struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Type           string `json:"type"`
	RewardExp      int    `json:"reward_exp"`
	Period         string `json:"period"`
	CompletedToday bool   `json:"completed_today"`
	CompletedCount int    `json:"completed_count"`
	RemainingCount int    `json:"remaining_count"`
}

// Dashboard is the snapshot returned by the dashboard and reset calls.
type Dashboard struct {
	Date         string          `json:"date"`
	Pet          *Pet            `json:"pet,omitempty"`
	Missions     []MissionStatus `json:"missions"`
	ResetPreview *Pet            `json:"reset_preview,omitempty"`
}

// Completion is the outcome of a successful mission completion.
type Completion struct {
	MissionID          string `json:"mission_id"`
	CompletionRef      string `json:"completion_ref"`
	EarnedExp          int    `json:"earned_exp"`
	TotalExp           int    `json:"total_exp"`
	OldStage           int64  `json:"old_stage"`
	NewStage           int64  `json:"new_stage"`
	StageChanged       bool   `json:"stage_changed"`
	NextStageThreshold *int   `json:"next_stage_threshold"`
	CompletedCount     int    `json:"completed_count"`
	RemainingCount     int    `json:"remaining_count"`
}

// Stage is one rung of the stage catalog.
type Stage struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	MinTotalExp  int    `json:"min_total_exp"`
	AnimationKey string `json:"animation_key,omitempty"`
	ImageURL     string `json:"image_url,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code carries the failure reason, e.g.
// "already_completed".
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

// Dashboard returns the snapshot for date; empty means the server's today.
func (c *Client) Dashboard(ctx context.Context, date string) (Dashboard, error) {
	endpoint := "v0/dashboard"
	if date != "" {
		endpoint += "?date=" + url.QueryEscape(date)
	}
	var resp Dashboard
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CompleteMission completes a mission on date; empty means the server's today.
func (c *Client) CompleteMission(ctx context.Context, missionID, date string) (Completion, error) {
	body := map[string]any{}
	if date != "" {
		body["completion_date"] = date
	}
	var resp Completion
	endpoint := fmt.Sprintf("v0/missions/%s/complete", url.PathEscape(missionID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Reset clears the player's history and returns the fresh dashboard.
func (c *Client) Reset(ctx context.Context) (Dashboard, error) {
	var resp Dashboard
	err := c.do(ctx, http.MethodPost, "v0/missions/reset", nil, &resp)
	return resp, err
}

// Stages returns the stage catalog.
func (c *Client) Stages(ctx context.Context) ([]Stage, error) {
	var resp []Stage
	err := c.do(ctx, http.MethodGet, "v0/stages", nil, &resp)
	return resp, err
}

// Events returns the oldest events up to limit.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "v0/events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
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
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
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
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
