package server

import (
	"encoding/json"

	"routinepet/internal/domain"
)

// Request payloads

type CompleteMissionRequest struct {
	CompletionDate string `json:"completion_date,omitempty" doc:"Calendar day (YYYY-MM-DD); defaults to today" example:"2024-01-05"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

// Response payloads

type DevLoginResponse struct {
	Token string `json:"token"`
}

type CompletionResponse struct {
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

type PetResponse struct {
	TotalExp        int    `json:"total_exp"`
	StageID         int64  `json:"stage_id"`
	StageName       string `json:"stage_name"`
	CurrentStageMin int    `json:"current_stage_min"`
	NextStageMin    *int   `json:"next_stage_min"`
}

type MissionStatusResponse struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Type           string `json:"type"`
	RewardExp      int    `json:"reward_exp"`
	Period         string `json:"period"`
	CompletedToday bool   `json:"completed_today"`
	CompletedCount int    `json:"completed_count"`
	RemainingCount int    `json:"remaining_count"`
}

type DashboardResponse struct {
	Date         string                  `json:"date"`
	Pet          *PetResponse            `json:"pet,omitempty"`
	Missions     []MissionStatusResponse `json:"missions"`
	ResetPreview *PetResponse            `json:"reset_preview,omitempty"`
}

type MissionResponse struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	Type           string `json:"type"`
	RewardExp      int    `json:"reward_exp"`
	Period         string `json:"period"`
	ActiveFrom     string `json:"active_from"`
	ActiveTo       string `json:"active_to"`
	IsActive       bool   `json:"is_active"`
	MaxCompletions int    `json:"max_completions"`
}

type StageResponse struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	MinTotalExp  int    `json:"min_total_exp"`
	AnimationKey string `json:"animation_key,omitempty"`
	ImageURL     string `json:"image_url,omitempty"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func completionResponse(r domain.CompletionResult) CompletionResponse {
	return CompletionResponse{
		MissionID:          r.MissionID,
		CompletionRef:      r.CompletionRef,
		EarnedExp:          r.EarnedExp,
		TotalExp:           r.TotalExp,
		OldStage:           r.OldStageID,
		NewStage:           r.NewStageID,
		StageChanged:       r.StageChanged,
		NextStageThreshold: r.NextStageThreshold,
		CompletedCount:     r.CompletedCount,
		RemainingCount:     r.RemainingCount,
	}
}

func petResponse(p *domain.PetSnapshot) *PetResponse {
	if p == nil {
		return nil
	}
	return &PetResponse{
		TotalExp:        p.TotalExp,
		StageID:         p.StageID,
		StageName:       p.StageName,
		CurrentStageMin: p.CurrentStageMin,
		NextStageMin:    p.NextStageMin,
	}
}

func dashboardResponse(s domain.RoutineSnapshot) DashboardResponse {
	res := DashboardResponse{
		Date:         s.Date,
		Pet:          petResponse(s.Pet),
		Missions:     make([]MissionStatusResponse, 0, len(s.Missions)),
		ResetPreview: petResponse(s.ResetPreview),
	}
	for _, m := range s.Missions {
		res.Missions = append(res.Missions, MissionStatusResponse{
			ID:             m.ID,
			Title:          m.Title,
			Type:           m.Type,
			RewardExp:      m.RewardExp,
			Period:         string(m.Period),
			CompletedToday: m.CompletedToday,
			CompletedCount: m.CompletedCount,
			RemainingCount: m.RemainingCount,
		})
	}
	return res
}

func missionResponse(m domain.Mission) MissionResponse {
	return MissionResponse{
		ID:             m.ID,
		Title:          m.Title,
		Description:    m.Description,
		Type:           m.Type,
		RewardExp:      m.RewardExp,
		Period:         string(m.Period),
		ActiveFrom:     m.ActiveFrom,
		ActiveTo:       m.ActiveTo,
		IsActive:       m.IsActive,
		MaxCompletions: m.MaxCompletions,
	}
}

func stageResponse(s domain.Stage) StageResponse {
	return StageResponse{
		ID:           s.ID,
		Name:         s.Name,
		MinTotalExp:  s.MinTotalExp,
		AnimationKey: s.AnimationKey,
		ImageURL:     s.ImageURL,
	}
}

func eventResponse(e domain.Event) EventResponse {
	payload := map[string]any{}
	if e.Payload != "" {
		_ = json.Unmarshal([]byte(e.Payload), &payload)
	}
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    payload,
	}
}
