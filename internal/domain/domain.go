package domain

// DateLayout is the calendar-date format used for reference dates and mission windows.
const DateLayout = "2006-01-02"

type Period string

const (
	PeriodDaily Period = "daily"
	PeriodOnce  Period = "once"
	PeriodEvent Period = "event"
)

// Valid reports whether p is one of the known periods.
func (p Period) Valid() bool {
	switch p {
	case PeriodDaily, PeriodOnce, PeriodEvent:
		return true
	}
	return false
}

// Bounded reports whether completions are limited over the mission lifetime
// rather than per day.
func (p Period) Bounded() bool {
	return p == PeriodOnce || p == PeriodEvent
}

type Mission struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	Type           string `json:"type" enum:"check_in,core,event"`
	RewardExp      int    `json:"reward_exp"`
	Period         Period `json:"period" enum:"daily,once,event"`
	ActiveFrom     string `json:"active_from" format:"date"`
	ActiveTo       string `json:"active_to" format:"date"`
	IsActive       bool   `json:"is_active"`
	MaxCompletions int    `json:"max_completions"`
	CreatedAt      string `json:"created_at,omitempty" format:"date-time"`
	UpdatedAt      string `json:"updated_at,omitempty" format:"date-time"`
}

type Completion struct {
	ID            string `json:"id"`
	ActorID       string `json:"actor_id"`
	MissionID     string `json:"mission_id"`
	CompletionRef string `json:"completion_ref"`
	CompletedOn   string `json:"completed_on" format:"date"`
	CompletedAt   string `json:"completed_at" format:"date-time"`
	RewardExp     int    `json:"reward_exp"`
}

type Pet struct {
	ID             string `json:"id"`
	ActorID        string `json:"actor_id"`
	TotalExp       int    `json:"total_exp"`
	CurrentStageID int64  `json:"current_stage_id"`
	CreatedAt      string `json:"created_at,omitempty" format:"date-time"`
	UpdatedAt      string `json:"updated_at,omitempty" format:"date-time"`
}

type Stage struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	MinTotalExp  int    `json:"min_total_exp"`
	AnimationKey string `json:"animation_key,omitempty"`
	ImageURL     string `json:"image_url,omitempty"`
}

// CompletionResult describes what a successful mission completion changed.
type CompletionResult struct {
	MissionID          string `json:"mission_id"`
	CompletionRef      string `json:"completion_ref"`
	EarnedExp          int    `json:"earned_exp"`
	TotalExp           int    `json:"total_exp"`
	OldStageID         int64  `json:"old_stage"`
	NewStageID         int64  `json:"new_stage"`
	StageChanged       bool   `json:"stage_changed"`
	NextStageThreshold *int   `json:"next_stage_threshold"`
	CompletedCount     int    `json:"completed_count"`
	RemainingCount     int    `json:"remaining_count"`
}

type PetSnapshot struct {
	TotalExp        int    `json:"total_exp"`
	StageID         int64  `json:"stage_id"`
	StageName       string `json:"stage_name"`
	CurrentStageMin int    `json:"current_stage_min"`
	NextStageMin    *int   `json:"next_stage_min"`
}

type MissionWithStatus struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Type           string `json:"type"`
	RewardExp      int    `json:"reward_exp"`
	Period         Period `json:"period"`
	CompletedToday bool   `json:"completed_today"`
	CompletedCount int    `json:"completed_count"`
	RemainingCount int    `json:"remaining_count"`
}

// RoutineSnapshot is the read model behind the dashboard.
type RoutineSnapshot struct {
	Date         string              `json:"date" format:"date"`
	Pet          *PetSnapshot        `json:"pet"`
	Missions     []MissionWithStatus `json:"missions"`
	ResetPreview *PetSnapshot        `json:"reset_preview,omitempty"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
