package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// TournamentStatus представляет статусы турнира, соответствующие ENUM в БД.
type TournamentStatus string

const (
	TournamentStatusDraft              TournamentStatus = "draft"
	TournamentStatusRegistrationOpen   TournamentStatus = "registration_open"
	TournamentStatusRegistrationClosed TournamentStatus = "registration_closed"
	TournamentStatusCheckIn            TournamentStatus = "check_in"
	TournamentStatusInProgress         TournamentStatus = "in_progress"
	TournamentStatusCompleted          TournamentStatus = "completed"
	TournamentStatusCanceled           TournamentStatus = "canceled"
)

// TournamentFormat определяет способ построения сетки.
type TournamentFormat string

const (
	FormatSingleElimination TournamentFormat = "single_elim"
	FormatDoubleElimination TournamentFormat = "double_elim"
	FormatSwiss             TournamentFormat = "swiss"
	FormatRoundRobin        TournamentFormat = "round_robin"
)

type TournamentVisibility string

const (
	VisibilityPublic   TournamentVisibility = "public"
	VisibilityPrivate  TournamentVisibility = "private"
	VisibilityUnlisted TournamentVisibility = "unlisted"
)

type RegistrationType string

const (
	RegistrationOpen       RegistrationType = "open"
	RegistrationInviteOnly RegistrationType = "invite_only"
)

var tournamentStatusTransitions = map[TournamentStatus][]TournamentStatus{
	TournamentStatusDraft:              {TournamentStatusRegistrationOpen, TournamentStatusCanceled},
	TournamentStatusRegistrationOpen:   {TournamentStatusRegistrationClosed, TournamentStatusCanceled},
	TournamentStatusRegistrationClosed: {TournamentStatusCheckIn, TournamentStatusCanceled},
	TournamentStatusCheckIn:            {TournamentStatusInProgress, TournamentStatusCanceled},
	TournamentStatusInProgress:         {TournamentStatusCompleted, TournamentStatusCanceled},
	TournamentStatusCompleted:          {},
	TournamentStatusCanceled:           {},
}

func (s TournamentStatus) IsValid() bool {
	_, ok := tournamentStatusTransitions[s]
	return ok
}

func (s TournamentStatus) IsTerminal() bool {
	return s == TournamentStatusCompleted || s == TournamentStatusCanceled
}

// CanTransitionTo проверяет допустимость перехода по графу статусов.
func (s TournamentStatus) CanTransitionTo(next TournamentStatus) bool {
	for _, allowed := range tournamentStatusTransitions[s] {
		if next == allowed {
			return true
		}
	}
	return false
}

func (f TournamentFormat) IsValid() bool {
	switch f {
	case FormatSingleElimination, FormatDoubleElimination, FormatSwiss, FormatRoundRobin:
		return true
	}
	return false
}

// PrizeDistribution maps final placement to the percentage of the pool it earns.
// Хранится в БД как JSONB.
type PrizeDistribution map[int]float64

func (d PrizeDistribution) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

func (d *PrizeDistribution) Scan(src interface{}) error {
	if src == nil {
		*d = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("prize distribution: unsupported scan type %T", src)
	}
	return json.Unmarshal(b, d)
}

// Tournament представляет турнир.
type Tournament struct {
	ID                int                  `json:"id" db:"id"`
	Name              string               `json:"name" db:"name"`
	Description       *string              `json:"description,omitempty" db:"description"`
	GameID            string               `json:"game_id" db:"game_id"`
	Format            TournamentFormat     `json:"format" db:"format"`
	Status            TournamentStatus     `json:"status" db:"status"`
	Visibility        TournamentVisibility `json:"visibility" db:"visibility"`
	RegistrationType  RegistrationType     `json:"registration_type" db:"registration_type"`
	OrganizerID       int                  `json:"organizer_id" db:"organizer_id"`
	TeamSize          int                  `json:"team_size" db:"team_size"`
	MinParticipants   int                  `json:"min_participants" db:"min_participants"`
	MaxParticipants   int                  `json:"max_participants" db:"max_participants"`
	MinMMR            *int                 `json:"min_mmr,omitempty" db:"min_mmr"`
	MaxMMR            *int                 `json:"max_mmr,omitempty" db:"max_mmr"`
	AllowedRegions    pq.StringArray       `json:"allowed_regions,omitempty" db:"allowed_regions"`
	RequireVerified   bool                 `json:"require_identity_verification" db:"require_identity_verification"`
	PrizePool         decimal.Decimal      `json:"prize_pool" db:"prize_pool"`
	PrizeCurrency     string               `json:"prize_currency" db:"prize_currency"`
	PrizeDistribution PrizeDistribution    `json:"prize_distribution,omitempty" db:"prize_distribution"`
	EntryFee          decimal.Decimal      `json:"entry_fee" db:"entry_fee"`
	RegistrationStart *time.Time           `json:"registration_start,omitempty" db:"registration_start"`
	RegistrationEnd   *time.Time           `json:"registration_end,omitempty" db:"registration_end"`
	CheckInStart      *time.Time           `json:"check_in_start,omitempty" db:"check_in_start"`
	CheckInEnd        *time.Time           `json:"check_in_end,omitempty" db:"check_in_end"`
	StartDate         *time.Time           `json:"start_date,omitempty" db:"start_date"`
	EndDate           *time.Time           `json:"end_date,omitempty" db:"end_date"`
	MatchInterval     int                  `json:"match_interval_minutes" db:"match_interval_minutes"`
	SwissRounds       *int                 `json:"swiss_rounds,omitempty" db:"swiss_rounds"`
	GrandFinalsReset  bool                 `json:"grand_finals_reset" db:"grand_finals_reset"`
	Rules             *string              `json:"rules,omitempty" db:"rules"`
	StreamURL         *string              `json:"stream_url,omitempty" db:"stream_url"`
	TemplateID        *int                 `json:"template_id,omitempty" db:"template_id"`
	Metadata          RawJSON              `json:"metadata,omitempty" db:"metadata"`
	CreatedAt         time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at" db:"updated_at"`

	// Опциональные связанные сущности (не мапятся напрямую)
	Registrations []Registration `json:"registrations,omitempty" db:"-"`
	Brackets      []Bracket      `json:"brackets,omitempty" db:"-"`
}

// IsSolo reports whether the tournament is played 1v1 rather than by teams.
func (t *Tournament) IsSolo() bool {
	return t.TeamSize <= 1
}

// RegistrationWindowOpen reports whether now falls inside the registration window.
func (t *Tournament) RegistrationWindowOpen(now time.Time) bool {
	if t.RegistrationStart != nil && now.Before(*t.RegistrationStart) {
		return false
	}
	if t.RegistrationEnd != nil && now.After(*t.RegistrationEnd) {
		return false
	}
	return true
}

// CheckInWindowOpen reports whether now falls inside the check-in window.
func (t *Tournament) CheckInWindowOpen(now time.Time) bool {
	if t.CheckInStart != nil && now.Before(*t.CheckInStart) {
		return false
	}
	if t.CheckInEnd != nil && now.After(*t.CheckInEnd) {
		return false
	}
	return true
}
