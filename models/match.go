package models

import (
	"time"
)

type MatchStatus string

const (
	MatchStatusPending              MatchStatus = "pending"
	MatchStatusScheduled            MatchStatus = "scheduled"
	MatchStatusCheckIn              MatchStatus = "check_in"
	MatchStatusInProgress           MatchStatus = "in_progress"
	MatchStatusAwaitingConfirmation MatchStatus = "awaiting_confirmation"
	MatchStatusCompleted            MatchStatus = "completed"
	MatchStatusDisputed             MatchStatus = "disputed"
	MatchStatusForfeit              MatchStatus = "forfeit"
	MatchStatusPostponed            MatchStatus = "postponed"
	MatchStatusCanceled             MatchStatus = "canceled"
)

// MatchType различает позиции матча внутри сеток.
type MatchType string

const (
	MatchTypeWinners          MatchType = "winners"
	MatchTypeLosers           MatchType = "losers"
	MatchTypeGrandFinals      MatchType = "grand_finals"
	MatchTypeGrandFinalsReset MatchType = "grand_finals_reset"
	MatchTypeSwiss            MatchType = "swiss"
	MatchTypeRoundRobin       MatchType = "round_robin"
)

var matchStatusTransitions = map[MatchStatus][]MatchStatus{
	MatchStatusPending:              {MatchStatusScheduled, MatchStatusPostponed, MatchStatusCompleted, MatchStatusForfeit, MatchStatusCanceled},
	MatchStatusScheduled:            {MatchStatusCheckIn, MatchStatusInProgress, MatchStatusAwaitingConfirmation, MatchStatusPostponed, MatchStatusForfeit, MatchStatusCanceled},
	MatchStatusCheckIn:              {MatchStatusInProgress, MatchStatusAwaitingConfirmation, MatchStatusPostponed, MatchStatusForfeit, MatchStatusCanceled},
	MatchStatusInProgress:           {MatchStatusAwaitingConfirmation, MatchStatusForfeit, MatchStatusCanceled},
	MatchStatusAwaitingConfirmation: {MatchStatusCompleted, MatchStatusDisputed, MatchStatusForfeit, MatchStatusCanceled},
	MatchStatusDisputed:             {MatchStatusCompleted, MatchStatusInProgress, MatchStatusForfeit, MatchStatusCanceled},
	MatchStatusPostponed:            {MatchStatusScheduled, MatchStatusForfeit, MatchStatusCanceled},
	MatchStatusCompleted:            {},
	MatchStatusForfeit:              {},
	MatchStatusCanceled:             {},
}

func (s MatchStatus) IsValid() bool {
	_, ok := matchStatusTransitions[s]
	return ok
}

func (s MatchStatus) IsTerminal() bool {
	switch s {
	case MatchStatusCompleted, MatchStatusForfeit, MatchStatusCanceled:
		return true
	}
	return false
}

func (s MatchStatus) CanTransitionTo(next MatchStatus) bool {
	for _, allowed := range matchStatusTransitions[s] {
		if next == allowed {
			return true
		}
	}
	return false
}

// AcceptsResult reports whether a result submission is allowed in this status.
func (s MatchStatus) AcceptsResult() bool {
	switch s {
	case MatchStatusScheduled, MatchStatusCheckIn, MatchStatusInProgress:
		return true
	}
	return false
}

// Match — узел сетки. Participant-слоты ссылаются на registration id;
// nil-слот означает "ожидает продвижения" либо bye. Forward-связи
// (next_match_id / loser_next_match_id) образуют DAG без обратных указателей.
type Match struct {
	ID               int             `json:"id" db:"id"`
	TournamentID     int             `json:"tournament_id" db:"tournament_id"`
	BracketID        int             `json:"bracket_id" db:"bracket_id"`
	Round            int             `json:"round" db:"round"`
	MatchNumber      int             `json:"match_number" db:"match_number"`
	Type             MatchType       `json:"type" db:"type"`
	Status           MatchStatus     `json:"status" db:"status"`
	Participant1ID   *int            `json:"participant1_id,omitempty" db:"participant1_id"`
	Participant1Name *string         `json:"participant1_name,omitempty" db:"participant1_name"`
	Participant1Seed *int            `json:"participant1_seed,omitempty" db:"participant1_seed"`
	Participant2ID   *int            `json:"participant2_id,omitempty" db:"participant2_id"`
	Participant2Name *string         `json:"participant2_name,omitempty" db:"participant2_name"`
	Participant2Seed *int            `json:"participant2_seed,omitempty" db:"participant2_seed"`
	ScoreP1          int             `json:"score_p1" db:"score_p1"`
	ScoreP2          int             `json:"score_p2" db:"score_p2"`
	WinnerID         *int            `json:"winner_id,omitempty" db:"winner_id"`
	LoserID          *int            `json:"loser_id,omitempty" db:"loser_id"`
	P1Confirmed      bool            `json:"p1_confirmed" db:"p1_confirmed"`
	P2Confirmed      bool            `json:"p2_confirmed" db:"p2_confirmed"`
	P1CheckedIn      bool            `json:"p1_checked_in" db:"p1_checked_in"`
	P2CheckedIn      bool            `json:"p2_checked_in" db:"p2_checked_in"`
	P1CheckedInAt    *time.Time      `json:"p1_checked_in_at,omitempty" db:"p1_checked_in_at"`
	P2CheckedInAt    *time.Time      `json:"p2_checked_in_at,omitempty" db:"p2_checked_in_at"`
	ScheduledAt      *time.Time      `json:"scheduled_at,omitempty" db:"scheduled_at"`
	StartedAt        *time.Time      `json:"started_at,omitempty" db:"started_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	ServerID         *string         `json:"server_id,omitempty" db:"server_id"`
	LobbyCode        *string         `json:"lobby_code,omitempty" db:"lobby_code"`
	StreamURL        *string         `json:"stream_url,omitempty" db:"stream_url"`
	NextMatchID      *int            `json:"next_match_id,omitempty" db:"next_match_id"`
	LoserNextMatchID *int            `json:"loser_next_match_id,omitempty" db:"loser_next_match_id"`
	DisputeReason    *string         `json:"dispute_reason,omitempty" db:"dispute_reason"`
	DisputedBy       *int            `json:"disputed_by,omitempty" db:"disputed_by"`
	DisputedAt       *time.Time      `json:"disputed_at,omitempty" db:"disputed_at"`
	OverrideReason   *string         `json:"override_reason,omitempty" db:"override_reason"`
	OverriddenBy     *int            `json:"overridden_by,omitempty" db:"overridden_by"`
	OverriddenAt     *time.Time      `json:"overridden_at,omitempty" db:"overridden_at"`
	IsBye            bool            `json:"is_bye" db:"is_bye"`
	BestOf           int             `json:"best_of" db:"best_of"`
	GamesPlayed      int             `json:"games_played" db:"games_played"`
	GameStats        RawJSON         `json:"game_stats,omitempty" db:"game_stats"`
	Version          int             `json:"version" db:"version"`
	Metadata         RawJSON         `json:"metadata,omitempty" db:"metadata"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// HasParticipant reports whether the registration occupies one of the slots.
func (m *Match) HasParticipant(participantID int) bool {
	if m.Participant1ID != nil && *m.Participant1ID == participantID {
		return true
	}
	if m.Participant2ID != nil && *m.Participant2ID == participantID {
		return true
	}
	return false
}

// OpponentOf returns the other slot's registration id, or nil when absent.
func (m *Match) OpponentOf(participantID int) *int {
	if m.Participant1ID != nil && *m.Participant1ID == participantID {
		return m.Participant2ID
	}
	if m.Participant2ID != nil && *m.Participant2ID == participantID {
		return m.Participant1ID
	}
	return nil
}

// BothSlotsFilled reports whether the match is ready to be played.
func (m *Match) BothSlotsFilled() bool {
	return m.Participant1ID != nil && m.Participant2ID != nil
}
