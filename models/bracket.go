package models

import (
	"time"

	"github.com/lib/pq"
)

// BracketType различает сетки внутри одного турнира.
type BracketType string

const (
	BracketTypeWinners     BracketType = "winners"
	BracketTypeLosers      BracketType = "losers"
	BracketTypeGrandFinals BracketType = "grand_finals"
	BracketTypeSwiss       BracketType = "swiss"
	BracketTypeRoundRobin  BracketType = "round_robin"
	BracketTypeGroups      BracketType = "groups"
)

type BracketStatus string

const (
	BracketStatusPending    BracketStatus = "pending"
	BracketStatusGenerated  BracketStatus = "generated"
	BracketStatusInProgress BracketStatus = "in_progress"
	BracketStatusCompleted  BracketStatus = "completed"
)

func (s BracketStatus) IsValid() bool {
	switch s {
	case BracketStatusPending, BracketStatusGenerated, BracketStatusInProgress, BracketStatusCompleted:
		return true
	}
	return false
}

// Bracket представляет одну сетку турнира (winners/losers/swiss/...).
// Matches ссылаются на bracket через bracket_id; forward-связи между матчами
// хранятся на самих матчах.
type Bracket struct {
	ID               int              `json:"id" db:"id"`
	TournamentID     int              `json:"tournament_id" db:"tournament_id"`
	Type             BracketType      `json:"type" db:"type"`
	Format           TournamentFormat `json:"format" db:"format"`
	Status           BracketStatus    `json:"status" db:"status"`
	TotalRounds      int              `json:"total_rounds" db:"total_rounds"`
	CurrentRound     int              `json:"current_round" db:"current_round"`
	TotalMatches     int              `json:"total_matches" db:"total_matches"`
	CompletedMatches int              `json:"completed_matches" db:"completed_matches"`
	ParticipantCount int              `json:"participant_count" db:"participant_count"`
	ByeCount         int              `json:"bye_count" db:"bye_count"`
	SeedSnapshot     pq.Int64Array    `json:"seed_snapshot,omitempty" db:"seed_snapshot"`
	Visualization    RawJSON          `json:"visualization,omitempty" db:"visualization"`
	ExportKey        *string          `json:"-" db:"export_key"`
	ExportURL        *string          `json:"export_url,omitempty" db:"-"`
	Metadata         RawJSON          `json:"metadata,omitempty" db:"metadata"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at" db:"updated_at"`

	Matches []Match `json:"matches,omitempty" db:"-"`
}
