package models

import "time"

type StreakType string

const (
	StreakTypeWin  StreakType = "win"
	StreakTypeLoss StreakType = "loss"
	StreakTypeNone StreakType = "none"
)

// Standing — турнирная строка участника. Уникальна по (tournament_id, participant_id);
// создаётся в момент подтверждения регистрации.
type Standing struct {
	ID                int        `json:"id" db:"id"`
	TournamentID      int        `json:"tournament_id" db:"tournament_id"`
	ParticipantID     int        `json:"participant_id" db:"participant_id"`
	TeamID            *int       `json:"team_id,omitempty" db:"team_id"`
	Seed              int        `json:"seed" db:"seed"`
	Rank              int        `json:"rank" db:"rank"`
	Points            int        `json:"points" db:"points"`
	Wins              int        `json:"wins" db:"wins"`
	Losses            int        `json:"losses" db:"losses"`
	Draws             int        `json:"draws" db:"draws"`
	MatchesPlayed     int        `json:"matches_played" db:"matches_played"`
	GamesWon          int        `json:"games_won" db:"games_won"`
	GamesLost         int        `json:"games_lost" db:"games_lost"`
	RoundsWon         int        `json:"rounds_won" db:"rounds_won"`
	RoundsLost        int        `json:"rounds_lost" db:"rounds_lost"`
	WinRate           float64    `json:"win_rate" db:"win_rate"`
	BuchholzScore     int        `json:"buchholz_score" db:"buchholz_score"`
	OpponentWinRate   float64    `json:"opponent_win_rate" db:"opponent_win_rate"`
	HeadToHeadWins    int        `json:"head_to_head_wins" db:"head_to_head_wins"`
	CurrentStreak     int        `json:"current_streak" db:"current_streak"`
	StreakType        StreakType `json:"streak_type" db:"streak_type"`
	LongestWinStreak  int        `json:"longest_win_streak" db:"longest_win_streak"`
	IsEliminated      bool       `json:"is_eliminated" db:"is_eliminated"`
	EliminatedInRound *int       `json:"eliminated_in_round,omitempty" db:"eliminated_in_round"`
	EliminatedBy      *int       `json:"eliminated_by,omitempty" db:"eliminated_by"`
	IsDisqualified    bool       `json:"is_disqualified" db:"is_disqualified"`
	FinalPlacement    *int       `json:"final_placement,omitempty" db:"final_placement"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`

	// Optional linked data, not directly in DB table, populated by service
	Registration *Registration `json:"registration,omitempty" db:"-"`
}

// GameDifference возвращает разницу выигранных и проигранных игр.
func (s *Standing) GameDifference() int {
	return s.GamesWon - s.GamesLost
}

// RecomputeWinRate пересчитывает win_rate после изменения счётчиков.
func (s *Standing) RecomputeWinRate() {
	if s.MatchesPlayed > 0 {
		s.WinRate = float64(s.Wins) / float64(s.MatchesPlayed)
	} else {
		s.WinRate = 0
	}
}
