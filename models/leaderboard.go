package models

import "time"

// Timeframe ограничивает глобальный лидерборд по дате завершения турнира.
type Timeframe string

const (
	TimeframeAll     Timeframe = "all"
	TimeframeYearly  Timeframe = "yearly"
	TimeframeMonthly Timeframe = "monthly"
	TimeframeWeekly  Timeframe = "weekly"
)

func (t Timeframe) IsValid() bool {
	switch t {
	case TimeframeAll, TimeframeYearly, TimeframeMonthly, TimeframeWeekly:
		return true
	}
	return false
}

// Since возвращает нижнюю границу окна, nil — без ограничения.
func (t Timeframe) Since(now time.Time) *time.Time {
	var since time.Time
	switch t {
	case TimeframeYearly:
		since = now.AddDate(-1, 0, 0)
	case TimeframeMonthly:
		since = now.AddDate(0, -1, 0)
	case TimeframeWeekly:
		since = now.AddDate(0, 0, -7)
	default:
		return nil
	}
	return &since
}

// GlobalLeaderboardEntry — агрегат по пользователю across tournaments.
type GlobalLeaderboardEntry struct {
	UserID            int     `json:"user_id"`
	DisplayName       string  `json:"display_name"`
	TournamentsPlayed int     `json:"tournaments_played"`
	TotalPoints       int     `json:"total_points"`
	TotalWins         int     `json:"total_wins"`
	TotalLosses       int     `json:"total_losses"`
	WinRate           float64 `json:"win_rate"`
	Titles            int     `json:"titles"`
}

// PlayerStats — сводная статистика пользователя по всем турнирам.
type PlayerStats struct {
	UserID            int     `json:"user_id"`
	TournamentsPlayed int     `json:"tournaments_played"`
	TournamentsWon    int     `json:"tournaments_won"`
	MatchesPlayed     int     `json:"matches_played"`
	Wins              int     `json:"wins"`
	Losses            int     `json:"losses"`
	Draws             int     `json:"draws"`
	WinRate           float64 `json:"win_rate"`
	LongestWinStreak  int     `json:"longest_win_streak"`
	BestPlacement     *int    `json:"best_placement,omitempty"`
}

// HistoricalResult — итог участника в завершённом турнире.
type HistoricalResult struct {
	TournamentID   int              `json:"tournament_id"`
	TournamentName string           `json:"tournament_name"`
	GameID         string           `json:"game_id"`
	Format         TournamentFormat `json:"format"`
	EndDate        *time.Time       `json:"end_date,omitempty"`
	FinalPlacement *int             `json:"final_placement,omitempty"`
	Rank           int              `json:"rank"`
	Points         int              `json:"points"`
	Wins           int              `json:"wins"`
	Losses         int              `json:"losses"`
	Draws          int              `json:"draws"`
}
