package brackets

import (
	"sort"
	"time"

	"github.com/matchforge/tournament-engine/models"
)

// BracketView — сериализуемое представление сетки: матчи по кругам,
// рёбра заданы идентификаторами матчей. Payload пишется в колонку
// visualization и отдаётся как есть любому рендереру.
type BracketView struct {
	BracketID    int                  `json:"bracket_id"`
	TournamentID int                  `json:"tournament_id"`
	Type         models.BracketType   `json:"type"`
	Status       models.BracketStatus `json:"status"`
	TotalRounds  int                  `json:"total_rounds"`
	CurrentRound int                  `json:"current_round"`
	Rounds       []RoundView          `json:"rounds"`
}

type RoundView struct {
	Round   int         `json:"round"`
	Matches []MatchView `json:"matches"`
}

type MatchView struct {
	MatchID          int                `json:"match_id"`
	MatchNumber      int                `json:"match_number"`
	Status           models.MatchStatus `json:"status"`
	Participant1     *SlotView          `json:"participant1,omitempty"`
	Participant2     *SlotView          `json:"participant2,omitempty"`
	WinnerID         *int               `json:"winner_id,omitempty"`
	NextMatchID      *int               `json:"next_match_id,omitempty"`
	LoserNextMatchID *int               `json:"loser_next_match_id,omitempty"`
	ScheduledAt      *time.Time         `json:"scheduled_at,omitempty"`
	IsBye            bool               `json:"is_bye,omitempty"`
}

type SlotView struct {
	ParticipantID int    `json:"participant_id"`
	DisplayName   string `json:"display_name,omitempty"`
	Seed          *int   `json:"seed,omitempty"`
	Score         int    `json:"score"`
}

// BuildBracketView группирует матчи сетки по кругам. Круги без матчей
// (вычищенные bye в нижней сетке) остаются пустыми колонками.
func BuildBracketView(bracket *models.Bracket, matches []models.Match) *BracketView {
	view := &BracketView{
		BracketID:    bracket.ID,
		TournamentID: bracket.TournamentID,
		Type:         bracket.Type,
		Status:       bracket.Status,
		TotalRounds:  bracket.TotalRounds,
		CurrentRound: bracket.CurrentRound,
	}

	byRound := make(map[int][]MatchView)
	maxRound := bracket.TotalRounds
	for i := range matches {
		m := &matches[i]
		mv := MatchView{
			MatchID:          m.ID,
			MatchNumber:      m.MatchNumber,
			Status:           m.Status,
			Participant1:     slotView(m.Participant1ID, m.Participant1Name, m.Participant1Seed, m.ScoreP1),
			Participant2:     slotView(m.Participant2ID, m.Participant2Name, m.Participant2Seed, m.ScoreP2),
			WinnerID:         m.WinnerID,
			NextMatchID:      m.NextMatchID,
			LoserNextMatchID: m.LoserNextMatchID,
			ScheduledAt:      m.ScheduledAt,
			IsBye:            m.IsBye,
		}
		byRound[m.Round] = append(byRound[m.Round], mv)
		if m.Round > maxRound {
			maxRound = m.Round
		}
	}

	view.Rounds = make([]RoundView, 0, maxRound)
	for r := 1; r <= maxRound; r++ {
		nodes := byRound[r]
		sort.Slice(nodes, func(i, j int) bool { return nodes[i].MatchNumber < nodes[j].MatchNumber })
		if nodes == nil {
			nodes = []MatchView{}
		}
		view.Rounds = append(view.Rounds, RoundView{Round: r, Matches: nodes})
	}
	return view
}

func slotView(id *int, name *string, seed *int, score int) *SlotView {
	if id == nil {
		return nil
	}
	sv := &SlotView{ParticipantID: *id, Seed: seed, Score: score}
	if name != nil {
		sv.DisplayName = *name
	}
	return sv
}
