package brackets

import (
	"context"
	"errors"
	"fmt"

	"github.com/matchforge/tournament-engine/models"
)

var (
	ErrNotEnoughParticipants = errors.New("bracket generation requires at least two participants")
	ErrUnsupportedFormat     = errors.New("unsupported tournament format")
)

// SeedSlot — участник сетки: registration id плюс снапшот имени и сида
// на момент генерации.
type SeedSlot struct {
	ParticipantID int
	DisplayName   string
	Seed          int
}

// BracketMatch — узел будущего матча. UID локален для одной генерации
// ("R1M2", "WR1M2", "LR3M1"); после записи матчей в базу сервис
// превращает WinnerToUID/LoserToUID в next_match_id/loser_next_match_id.
type BracketMatch struct {
	UID         string
	Round       int
	MatchNumber int
	Type        models.MatchType

	Participant1 *SeedSlot
	Participant2 *SeedSlot

	WinnerToUID string
	LoserToUID  string

	IsBye         bool
	ForcedRematch bool
}

// ByeWinner возвращает единственного участника bye-матча.
func (m *BracketMatch) ByeWinner() *SeedSlot {
	if m.Participant1 != nil {
		return m.Participant1
	}
	return m.Participant2
}

// Blueprint описывает одну сетку целиком до записи в базу.
type Blueprint struct {
	Type             models.BracketType
	TotalRounds      int
	ParticipantCount int
	ByeCount         int
	Matches          []*BracketMatch
}

type GenerateParams struct {
	Tournament *models.Tournament
	Slots      []SeedSlot
}

type Generator interface {
	GenerateBrackets(ctx context.Context, params GenerateParams) ([]*Blueprint, error)
	GetName() string
}

// ForFormat подбирает генератор под формат турнира.
func ForFormat(format models.TournamentFormat) (Generator, error) {
	switch format {
	case models.FormatSingleElimination:
		return NewSingleEliminationGenerator(), nil
	case models.FormatDoubleElimination:
		return NewDoubleEliminationGenerator(), nil
	case models.FormatRoundRobin:
		return NewRoundRobinGenerator(), nil
	case models.FormatSwiss:
		return NewSwissGenerator(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func matchUID(prefix string, round, number int) string {
	return fmt.Sprintf("%sR%dM%d", prefix, round, number)
}
