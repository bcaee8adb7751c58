package services

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchforge/tournament-engine/cache"
	"github.com/matchforge/tournament-engine/models"
	"github.com/matchforge/tournament-engine/repositories"
)

type fakeStandingRepo struct {
	byParticipant map[int]*models.Standing
	nextID        int
}

func newFakeStandingRepo() *fakeStandingRepo {
	return &fakeStandingRepo{byParticipant: make(map[int]*models.Standing)}
}

func (f *fakeStandingRepo) Create(ctx context.Context, exec repositories.SQLExecutor, st *models.Standing) error {
	if _, ok := f.byParticipant[st.ParticipantID]; ok {
		return repositories.ErrStandingConflict
	}
	f.nextID++
	st.ID = f.nextID
	f.byParticipant[st.ParticipantID] = st
	return nil
}

func (f *fakeStandingRepo) GetByTournamentAndParticipant(ctx context.Context, exec repositories.SQLExecutor, tournamentID, participantID int) (*models.Standing, error) {
	if st, ok := f.byParticipant[participantID]; ok {
		return st, nil
	}
	return nil, repositories.ErrStandingNotFound
}

func (f *fakeStandingRepo) GetOrCreate(ctx context.Context, exec repositories.SQLExecutor, tournamentID, participantID, seed int, teamID *int) (*models.Standing, error) {
	if st, ok := f.byParticipant[participantID]; ok {
		return st, nil
	}
	f.nextID++
	st := &models.Standing{
		ID:            f.nextID,
		TournamentID:  tournamentID,
		ParticipantID: participantID,
		Seed:          seed,
		TeamID:        teamID,
	}
	f.byParticipant[participantID] = st
	return st, nil
}

func (f *fakeStandingRepo) Update(ctx context.Context, exec repositories.SQLExecutor, st *models.Standing) error {
	f.byParticipant[st.ParticipantID] = st
	return nil
}

func (f *fakeStandingRepo) UpdateRank(ctx context.Context, exec repositories.SQLExecutor, id, rank int) error {
	for _, st := range f.byParticipant {
		if st.ID == id {
			st.Rank = rank
			return nil
		}
	}
	return repositories.ErrStandingNotFound
}

func (f *fakeStandingRepo) UpdateSeed(ctx context.Context, exec repositories.SQLExecutor, tournamentID, participantID, seed int) error {
	st, ok := f.byParticipant[participantID]
	if !ok {
		return repositories.ErrStandingNotFound
	}
	st.Seed = seed
	return nil
}

func (f *fakeStandingRepo) SetFinalPlacement(ctx context.Context, exec repositories.SQLExecutor, id, placement int) error {
	return errors.New("not implemented")
}

func (f *fakeStandingRepo) ListByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, sortByRank bool) ([]*models.Standing, error) {
	out := make([]*models.Standing, 0, len(f.byParticipant))
	for _, st := range f.byParticipant {
		if st.TournamentID == tournamentID {
			out = append(out, st)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if sortByRank && out[i].Rank != out[j].Rank {
			return out[i].Rank < out[j].Rank
		}
		return out[i].ParticipantID < out[j].ParticipantID
	})
	return out, nil
}

func (f *fakeStandingRepo) ListLeaderboard(ctx context.Context, tournamentID int, opts repositories.LeaderboardQueryOptions) ([]*models.Standing, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeStandingRepo) ResetCounters(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) error {
	return errors.New("not implemented")
}

func (f *fakeStandingRepo) DeleteByParticipant(ctx context.Context, exec repositories.SQLExecutor, tournamentID, participantID int) error {
	if _, ok := f.byParticipant[participantID]; !ok {
		return repositories.ErrStandingNotFound
	}
	delete(f.byParticipant, participantID)
	return nil
}

func (f *fakeStandingRepo) DeleteByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) error {
	return errors.New("not implemented")
}

func (f *fakeStandingRepo) GlobalLeaderboard(ctx context.Context, filter repositories.GlobalLeaderboardFilter) ([]*models.GlobalLeaderboardEntry, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeStandingRepo) GetPlayerStats(ctx context.Context, userID int) (*models.PlayerStats, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeStandingRepo) ListHistoricalResults(ctx context.Context, userID int) ([]*models.HistoricalResult, error) {
	return nil, errors.New("not implemented")
}

type fakeBracketRepo struct {
	statuses map[int]models.BracketStatus
	rounds   map[int]int
	finished map[int]int
}

func newFakeBracketRepo() *fakeBracketRepo {
	return &fakeBracketRepo{
		statuses: make(map[int]models.BracketStatus),
		rounds:   make(map[int]int),
		finished: make(map[int]int),
	}
}

func (f *fakeBracketRepo) Create(ctx context.Context, exec repositories.SQLExecutor, b *models.Bracket) error {
	return errors.New("not implemented")
}

func (f *fakeBracketRepo) GetByID(ctx context.Context, id int) (*models.Bracket, error) {
	return nil, repositories.ErrBracketNotFound
}

func (f *fakeBracketRepo) ListByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) ([]*models.Bracket, error) {
	return nil, nil
}

func (f *fakeBracketRepo) UpdateStatus(ctx context.Context, exec repositories.SQLExecutor, id int, status models.BracketStatus) error {
	f.statuses[id] = status
	return nil
}

func (f *fakeBracketRepo) UpdateProgress(ctx context.Context, exec repositories.SQLExecutor, id, currentRound, completedMatches int) error {
	f.rounds[id] = currentRound
	f.finished[id] = completedMatches
	return nil
}

func (f *fakeBracketRepo) SetVisualization(ctx context.Context, exec repositories.SQLExecutor, id int, visualization models.RawJSON) error {
	return nil
}

func (f *fakeBracketRepo) SetExportKey(ctx context.Context, exec repositories.SQLExecutor, id int, exportKey *string) error {
	return nil
}

func (f *fakeBracketRepo) DeleteByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) error {
	return errors.New("not implemented")
}

// completionHarness собирает сервис матчей с in-memory хранилищами для
// проверки фан-аута завершения.
type completionHarness struct {
	svc       *MatchService
	matches   *fakeMatchRepo
	standings *fakeStandingRepo
	brackets  *fakeBracketRepo
}

func newCompletionHarness(tournament *models.Tournament, matches ...*models.Match) *completionHarness {
	matchRepo := &fakeMatchRepo{byID: make(map[int]*models.Match)}
	for _, m := range matches {
		matchRepo.byID[m.ID] = m
		matchRepo.list = append(matchRepo.list, m)
	}
	standingRepo := newFakeStandingRepo()
	bracketRepo := newFakeBracketRepo()
	tournaments := &fakeTournamentRepo{tournament: tournament}
	standingSvc := NewStandingService(nil, standingRepo, matchRepo, tournaments, cache.NewNoop(), nil, time.Minute, time.Hour, testLogger())
	svc := NewMatchService(nil, matchRepo, bracketRepo, tournaments, standingSvc, nil, testLogger())
	return &completionHarness{svc: svc, matches: matchRepo, standings: standingRepo, brackets: bracketRepo}
}

func awaitingMatch(id, round int, matchType models.MatchType, p1, p2, winner int) *models.Match {
	loser := p1
	if winner == p1 {
		loser = p2
	}
	scoreP1, scoreP2 := 3, 1
	if winner == p2 {
		scoreP1, scoreP2 = 1, 3
	}
	return &models.Match{
		ID:             id,
		TournamentID:   1,
		BracketID:      1,
		Round:          round,
		MatchNumber:    1,
		Type:           matchType,
		Status:         models.MatchStatusAwaitingConfirmation,
		Participant1ID: &p1,
		Participant2ID: &p2,
		WinnerID:       &winner,
		LoserID:        &loser,
		ScoreP1:        scoreP1,
		ScoreP2:        scoreP2,
		P1Confirmed:    true,
		P2Confirmed:    true,
	}
}

func TestCompleteRoutesWinnerAndLoserInDoubleElimination(t *testing.T) {
	tournament := &models.Tournament{ID: 1, Status: models.TournamentStatusInProgress}
	next, loserNext := 2, 3
	m := awaitingMatch(1, 1, models.MatchTypeWinners, 10, 20, 10)
	m.NextMatchID = &next
	m.LoserNextMatchID = &loserNext
	winnersFinal := &models.Match{ID: 2, TournamentID: 1, BracketID: 1, Round: 2, MatchNumber: 1, Type: models.MatchTypeWinners, Status: models.MatchStatusPending}
	losersOpener := &models.Match{ID: 3, TournamentID: 1, BracketID: 2, Round: 1, MatchNumber: 1, Type: models.MatchTypeLosers, Status: models.MatchStatusPending}

	h := newCompletionHarness(tournament, m, winnersFinal, losersOpener)
	require.NoError(t, h.svc.complete(context.Background(), nil, m, models.MatchStatusCompleted))

	assert.Equal(t, models.MatchStatusCompleted, m.Status)
	require.NotNil(t, m.CompletedAt)

	require.NotNil(t, winnersFinal.Participant1ID)
	assert.Equal(t, 10, *winnersFinal.Participant1ID, "победитель идёт по next_match_id")
	require.NotNil(t, losersOpener.Participant1ID)
	assert.Equal(t, 20, *losersOpener.Participant1ID, "проигравший идёт в нижнюю сетку")

	winner := h.standings.byParticipant[10]
	require.NotNil(t, winner)
	assert.Equal(t, 1, winner.Wins)
	assert.Equal(t, 3, winner.Points)
	assert.Equal(t, 1, winner.MatchesPlayed)

	loser := h.standings.byParticipant[20]
	require.NotNil(t, loser)
	assert.Equal(t, 1, loser.Losses)
	assert.False(t, loser.IsEliminated, "при живом маршруте в нижнюю сетку выбывания нет")

	assert.Equal(t, 1, h.brackets.finished[1])
	assert.Equal(t, models.BracketStatusInProgress, h.brackets.statuses[1])
}

func TestCompleteEliminatesLoserWithoutRoute(t *testing.T) {
	tournament := &models.Tournament{ID: 1, Status: models.TournamentStatusInProgress}
	m := awaitingMatch(1, 4, models.MatchTypeLosers, 10, 20, 10)

	h := newCompletionHarness(tournament, m)
	require.NoError(t, h.svc.complete(context.Background(), nil, m, models.MatchStatusCompleted))

	loser := h.standings.byParticipant[20]
	require.NotNil(t, loser)
	assert.True(t, loser.IsEliminated)
	require.NotNil(t, loser.EliminatedInRound)
	assert.Equal(t, 4, *loser.EliminatedInRound)
	require.NotNil(t, loser.EliminatedBy)
	assert.Equal(t, 10, *loser.EliminatedBy)
}

func TestGrandFinalsLossByUpperChampionSpawnsReset(t *testing.T) {
	tournament := &models.Tournament{ID: 1, Status: models.TournamentStatusInProgress, GrandFinalsReset: true}
	upper, lower := 10, 20
	now := time.Now()
	winnersFinal := awaitingMatch(1, 2, models.MatchTypeWinners, upper, 30, upper)
	winnersFinal.Status = models.MatchStatusCompleted
	winnersFinal.CompletedAt = &now
	gf := awaitingMatch(2, 3, models.MatchTypeGrandFinals, upper, lower, lower)

	h := newCompletionHarness(tournament, winnersFinal, gf)
	require.NoError(t, h.svc.complete(context.Background(), nil, gf, models.MatchStatusCompleted))

	resetType := models.MatchTypeGrandFinalsReset
	resets, err := h.matches.ListByTournament(context.Background(), nil, 1, repositories.ListMatchesFilter{Type: &resetType})
	require.NoError(t, err)
	require.Len(t, resets, 1)
	reset := resets[0]
	assert.Equal(t, gf.Round+1, reset.Round)
	assert.Equal(t, models.MatchStatusPending, reset.Status)
	require.NotNil(t, reset.Participant1ID)
	require.NotNil(t, reset.Participant2ID)
	assert.ElementsMatch(t, []int{upper, lower}, []int{*reset.Participant1ID, *reset.Participant2ID})

	// Чемпион верхней сетки играет reset — выбывшим он не считается.
	st := h.standings.byParticipant[upper]
	require.NotNil(t, st)
	assert.False(t, st.IsEliminated)
	assert.Nil(t, st.EliminatedInRound)
	assert.Nil(t, st.EliminatedBy)
}

func TestGrandFinalsWinByUpperChampionEndsBracket(t *testing.T) {
	tournament := &models.Tournament{ID: 1, Status: models.TournamentStatusInProgress, GrandFinalsReset: true}
	upper, lower := 10, 20
	now := time.Now()
	winnersFinal := awaitingMatch(1, 2, models.MatchTypeWinners, upper, 30, upper)
	winnersFinal.Status = models.MatchStatusCompleted
	winnersFinal.CompletedAt = &now
	gf := awaitingMatch(2, 3, models.MatchTypeGrandFinals, upper, lower, upper)

	h := newCompletionHarness(tournament, winnersFinal, gf)
	require.NoError(t, h.svc.complete(context.Background(), nil, gf, models.MatchStatusCompleted))

	resetType := models.MatchTypeGrandFinalsReset
	resets, err := h.matches.ListByTournament(context.Background(), nil, 1, repositories.ListMatchesFilter{Type: &resetType})
	require.NoError(t, err)
	assert.Empty(t, resets, "двойное поражение чемпиону нижней сетки reset не даёт")

	st := h.standings.byParticipant[lower]
	require.NotNil(t, st)
	assert.True(t, st.IsEliminated)
}
