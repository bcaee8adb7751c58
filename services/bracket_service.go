package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/matchforge/tournament-engine/brackets"
	"github.com/matchforge/tournament-engine/metrics"
	"github.com/matchforge/tournament-engine/models"
	"github.com/matchforge/tournament-engine/repositories"
	"github.com/matchforge/tournament-engine/storage"
	"github.com/matchforge/tournament-engine/utils"
)

type BracketService struct {
	db            *sql.DB
	tournaments   repositories.TournamentRepository
	registrations repositories.RegistrationRepository
	bracketRepo   repositories.BracketRepository
	matchRepo     repositories.MatchRepository
	standings     *StandingService
	matchSvc      *MatchService
	uploader      storage.FileUploader
	hub           Broadcaster
	logger        *slog.Logger
}

func NewBracketService(
	db *sql.DB,
	tournaments repositories.TournamentRepository,
	registrations repositories.RegistrationRepository,
	bracketRepo repositories.BracketRepository,
	matchRepo repositories.MatchRepository,
	standings *StandingService,
	matchSvc *MatchService,
	uploader storage.FileUploader,
	hub Broadcaster,
	logger *slog.Logger,
) *BracketService {
	return &BracketService{
		db:            db,
		tournaments:   tournaments,
		registrations: registrations,
		bracketRepo:   bracketRepo,
		matchRepo:     matchRepo,
		standings:     standings,
		matchSvc:      matchSvc,
		uploader:      uploader,
		hub:           hub,
		logger:        logger,
	}
}

// Generate строит сетки турнира из подтверждённого состава. Заготовки
// матчей и forward-связи пишутся двумя проходами в одной транзакции;
// bye-матчи сразу фиксируются как завершённые 1–0.
func (s *BracketService) Generate(ctx context.Context, tournamentID int) ([]*models.Bracket, error) {
	var created []*models.Bracket
	err := repositories.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		t, err := s.tournaments.GetForUpdate(ctx, tx, tournamentID)
		if err != nil {
			return mapTournamentRepoError(err)
		}
		switch t.Status {
		case models.TournamentStatusRegistrationClosed, models.TournamentStatusCheckIn, models.TournamentStatusInProgress:
		default:
			return fmt.Errorf("%w: tournament status %s", ErrInvalidStatus, t.Status)
		}

		existing, err := s.bracketRepo.ListByTournament(ctx, tx, tournamentID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return ErrBracketAlreadyExists
		}

		slots, err := s.buildSeedSlots(ctx, tx, t)
		if err != nil {
			return err
		}
		created, err = s.generateInTx(ctx, tx, t, slots)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.BracketsGenerated.Inc()
	s.standings.Invalidate(ctx, tournamentID)
	if s.hub != nil {
		s.hub.BroadcastToRoom(brackets.TournamentRoom(tournamentID), brackets.EventBracketGenerated, created)
	}
	s.logger.Info("brackets generated", "tournament_id", tournamentID, "brackets", len(created))
	return created, nil
}

// generateInTx — общая часть генерации: проверка состава, выбор генератора
// по формату и запись blueprint-ов. Вызывается и первой генерацией, и
// пересевом внутри их транзакций.
func (s *BracketService) generateInTx(ctx context.Context, tx *sql.Tx, t *models.Tournament, slots []brackets.SeedSlot) ([]*models.Bracket, error) {
	minRequired := t.MinParticipants
	if minRequired < 2 {
		minRequired = 2
	}
	if len(slots) < minRequired {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrNotEnoughParticipants, len(slots), minRequired)
	}

	generator, err := brackets.ForFormat(t.Format)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFormat, err.Error())
	}
	blueprints, err := generator.GenerateBrackets(ctx, brackets.GenerateParams{Tournament: t, Slots: slots})
	if err != nil {
		return nil, fmt.Errorf("bracket generation failed: %w", err)
	}
	return s.persistBlueprints(ctx, tx, t, slots, blueprints)
}

// buildSeedSlots собирает состав сетки: активные заявки в порядке сидов,
// участники без сида получают номера следом за посеянными.
func (s *BracketService) buildSeedSlots(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament) ([]brackets.SeedSlot, error) {
	regs, err := s.registrations.ListByTournament(ctx, exec, t.ID, nil)
	if err != nil {
		return nil, mapRegistrationRepoError(err)
	}

	active := regs[:0]
	for _, r := range regs {
		if r.Status.CountsTowardCapacity() {
			active = append(active, r)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		si, sj := active[i].Seed, active[j].Seed
		switch {
		case si == nil && sj == nil:
			return active[i].CreatedAt.Before(active[j].CreatedAt)
		case si == nil:
			return false
		case sj == nil:
			return true
		default:
			return *si < *sj
		}
	})

	slots := make([]brackets.SeedSlot, len(active))
	for i, r := range active {
		slots[i] = brackets.SeedSlot{
			ParticipantID: r.ID,
			DisplayName:   r.DisplayName,
			Seed:          i + 1,
		}
	}
	return slots, nil
}

// persistBlueprints — два прохода: сперва строки сеток и матчей с картой
// UID -> id, затем forward-связи. UID уникальны в пределах генерации,
// поэтому связи между сетками (double elimination) разрешаются той же картой.
func (s *BracketService) persistBlueprints(ctx context.Context, tx *sql.Tx, t *models.Tournament, slots []brackets.SeedSlot, blueprints []*brackets.Blueprint) ([]*models.Bracket, error) {
	snapshot := make(pq.Int64Array, len(slots))
	for i, slot := range slots {
		snapshot[i] = int64(slot.ParticipantID)
	}

	uidToID := make(map[string]int)
	uidToMatch := make(map[string]*models.Match)
	createdBrackets := make([]*models.Bracket, 0, len(blueprints))

	for _, bp := range blueprints {
		bracket := &models.Bracket{
			TournamentID:     t.ID,
			Type:             bp.Type,
			Format:           t.Format,
			Status:           models.BracketStatusGenerated,
			TotalRounds:      bp.TotalRounds,
			TotalMatches:     len(bp.Matches),
			ParticipantCount: bp.ParticipantCount,
			ByeCount:         bp.ByeCount,
			SeedSnapshot:     snapshot,
		}
		if err := s.bracketRepo.Create(ctx, tx, bracket); err != nil {
			return nil, err
		}

		for _, bm := range bp.Matches {
			m := blueprintMatch(t.ID, bracket.ID, bm)
			if err := s.matchRepo.Create(ctx, tx, m); err != nil {
				return nil, mapMatchRepoError(err)
			}
			uidToID[bm.UID] = m.ID
			uidToMatch[bm.UID] = m
			bracket.Matches = append(bracket.Matches, *m)

			if m.IsBye && m.WinnerID != nil {
				if err := s.standings.ApplyMatchResult(ctx, tx, m); err != nil {
					return nil, err
				}
			}
		}
		createdBrackets = append(createdBrackets, bracket)
	}

	// Второй проход: связи по карте UID.
	for _, bp := range blueprints {
		for _, bm := range bp.Matches {
			var nextID, loserNextID *int
			if bm.WinnerToUID != "" {
				if id, ok := uidToID[bm.WinnerToUID]; ok {
					nextID = &id
				}
			}
			if bm.LoserToUID != "" {
				if id, ok := uidToID[bm.LoserToUID]; ok {
					loserNextID = &id
				}
			}
			if nextID == nil && loserNextID == nil {
				continue
			}
			if err := s.matchRepo.UpdateForwardLinks(ctx, tx, uidToID[bm.UID], nextID, loserNextID); err != nil {
				return nil, mapMatchRepoError(err)
			}
			m := uidToMatch[bm.UID]
			m.NextMatchID = nextID
			m.LoserNextMatchID = loserNextID
		}
	}

	for _, bracket := range createdBrackets {
		view := brackets.BuildBracketView(bracket, bracket.Matches)
		raw, err := json.Marshal(view)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal bracket view: %w", err)
		}
		if err := s.bracketRepo.SetVisualization(ctx, tx, bracket.ID, raw); err != nil {
			return nil, err
		}
		bracket.Visualization = raw
	}
	return createdBrackets, nil
}

// blueprintMatch переводит узел генератора в строку матча. Bye сразу
// завершён 1–0 в пользу единственного участника; его продвижение в
// следующий матч генератор уже учёл в слотах.
func blueprintMatch(tournamentID, bracketID int, bm *brackets.BracketMatch) *models.Match {
	m := &models.Match{
		TournamentID: tournamentID,
		BracketID:    bracketID,
		Round:        bm.Round,
		MatchNumber:  bm.MatchNumber,
		Type:         bm.Type,
		Status:       models.MatchStatusPending,
		IsBye:        bm.IsBye,
		BestOf:       1,
	}
	if bm.Participant1 != nil {
		m.Participant1ID = intPtr(bm.Participant1.ParticipantID)
		m.Participant1Name = strPtr(bm.Participant1.DisplayName)
		m.Participant1Seed = intPtr(bm.Participant1.Seed)
	}
	if bm.Participant2 != nil {
		m.Participant2ID = intPtr(bm.Participant2.ParticipantID)
		m.Participant2Name = strPtr(bm.Participant2.DisplayName)
		m.Participant2Seed = intPtr(bm.Participant2.Seed)
	}
	if bm.ForcedRematch {
		m.Metadata = models.RawJSON(`{"forced_rematch":true}`)
	}

	if bm.IsBye {
		if winner := bm.ByeWinner(); winner != nil {
			now := time.Now()
			m.Status = models.MatchStatusCompleted
			m.WinnerID = intPtr(winner.ParticipantID)
			if bm.Participant1 != nil {
				m.ScoreP1 = 1
			} else {
				m.ScoreP2 = 1
			}
			m.P1Confirmed = true
			m.P2Confirmed = true
			m.CompletedAt = &now
		}
	}
	return m
}

// ListByTournament возвращает сетки с матчами и публичными ссылками
// на экспорт; матчи и сетки грузятся параллельно.
func (s *BracketService) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Bracket, error) {
	if _, err := getTournamentOrFail(ctx, s.tournaments, tournamentID); err != nil {
		return nil, err
	}

	var (
		bracketList []*models.Bracket
		matches     []*models.Match
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		bracketList, err = s.bracketRepo.ListByTournament(gCtx, nil, tournamentID)
		return err
	})
	g.Go(func() error {
		var err error
		matches, err = s.matchRepo.ListByTournament(gCtx, nil, tournamentID, repositories.ListMatchesFilter{})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byBracket := make(map[int][]models.Match)
	for _, m := range matches {
		byBracket[m.BracketID] = append(byBracket[m.BracketID], *m)
	}
	for _, b := range bracketList {
		b.Matches = byBracket[b.ID]
		s.attachExportURL(b)
	}
	return bracketList, nil
}

func (s *BracketService) Get(ctx context.Context, bracketID int) (*models.Bracket, error) {
	b, err := s.bracketRepo.GetByID(ctx, bracketID)
	if err != nil {
		return nil, mapBracketRepoError(err)
	}
	matches, err := s.matchRepo.ListByTournament(ctx, nil, b.TournamentID, repositories.ListMatchesFilter{BracketID: &bracketID})
	if err != nil {
		return nil, err
	}
	for _, m := range matches {
		b.Matches = append(b.Matches, *m)
	}
	s.attachExportURL(b)
	return b, nil
}

// Visualize пересобирает JSON-представление сетки из текущего состояния
// матчей и сохраняет его на строке сетки.
func (s *BracketService) Visualize(ctx context.Context, bracketID int) (*brackets.BracketView, error) {
	b, err := s.Get(ctx, bracketID)
	if err != nil {
		return nil, err
	}
	view := brackets.BuildBracketView(b, b.Matches)
	raw, err := json.Marshal(view)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal bracket view: %w", err)
	}
	if err := s.bracketRepo.SetVisualization(ctx, nil, bracketID, raw); err != nil {
		return nil, err
	}
	return view, nil
}

// HandleByes — идемпотентная страховка: досылает победителей bye-матчей
// в следующие узлы, если слот ещё пуст.
func (s *BracketService) HandleByes(ctx context.Context, tournamentID int) (int, error) {
	forwarded := 0
	err := repositories.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		matches, err := s.matchRepo.ListByTournament(ctx, tx, tournamentID, repositories.ListMatchesFilter{})
		if err != nil {
			return err
		}
		for _, m := range matches {
			if !m.IsBye || m.WinnerID == nil || m.NextMatchID == nil {
				continue
			}
			next, err := s.matchRepo.GetForUpdate(ctx, tx, *m.NextMatchID)
			if err != nil {
				return mapMatchRepoError(err)
			}
			if next.HasParticipant(*m.WinnerID) {
				continue
			}
			name, seed := slotDetails(m, *m.WinnerID)
			if err := s.matchSvc.fillSlot(ctx, tx, next.ID, *m.WinnerID, name, seed); err != nil {
				return err
			}
			forwarded++
		}
		return nil
	})
	return forwarded, err
}

// ReseedSource выбирает, откуда берётся новый порядок сидов.
type ReseedSource string

const (
	ReseedSourceStandings ReseedSource = "standings"
	ReseedSourceManual    ReseedSource = "manual"
)

// ReseedRequest — параметры пересева. Seeds — registration id в порядке
// новых сидов, допустим только вместе с source=manual.
type ReseedRequest struct {
	Source ReseedSource `json:"source,omitempty"`
	Seeds  []int        `json:"seeds,omitempty"`
}

// Reseed перегенерирует сетки до начала игр: допускается, только пока все
// сетки в статусе generated и ни один матч не сыгран. Новый порядок берётся
// либо из явного списка сидов, либо из текущей таблицы. Удаление старых
// сеток и генерация новых происходят в одной транзакции: неудачная
// генерация откатывает и удаление.
func (s *BracketService) Reseed(ctx context.Context, tournamentID int, req ReseedRequest) ([]*models.Bracket, error) {
	source := req.Source
	if source == "" {
		source = ReseedSourceStandings
	}
	switch source {
	case ReseedSourceStandings:
		if len(req.Seeds) > 0 {
			return nil, fmt.Errorf("%w: seed list is accepted only with source=manual", ErrValidationFailed)
		}
	case ReseedSourceManual:
		if len(req.Seeds) == 0 {
			return nil, fmt.Errorf("%w: manual reseed requires a seed list", ErrValidationFailed)
		}
	default:
		return nil, fmt.Errorf("%w: unknown reseed source %q", ErrValidationFailed, source)
	}

	var regenerated []*models.Bracket
	err := repositories.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		t, err := s.tournaments.GetForUpdate(ctx, tx, tournamentID)
		if err != nil {
			return mapTournamentRepoError(err)
		}
		existing, err := s.bracketRepo.ListByTournament(ctx, tx, tournamentID)
		if err != nil {
			return err
		}
		if len(existing) == 0 {
			return ErrBracketNotFound
		}
		for _, b := range existing {
			if b.Status != models.BracketStatusGenerated {
				return fmt.Errorf("%w: bracket %d is %s", ErrBracketNotEditable, b.ID, b.Status)
			}
		}

		slots, err := s.reseedSlots(ctx, tx, t, source, req.Seeds)
		if err != nil {
			return err
		}

		for _, b := range existing {
			if err := s.matchRepo.DeleteByBracket(ctx, tx, b.ID); err != nil {
				return err
			}
		}
		if err := s.bracketRepo.DeleteByTournament(ctx, tx, tournamentID); err != nil {
			return err
		}
		// Счётчики могли накопить bye-победы первой генерации.
		if err := s.standings.standings.ResetCounters(ctx, tx, tournamentID); err != nil {
			return err
		}

		regenerated, err = s.generateInTx(ctx, tx, t, slots)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.BracketsGenerated.Inc()
	s.standings.Invalidate(ctx, tournamentID)
	if s.hub != nil {
		s.hub.BroadcastToRoom(brackets.TournamentRoom(tournamentID), brackets.EventBracketGenerated, regenerated)
	}
	s.logger.Info("brackets reseeded", "tournament_id", tournamentID, "source", string(source), "brackets", len(regenerated))
	return regenerated, nil
}

// reseedSlots строит новый порядок сидов. manual: переданные registration id
// обязаны быть активными участниками турнира, без повторов. standings:
// порядок текущих рангов; участники без строки в таблице идут следом в
// порядке прежних сидов.
func (s *BracketService) reseedSlots(ctx context.Context, tx *sql.Tx, t *models.Tournament, source ReseedSource, seeds []int) ([]brackets.SeedSlot, error) {
	regs, err := s.registrations.ListByTournament(ctx, tx, t.ID, nil)
	if err != nil {
		return nil, mapRegistrationRepoError(err)
	}
	active := make(map[int]*models.Registration, len(regs))
	for _, r := range regs {
		if r.Status.CountsTowardCapacity() {
			active[r.ID] = r
		}
	}

	if source == ReseedSourceManual {
		slots := make([]brackets.SeedSlot, 0, len(seeds))
		seen := make(map[int]bool, len(seeds))
		for i, regID := range seeds {
			reg, ok := active[regID]
			if !ok {
				return nil, fmt.Errorf("%w: registration %d is not an active participant", ErrValidationFailed, regID)
			}
			if seen[regID] {
				return nil, fmt.Errorf("%w: registration %d appears twice in the seed list", ErrValidationFailed, regID)
			}
			seen[regID] = true
			slots = append(slots, brackets.SeedSlot{
				ParticipantID: reg.ID,
				DisplayName:   reg.DisplayName,
				Seed:          i + 1,
			})
		}
		return slots, nil
	}

	standings, err := s.standings.standings.ListByTournament(ctx, tx, t.ID, true)
	if err != nil {
		return nil, err
	}
	slots := make([]brackets.SeedSlot, 0, len(active))
	placed := make(map[int]bool, len(active))
	for _, st := range standings {
		reg, ok := active[st.ParticipantID]
		if !ok || st.IsDisqualified {
			continue
		}
		placed[reg.ID] = true
		slots = append(slots, brackets.SeedSlot{
			ParticipantID: reg.ID,
			DisplayName:   reg.DisplayName,
			Seed:          len(slots) + 1,
		})
	}
	rest, err := s.buildSeedSlots(ctx, tx, t)
	if err != nil {
		return nil, err
	}
	for _, slot := range rest {
		if placed[slot.ParticipantID] {
			continue
		}
		slot.Seed = len(slots) + 1
		slots = append(slots, slot)
	}
	return slots, nil
}

// Disqualify снимает участника: standing помечается, все его активные
// матчи завершаются техническим поражением с обычным продвижением
// оппонентов.
func (s *BracketService) Disqualify(ctx context.Context, tournamentID, participantID int) error {
	var forfeited []*models.Match
	err := repositories.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		reg, err := s.registrations.GetForUpdate(ctx, tx, participantID)
		if err != nil {
			return mapRegistrationRepoError(err)
		}
		if reg.TournamentID != tournamentID {
			return ErrRegistrationNotFound
		}
		if reg.Status.CanTransitionTo(models.RegistrationStatusDisqualified) {
			if err := s.registrations.UpdateStatus(ctx, tx, reg.ID, models.RegistrationStatusDisqualified); err != nil {
				return mapRegistrationRepoError(err)
			}
		}

		st, err := s.standings.standings.GetOrCreate(ctx, tx, tournamentID, participantID, 0, nil)
		if err != nil {
			return err
		}
		st.IsDisqualified = true
		st.IsEliminated = true
		st.EliminatedBy = nil
		if err := s.standings.standings.Update(ctx, tx, st); err != nil {
			return err
		}

		active, err := s.matchRepo.ListActiveByParticipant(ctx, tx, tournamentID, participantID)
		if err != nil {
			return err
		}
		for _, m := range active {
			if err := s.matchSvc.forfeitInTx(ctx, tx, m, participantID); err != nil {
				return err
			}
			forfeited = append(forfeited, m)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, m := range forfeited {
		s.matchSvc.afterCompletion(ctx, m)
	}
	s.standings.Invalidate(ctx, tournamentID)
	s.logger.Info("participant disqualified", "tournament_id", tournamentID, "participant_id", participantID, "forfeited_matches", len(forfeited))
	return nil
}

// ResetGrandFinals вручную создаёт reset-матч после гранд-финала,
// выигранного чемпионом нижней сетки. Обычно это делает завершение
// матча само; ручной вызов — страховка для включённого позже флага.
// Второе значение — создан ли матч этим вызовом: повтор по уже
// существующему reset возвращает его с false.
func (s *BracketService) ResetGrandFinals(ctx context.Context, tournamentID int) (*models.Match, bool, error) {
	var reset *models.Match
	created := false
	err := repositories.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		t, err := s.tournaments.GetForUpdate(ctx, tx, tournamentID)
		if err != nil {
			return mapTournamentRepoError(err)
		}
		if !t.GrandFinalsReset {
			return ErrGrandFinalsResetDisabled
		}

		gfType := models.MatchTypeGrandFinals
		gfMatches, err := s.matchRepo.ListByTournament(ctx, tx, tournamentID, repositories.ListMatchesFilter{Type: &gfType})
		if err != nil {
			return err
		}
		resetType := models.MatchTypeGrandFinalsReset
		existing, err := s.matchRepo.ListByTournament(ctx, tx, tournamentID, repositories.ListMatchesFilter{Type: &resetType})
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			reset = existing[0]
			return nil
		}

		for _, gf := range gfMatches {
			if gf.Status == models.MatchStatusCompleted && gf.WinnerID != nil {
				if err := s.matchSvc.maybeCreateGrandFinalsReset(ctx, tx, gf); err != nil {
					return err
				}
			}
		}

		fresh, err := s.matchRepo.ListByTournament(ctx, tx, tournamentID, repositories.ListMatchesFilter{Type: &resetType})
		if err != nil {
			return err
		}
		if len(fresh) == 0 {
			return fmt.Errorf("%w: reset is due only after the lower bracket champion wins the grand finals", ErrValidationFailed)
		}
		reset = fresh[0]
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return reset, created, nil
}

// Export выгружает JSON-представление сетки в объектное хранилище и
// возвращает публичную ссылку. Ключ уникален на каждую выгрузку.
func (s *BracketService) Export(ctx context.Context, bracketID int) (string, error) {
	if s.uploader == nil {
		return "", ErrExportUnavailable
	}
	view, err := s.Visualize(ctx, bracketID)
	if err != nil {
		return "", err
	}
	b, err := s.bracketRepo.GetByID(ctx, bracketID)
	if err != nil {
		return "", mapBracketRepoError(err)
	}

	raw, err := json.Marshal(view)
	if err != nil {
		return "", fmt.Errorf("failed to marshal bracket export: %w", err)
	}
	key := fmt.Sprintf("brackets/%d/%d-%s.json", b.TournamentID, bracketID, utils.NewExportToken())
	result, err := s.uploader.Upload(ctx, key, "application/json", bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("failed to upload bracket export: %w", err)
	}
	if err := s.bracketRepo.SetExportKey(ctx, nil, bracketID, &result.Key); err != nil {
		return "", err
	}
	url := s.uploader.GetPublicURL(result.Key)
	s.logger.Info("bracket exported", "bracket_id", bracketID, "key", result.Key)
	return url, nil
}

// PairSwissRound паруeт очередной швейцарский круг из текущей таблицы.
// Первый круг создаёт генерация; каждый следующий вызывается после
// завершения всех матчей предыдущего.
func (s *BracketService) PairSwissRound(ctx context.Context, tournamentID int) ([]*models.Match, error) {
	var created []*models.Match
	err := repositories.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		t, err := s.tournaments.GetForUpdate(ctx, tx, tournamentID)
		if err != nil {
			return mapTournamentRepoError(err)
		}
		if t.Format != models.FormatSwiss {
			return fmt.Errorf("%w: swiss pairing requires swiss format, got %s", ErrInvalidFormat, t.Format)
		}
		if t.Status != models.TournamentStatusInProgress {
			return fmt.Errorf("%w: tournament status %s", ErrInvalidStatus, t.Status)
		}

		bracketList, err := s.bracketRepo.ListByTournament(ctx, tx, tournamentID)
		if err != nil {
			return err
		}
		var swiss *models.Bracket
		for _, b := range bracketList {
			if b.Type == models.BracketTypeSwiss {
				swiss = b
				break
			}
		}
		if swiss == nil {
			return ErrBracketNotFound
		}

		matches, err := s.matchRepo.ListByTournament(ctx, tx, tournamentID, repositories.ListMatchesFilter{BracketID: &swiss.ID})
		if err != nil {
			return err
		}
		lastRound := 0
		for _, m := range matches {
			if m.Round > lastRound {
				lastRound = m.Round
			}
			if !m.Status.IsTerminal() {
				return fmt.Errorf("%w: round %d still has open matches", ErrValidationFailed, m.Round)
			}
		}
		nextRound := lastRound + 1
		if nextRound > swiss.TotalRounds {
			return fmt.Errorf("%w: all %d swiss rounds are paired", ErrValidationFailed, swiss.TotalRounds)
		}

		competitors, err := s.buildSwissCompetitors(ctx, tx, tournamentID, matches)
		if err != nil {
			return err
		}
		matchValues := make([]models.Match, len(matches))
		for i, m := range matches {
			matchValues[i] = *m
		}
		pairs, err := brackets.PairSwissRound(nextRound, competitors, brackets.BuildPlayedSet(matchValues))
		if err != nil {
			return fmt.Errorf("swiss pairing failed: %w", err)
		}

		for _, bm := range pairs {
			m := blueprintMatch(tournamentID, swiss.ID, bm)
			if err := s.matchRepo.Create(ctx, tx, m); err != nil {
				return mapMatchRepoError(err)
			}
			if m.IsBye && m.WinnerID != nil {
				if err := s.standings.ApplyMatchResult(ctx, tx, m); err != nil {
					return err
				}
			}
			created = append(created, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.standings.Invalidate(ctx, tournamentID)
	s.logger.Info("swiss round paired", "tournament_id", tournamentID, "matches", len(created))
	return created, nil
}

// buildSwissCompetitors превращает таблицу в входные строки парования.
// Выбывшие и дисквалифицированные в следующий круг не идут.
func (s *BracketService) buildSwissCompetitors(ctx context.Context, tx *sql.Tx, tournamentID int, priorMatches []*models.Match) ([]brackets.SwissCompetitor, error) {
	standings, err := s.standings.standings.ListByTournament(ctx, tx, tournamentID, false)
	if err != nil {
		return nil, err
	}
	regs, err := s.registrations.ListByTournament(ctx, tx, tournamentID, nil)
	if err != nil {
		return nil, mapRegistrationRepoError(err)
	}
	regByID := make(map[int]*models.Registration, len(regs))
	for _, r := range regs {
		regByID[r.ID] = r
	}

	hadBye := make(map[int]bool)
	for _, m := range priorMatches {
		if m.IsBye && m.WinnerID != nil {
			hadBye[*m.WinnerID] = true
		}
	}

	competitors := make([]brackets.SwissCompetitor, 0, len(standings))
	for _, st := range standings {
		if st.IsEliminated || st.IsDisqualified {
			continue
		}
		reg, ok := regByID[st.ParticipantID]
		if !ok || !reg.Status.CountsTowardCapacity() {
			continue
		}
		competitors = append(competitors, brackets.SwissCompetitor{
			Slot: brackets.SeedSlot{
				ParticipantID: st.ParticipantID,
				DisplayName:   reg.DisplayName,
				Seed:          st.Seed,
			},
			Points:   st.Points,
			Buchholz: float64(st.BuchholzScore),
			HadBye:   hadBye[st.ParticipantID],
		})
	}
	return competitors, nil
}

func (s *BracketService) attachExportURL(b *models.Bracket) {
	if b.ExportKey == nil || s.uploader == nil {
		return
	}
	url := s.uploader.GetPublicURL(*b.ExportKey)
	b.ExportURL = &url
}
