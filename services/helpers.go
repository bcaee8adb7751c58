// File: tournament-engine/services/helpers.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/matchforge/tournament-engine/models"
	"github.com/matchforge/tournament-engine/repositories"
)

// --- Общие хелперы ---

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}

func intPtr(v int) *int {
	return &v
}

func strPtr(v string) *string {
	return &v
}

// mapTournamentRepoError переводит ошибки репозитория турниров в сервисные.
func mapTournamentRepoError(err error) error {
	switch {
	case errors.Is(err, repositories.ErrTournamentNotFound):
		return ErrTournamentNotFound
	case errors.Is(err, repositories.ErrTournamentNameConflict):
		return ErrTournamentNameConflict
	default:
		return fmt.Errorf("tournament repository: %w", err)
	}
}

func mapMatchRepoError(err error) error {
	switch {
	case errors.Is(err, repositories.ErrMatchNotFound):
		return ErrMatchNotFound
	case errors.Is(err, repositories.ErrMatchVersionConflict):
		return ErrConcurrentModification
	case errors.Is(err, repositories.ErrMatchTournamentInvalid),
		errors.Is(err, repositories.ErrMatchBracketInvalid),
		errors.Is(err, repositories.ErrMatchParticipantInvalid),
		errors.Is(err, repositories.ErrMatchLinkInvalid):
		return fmt.Errorf("%w: %s", ErrIntegrityViolation, err.Error())
	default:
		return fmt.Errorf("match repository: %w", err)
	}
}

func mapBracketRepoError(err error) error {
	switch {
	case errors.Is(err, repositories.ErrBracketNotFound):
		return ErrBracketNotFound
	case errors.Is(err, repositories.ErrBracketTypeConflict):
		return ErrBracketAlreadyExists
	case errors.Is(err, repositories.ErrBracketTournamentInvalid):
		return fmt.Errorf("%w: %s", ErrIntegrityViolation, err.Error())
	default:
		return fmt.Errorf("bracket repository: %w", err)
	}
}

func mapRegistrationRepoError(err error) error {
	switch {
	case errors.Is(err, repositories.ErrRegistrationNotFound):
		return ErrRegistrationNotFound
	case errors.Is(err, repositories.ErrRegistrationConflict):
		return ErrRegistrationConflict
	case errors.Is(err, repositories.ErrRegistrationTournamentInvalid):
		return fmt.Errorf("%w: %s", ErrIntegrityViolation, err.Error())
	default:
		return fmt.Errorf("registration repository: %w", err)
	}
}

func mapPrizeRepoError(err error) error {
	switch {
	case errors.Is(err, repositories.ErrPrizeNotFound):
		return ErrPrizeNotFound
	case errors.Is(err, repositories.ErrPrizePlacementConflict):
		return ErrPrizePlacementConflict
	case errors.Is(err, repositories.ErrPrizeTournamentInvalid),
		errors.Is(err, repositories.ErrPrizeRecipientInvalid):
		return fmt.Errorf("%w: %s", ErrIntegrityViolation, err.Error())
	default:
		return fmt.Errorf("prize repository: %w", err)
	}
}

// getTournamentOrFail загружает турнир и нормализует not-found.
func getTournamentOrFail(ctx context.Context, repo repositories.TournamentRepository, id int) (*models.Tournament, error) {
	t, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapTournamentRepoError(err)
	}
	return t, nil
}

// checkTournamentTransition проверяет переход статуса по таблице модели.
func checkTournamentTransition(current, next models.TournamentStatus) error {
	if !next.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, next)
	}
	if !current.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, current, next)
	}
	return nil
}

// matchKey — упорядоченная по id пара участников, ключ для карт личных
// встреч (a < b, знак значения кодирует направление перевеса).
type matchKey struct {
	a, b int
}
