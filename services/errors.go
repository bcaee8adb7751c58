package services

import "errors"

// Ошибки сервисного слоя. HTTP-слой маппит их в статусы через errors.Is,
// поэтому каждая ветка бизнес-логики возвращает именно эти значения
// (при необходимости обёрнутые fmt.Errorf("%w: ...")).
var (
	// Ресурс не найден
	ErrTournamentNotFound   = errors.New("tournament not found")
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrBracketNotFound      = errors.New("bracket not found")
	ErrMatchNotFound        = errors.New("match not found")
	ErrStandingNotFound     = errors.New("standing not found")
	ErrPrizeNotFound        = errors.New("prize not found")

	// Ошибки валидации входных данных
	ErrValidationFailed       = errors.New("validation failed") // Общая ошибка валидации
	ErrTournamentNameRequired = errors.New("tournament name is required")
	ErrInvalidFormat          = errors.New("invalid tournament format")
	ErrInvalidStatus          = errors.New("invalid status value")
	ErrInvalidScore           = errors.New("scores must be non-negative integers")
	ErrInvalidSeed            = errors.New("seed must be a positive integer")
	ErrInvalidPlacement       = errors.New("prize placement must be a positive integer")
	ErrWinnerNotInMatch       = errors.New("winner must be one of the match participants")
	ErrParticipantNotInMatch  = errors.New("participant is not part of this match")
	ErrDisputeReasonRequired  = errors.New("dispute reason is required")
	ErrOverrideReasonRequired = errors.New("override reason is required")
	ErrResolutionIncomplete   = errors.New("dispute resolution requires a winner and both scores")

	// Ошибки конфликтов
	ErrRegistrationConflict   = errors.New("user or team is already registered for this tournament")
	ErrTournamentNameConflict = errors.New("tournament name already exists")
	ErrBracketAlreadyExists   = errors.New("bracket has already been generated for this tournament")
	ErrPrizePlacementConflict = errors.New("prize for this placement already exists")

	// Недопустимые переходы статусов
	ErrInvalidStatusTransition      = errors.New("invalid tournament status transition")
	ErrInvalidMatchTransition       = errors.New("invalid match status transition")
	ErrInvalidRegistrationStatus    = errors.New("invalid registration status transition")
	ErrInvalidPrizeStatusTransition = errors.New("invalid prize status transition")

	// Precondition failed: операция легальна, но текущее состояние её не допускает
	ErrRegistrationNotOpen      = errors.New("tournament registration is not open")
	ErrRegistrationWindowClosed = errors.New("registration window is closed")
	ErrCheckInNotOpen           = errors.New("tournament check-in is not open")
	ErrTournamentFull           = errors.New("tournament registration is full")
	ErrTournamentNotCompleted   = errors.New("tournament is not completed")
	ErrTournamentAlreadyStarted = errors.New("tournament has already started")
	ErrTournamentInProgress     = errors.New("operation is not allowed while the tournament is in progress")
	ErrEditLockedByStage        = errors.New("field cannot be edited at the current tournament stage")
	ErrNotEnoughParticipants    = errors.New("not enough confirmed participants")
	ErrEntryRequirementsNotMet  = errors.New("entry requirements not met")
	ErrRefundAlreadyIssued      = errors.New("refund has already been issued")
	ErrSubstituteAlreadyEntered = errors.New("substitute is already registered in this tournament")
	ErrBracketNotEditable       = errors.New("bracket can only be reseeded before any match has been played")
	ErrMatchNotAcceptingResults = errors.New("match is not accepting result submissions")
	ErrMatchNotAwaitingConfirm  = errors.New("match is not awaiting confirmation")
	ErrMatchNotDisputed         = errors.New("match is not disputed")
	ErrMatchAlreadyCompleted    = errors.New("match is already completed")
	ErrMatchMissingParticipants = errors.New("match does not have both participants yet")
	ErrPrizeNotCalculated       = errors.New("prize must be calculated before distribution")
	ErrPrizeNotRetryEligible    = errors.New("prize is not eligible for retry")
	ErrPrizePoolLocked          = errors.New("prize pool cannot be modified after tournament completion")
	ErrPrizeAlreadyDistributed  = errors.New("prize has already been distributed")
	ErrRecipientNotVerified     = errors.New("prize recipient has not passed identity verification")
	ErrNoFinalPlacement         = errors.New("no standing matches the prize placement")
	ErrGrandFinalsResetDisabled = errors.New("grand finals reset is disabled for this tournament")

	// Сбои внешних систем
	ErrWalletUnavailable    = errors.New("wallet service unavailable")
	ErrWalletTransferFailed = errors.New("wallet transfer failed")
	ErrWalletNotFound       = errors.New("recipient wallet not found")
	ErrExportUnavailable    = errors.New("bracket export storage is not configured")

	// Нарушение инварианта при записи, транзакция откатывается
	ErrIntegrityViolation = errors.New("integrity violation")

	// Исчерпаны повторы optimistic lock
	ErrConcurrentModification = errors.New("match was modified concurrently, please retry")
)
