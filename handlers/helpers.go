package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/matchforge/tournament-engine/services"
)

type jsonResponse map[string]interface{}

func readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	maxBytes := 1_048_576 // 1MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var invalidUnmarshalError *json.InvalidUnmarshalError

		switch {
		case errors.As(err, &syntaxError):
			return fmt.Errorf("body contains badly-formed JSON (at character %d)", syntaxError.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return errors.New("body contains badly-formed JSON")
		case errors.As(err, &unmarshalTypeError):
			if unmarshalTypeError.Field != "" {
				return fmt.Errorf("body contains incorrect JSON type for field %q", unmarshalTypeError.Field)
			}
			return fmt.Errorf("body contains incorrect JSON type (at character %d)", unmarshalTypeError.Offset)
		case errors.Is(err, io.EOF):
			return errors.New("body must not be empty")
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
			return fmt.Errorf("body contains unknown key %s", fieldName)
		case err.Error() == "http: request body too large":
			return fmt.Errorf("body must not be larger than %d bytes", maxBytes)
		case errors.As(err, &invalidUnmarshalError):
			panic(err) // ошибка программиста: передан не указатель
		default:
			return err
		}
	}

	err = dec.Decode(&struct{}{})
	if !errors.Is(err, io.EOF) {
		return errors.New("body must only contain a single JSON value")
	}

	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}, headers http.Header) error {
	js, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		return err
	}
	js = append(js, '\n')

	for key, value := range headers {
		w.Header()[key] = value
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(js)
	if err != nil {
		return err
	}

	return nil
}

func getIDFromURL(r *http.Request, param string) (int, error) {
	raw := chi.URLParam(r, param)
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s URL parameter", param)
	}
	return id, nil
}

func queryInt(r *http.Request, key string, defaultValue int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s query parameter", key)
	}
	return value, nil
}

func errorResponse(w http.ResponseWriter, r *http.Request, status int, message interface{}) {
	env := jsonResponse{"error": message}
	if err := writeJSON(w, status, env, nil); err != nil {
		slog.Error("failed to write error response", "error", err, "path", r.URL.Path)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("internal server error", "error", err, "method", r.Method, "path", r.URL.Path)
	message := "the server encountered a problem and could not process your request"
	errorResponse(w, r, http.StatusInternalServerError, message)
}

func badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	errorResponse(w, r, http.StatusBadRequest, err.Error())
}

func notFoundResponse(w http.ResponseWriter, r *http.Request) {
	message := "the requested resource could not be found"
	errorResponse(w, r, http.StatusNotFound, message)
}

func conflictResponse(w http.ResponseWriter, r *http.Request, message string) {
	errorResponse(w, r, http.StatusConflict, message)
}

func unauthorizedResponse(w http.ResponseWriter, r *http.Request, message string) {
	errorResponse(w, r, http.StatusUnauthorized, message)
}

func forbiddenResponse(w http.ResponseWriter, r *http.Request, message string) {
	errorResponse(w, r, http.StatusForbidden, message)
}

// mapServiceErrorToHTTP преобразует ошибки сервисного слоя в HTTP-ответы.
func mapServiceErrorToHTTP(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	// Не найдено
	case errors.Is(err, services.ErrTournamentNotFound),
		errors.Is(err, services.ErrRegistrationNotFound),
		errors.Is(err, services.ErrBracketNotFound),
		errors.Is(err, services.ErrMatchNotFound),
		errors.Is(err, services.ErrStandingNotFound),
		errors.Is(err, services.ErrPrizeNotFound),
		errors.Is(err, services.ErrWalletNotFound):
		notFoundResponse(w, r)

	// Конфликты: дубликаты и гонки
	case errors.Is(err, services.ErrTournamentNameConflict),
		errors.Is(err, services.ErrRegistrationConflict),
		errors.Is(err, services.ErrBracketAlreadyExists),
		errors.Is(err, services.ErrPrizePlacementConflict),
		errors.Is(err, services.ErrSubstituteAlreadyEntered),
		errors.Is(err, services.ErrRefundAlreadyIssued),
		errors.Is(err, services.ErrMatchAlreadyCompleted),
		errors.Is(err, services.ErrPrizeAlreadyDistributed),
		errors.Is(err, services.ErrTournamentFull),
		errors.Is(err, services.ErrConcurrentModification):
		conflictResponse(w, r, err.Error())

	// Невалидные данные и запрещённые переходы
	case errors.Is(err, services.ErrValidationFailed),
		errors.Is(err, services.ErrTournamentNameRequired),
		errors.Is(err, services.ErrInvalidFormat),
		errors.Is(err, services.ErrInvalidStatus),
		errors.Is(err, services.ErrInvalidScore),
		errors.Is(err, services.ErrInvalidSeed),
		errors.Is(err, services.ErrInvalidPlacement),
		errors.Is(err, services.ErrWinnerNotInMatch),
		errors.Is(err, services.ErrParticipantNotInMatch),
		errors.Is(err, services.ErrDisputeReasonRequired),
		errors.Is(err, services.ErrOverrideReasonRequired),
		errors.Is(err, services.ErrResolutionIncomplete),
		errors.Is(err, services.ErrInvalidStatusTransition),
		errors.Is(err, services.ErrInvalidMatchTransition),
		errors.Is(err, services.ErrInvalidRegistrationStatus),
		errors.Is(err, services.ErrInvalidPrizeStatusTransition):
		badRequestResponse(w, r, err)

	// Нарушения бизнес-правил: операция невозможна в текущем состоянии
	case errors.Is(err, services.ErrRegistrationNotOpen),
		errors.Is(err, services.ErrRegistrationWindowClosed),
		errors.Is(err, services.ErrCheckInNotOpen),
		errors.Is(err, services.ErrTournamentNotCompleted),
		errors.Is(err, services.ErrTournamentAlreadyStarted),
		errors.Is(err, services.ErrTournamentInProgress),
		errors.Is(err, services.ErrEditLockedByStage),
		errors.Is(err, services.ErrNotEnoughParticipants),
		errors.Is(err, services.ErrEntryRequirementsNotMet),
		errors.Is(err, services.ErrBracketNotEditable),
		errors.Is(err, services.ErrMatchNotAcceptingResults),
		errors.Is(err, services.ErrMatchNotAwaitingConfirm),
		errors.Is(err, services.ErrMatchNotDisputed),
		errors.Is(err, services.ErrMatchMissingParticipants),
		errors.Is(err, services.ErrPrizeNotCalculated),
		errors.Is(err, services.ErrPrizeNotRetryEligible),
		errors.Is(err, services.ErrPrizePoolLocked),
		errors.Is(err, services.ErrRecipientNotVerified),
		errors.Is(err, services.ErrNoFinalPlacement),
		errors.Is(err, services.ErrGrandFinalsResetDisabled):
		errorResponse(w, r, http.StatusUnprocessableEntity, err.Error())

	// Внешний кошелёк недоступен
	case errors.Is(err, services.ErrWalletUnavailable),
		errors.Is(err, services.ErrWalletTransferFailed),
		errors.Is(err, services.ErrExportUnavailable):
		errorResponse(w, r, http.StatusBadGateway, err.Error())

	default:
		serverErrorResponse(w, r, err)
	}
}
