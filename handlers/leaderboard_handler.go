package handlers

import (
	"errors"
	"net/http"

	"github.com/matchforge/tournament-engine/models"
	"github.com/matchforge/tournament-engine/repositories"
	"github.com/matchforge/tournament-engine/services"
)

type LeaderboardHandler struct {
	standings *services.StandingService
}

func NewLeaderboardHandler(standings *services.StandingService) *LeaderboardHandler {
	return &LeaderboardHandler{standings: standings}
}

// TournamentHandler обрабатывает GET /tournaments/{tournamentID}/leaderboard
func (h *LeaderboardHandler) TournamentHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	opts := repositories.LeaderboardQueryOptions{
		SortBy: r.URL.Query().Get("sort_by"),
		Order:  r.URL.Query().Get("order"),
	}
	if opts.Limit, err = queryInt(r, "limit", 25); err != nil || opts.Limit <= 0 {
		badRequestResponse(w, r, errors.New("invalid limit query parameter"))
		return
	}
	if opts.Offset, err = queryInt(r, "offset", 0); err != nil || opts.Offset < 0 {
		badRequestResponse(w, r, errors.New("invalid offset query parameter"))
		return
	}

	standings, err := h.standings.Leaderboard(r.Context(), tournamentID, opts)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"leaderboard": standings}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GlobalHandler обрабатывает GET /leaderboard
func (h *LeaderboardHandler) GlobalHandler(w http.ResponseWriter, r *http.Request) {
	var filter repositories.GlobalLeaderboardFilter
	query := r.URL.Query()

	if gameID := query.Get("game_id"); gameID != "" {
		filter.GameID = &gameID
	}
	if region := query.Get("region"); region != "" {
		filter.Region = &region
	}
	if timeframe := query.Get("timeframe"); timeframe != "" {
		filter.Timeframe = models.Timeframe(timeframe)
	}

	var err error
	if filter.Limit, err = queryInt(r, "limit", 50); err != nil || filter.Limit <= 0 {
		badRequestResponse(w, r, errors.New("invalid limit query parameter"))
		return
	}
	if filter.Offset, err = queryInt(r, "offset", 0); err != nil || filter.Offset < 0 {
		badRequestResponse(w, r, errors.New("invalid offset query parameter"))
		return
	}

	entries, err := h.standings.GlobalLeaderboard(r.Context(), filter)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"leaderboard": entries}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// PlayerProfileHandler обрабатывает GET /players/{userID}/profile
func (h *LeaderboardHandler) PlayerProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := getIDFromURL(r, "userID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	profile, err := h.standings.PlayerProfile(r.Context(), userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"profile": profile}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// RecalculateHandler обрабатывает POST /tournaments/{tournamentID}/standings/recalculate
func (h *LeaderboardHandler) RecalculateHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.standings.Recalculate(r.Context(), tournamentID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"message": "standings recalculated"}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// UpdateBuchholzHandler обрабатывает POST /tournaments/{tournamentID}/standings/buchholz
func (h *LeaderboardHandler) UpdateBuchholzHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.standings.UpdateBuchholz(r.Context(), tournamentID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"message": "tiebreakers updated"}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
