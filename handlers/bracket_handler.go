package handlers

import (
	"net/http"

	"github.com/matchforge/tournament-engine/services"
)

type BracketHandler struct {
	brackets *services.BracketService
}

func NewBracketHandler(brackets *services.BracketService) *BracketHandler {
	return &BracketHandler{brackets: brackets}
}

// GenerateHandler обрабатывает POST /tournaments/{tournamentID}/brackets
func (h *BracketHandler) GenerateHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	created, err := h.brackets.Generate(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"brackets": created}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListHandler обрабатывает GET /tournaments/{tournamentID}/brackets
func (h *BracketHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	bracketList, err := h.brackets.ListByTournament(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"brackets": bracketList}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetHandler обрабатывает GET /brackets/{bracketID}
func (h *BracketHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	bracketID, err := getIDFromURL(r, "bracketID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	bracket, err := h.brackets.Get(r.Context(), bracketID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"bracket": bracket}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// VisualizeHandler обрабатывает GET /brackets/{bracketID}/visualization
func (h *BracketHandler) VisualizeHandler(w http.ResponseWriter, r *http.Request) {
	bracketID, err := getIDFromURL(r, "bracketID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	view, err := h.brackets.Visualize(r.Context(), bracketID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"visualization": view}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ReseedHandler обрабатывает POST /tournaments/{tournamentID}/brackets/reseed
func (h *BracketHandler) ReseedHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	// Тело опционально: без него пересев идёт по текущей таблице.
	var input struct {
		Source string `json:"source"`
		Seeds  []int  `json:"seeds"`
	}
	if r.ContentLength != 0 {
		if err := readJSON(w, r, &input); err != nil {
			badRequestResponse(w, r, err)
			return
		}
	}

	regenerated, err := h.brackets.Reseed(r.Context(), tournamentID, services.ReseedRequest{
		Source: services.ReseedSource(input.Source),
		Seeds:  input.Seeds,
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"brackets": regenerated}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// HandleByesHandler обрабатывает POST /tournaments/{tournamentID}/brackets/byes
func (h *BracketHandler) HandleByesHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	forwarded, err := h.brackets.HandleByes(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"forwarded": forwarded}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// DisqualifyHandler обрабатывает POST /tournaments/{tournamentID}/disqualifications
func (h *BracketHandler) DisqualifyHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		ParticipantID int `json:"participant_id"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.brackets.Disqualify(r.Context(), tournamentID, input.ParticipantID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"message": "participant disqualified"}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ResetGrandFinalsHandler обрабатывает POST /tournaments/{tournamentID}/brackets/grand-finals-reset
func (h *BracketHandler) ResetGrandFinalsHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, created, err := h.brackets.ResetGrandFinals(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	if err := writeJSON(w, status, jsonResponse{"match": match, "created": created}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ExportHandler обрабатывает POST /brackets/{bracketID}/export
func (h *BracketHandler) ExportHandler(w http.ResponseWriter, r *http.Request) {
	bracketID, err := getIDFromURL(r, "bracketID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	url, err := h.brackets.Export(r.Context(), bracketID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"export_url": url}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// PairSwissRoundHandler обрабатывает POST /tournaments/{tournamentID}/swiss/rounds
func (h *BracketHandler) PairSwissRoundHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	matches, err := h.brackets.PairSwissRound(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"matches": matches}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
