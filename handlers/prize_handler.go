package handlers

import (
	"errors"
	"net/http"

	"github.com/matchforge/tournament-engine/middleware"
	"github.com/matchforge/tournament-engine/models"
	"github.com/matchforge/tournament-engine/services"
)

type PrizeHandler struct {
	prizes *services.PrizeService
}

func NewPrizeHandler(prizes *services.PrizeService) *PrizeHandler {
	return &PrizeHandler{prizes: prizes}
}

// SetupPoolHandler обрабатывает POST /tournaments/{tournamentID}/prizes
func (h *PrizeHandler) SetupPoolHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input services.SetupPoolRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	prizes, err := h.prizes.SetupPool(r.Context(), tournamentID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"prizes": prizes}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// CalculateHandler обрабатывает POST /tournaments/{tournamentID}/prizes/calculate
func (h *PrizeHandler) CalculateHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	prizes, err := h.prizes.Calculate(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"prizes": prizes}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListHandler обрабатывает GET /tournaments/{tournamentID}/prizes
func (h *PrizeHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var statusFilter *models.PrizeStatus
	if statusStr := r.URL.Query().Get("status"); statusStr != "" {
		status := models.PrizeStatus(statusStr)
		statusFilter = &status
	}

	prizes, err := h.prizes.ListByTournament(r.Context(), tournamentID, statusFilter)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"prizes": prizes}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// SummaryHandler обрабатывает GET /tournaments/{tournamentID}/prizes/summary
func (h *PrizeHandler) SummaryHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	summary, err := h.prizes.Summary(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"summary": summary}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// DistributeHandler обрабатывает POST /prizes/{prizeID}/distribute
func (h *PrizeHandler) DistributeHandler(w http.ResponseWriter, r *http.Request) {
	prizeID, err := getIDFromURL(r, "prizeID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	adminID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to distribute prizes")
		return
	}

	prize, err := h.prizes.Distribute(r.Context(), prizeID, adminID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"prize": prize}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// BulkDistributeHandler обрабатывает POST /tournaments/{tournamentID}/prizes/bulk-distribute
func (h *PrizeHandler) BulkDistributeHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	adminID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to distribute prizes")
		return
	}

	var input struct {
		VerifiedOnly bool `json:"verified_only"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	result, err := h.prizes.BulkDistribute(r.Context(), tournamentID, adminID, input.VerifiedOnly)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"result": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// RetryHandler обрабатывает POST /prizes/{prizeID}/retry
func (h *PrizeHandler) RetryHandler(w http.ResponseWriter, r *http.Request) {
	prizeID, err := getIDFromURL(r, "prizeID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	adminID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to retry distribution")
		return
	}

	prize, err := h.prizes.Retry(r.Context(), prizeID, adminID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"prize": prize}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// TaxHandler обрабатывает POST /prizes/{prizeID}/tax
func (h *PrizeHandler) TaxHandler(w http.ResponseWriter, r *http.Request) {
	prizeID, err := getIDFromURL(r, "prizeID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Rate     float64 `json:"rate"`
		FormType *string `json:"form_type"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	prize, err := h.prizes.CalculateTax(r.Context(), prizeID, input.Rate, input.FormType)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"prize": prize}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// SetWalletHandler обрабатывает PUT /prizes/{prizeID}/wallet
func (h *PrizeHandler) SetWalletHandler(w http.ResponseWriter, r *http.Request) {
	prizeID, err := getIDFromURL(r, "prizeID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		WalletID      string `json:"wallet_id"`
		WalletAddress string `json:"wallet_address"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.WalletID == "" {
		badRequestResponse(w, r, errors.New("wallet_id is required"))
		return
	}

	prize, err := h.prizes.SetRecipientWallet(r.Context(), prizeID, input.WalletID, input.WalletAddress)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"prize": prize}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// VerifyHandler обрабатывает POST /prizes/{prizeID}/verify
func (h *PrizeHandler) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	prizeID, err := getIDFromURL(r, "prizeID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	prize, err := h.prizes.VerifyRecipient(r.Context(), prizeID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"prize": prize}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// CancelHandler обрабатывает DELETE /prizes/{prizeID}
func (h *PrizeHandler) CancelHandler(w http.ResponseWriter, r *http.Request) {
	prizeID, err := getIDFromURL(r, "prizeID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	prize, err := h.prizes.Cancel(r.Context(), prizeID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"prize": prize}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// UpdateStatusHandler обрабатывает PATCH /prizes/{prizeID}/status
func (h *PrizeHandler) UpdateStatusHandler(w http.ResponseWriter, r *http.Request) {
	prizeID, err := getIDFromURL(r, "prizeID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Status models.PrizeStatus `json:"status"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	prize, err := h.prizes.UpdateStatus(r.Context(), prizeID, input.Status)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"prize": prize}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetHandler обрабатывает GET /prizes/{prizeID}
func (h *PrizeHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	prizeID, err := getIDFromURL(r, "prizeID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	prize, err := h.prizes.GetByID(r.Context(), prizeID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"prize": prize}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListByRecipientHandler обрабатывает GET /users/{userID}/prizes
func (h *PrizeHandler) ListByRecipientHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := getIDFromURL(r, "userID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	prizes, err := h.prizes.ListByRecipient(r.Context(), userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"prizes": prizes}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// EarningsHandler обрабатывает GET /users/{userID}/earnings
func (h *PrizeHandler) EarningsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := getIDFromURL(r, "userID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	total, err := h.prizes.TotalEarnings(r.Context(), userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"total_earnings": total}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
