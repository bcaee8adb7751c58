package handlers

import "net/http"

// HealthcheckHandler обрабатывает GET /healthz
func HealthcheckHandler(w http.ResponseWriter, r *http.Request) {
	payload := jsonResponse{
		"status": "available",
	}
	if err := writeJSON(w, http.StatusOK, payload, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
