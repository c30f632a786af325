package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/frahmantamala/timecard-management/internal"
)

func writeAppError(w http.ResponseWriter, appErr *internal.AppError) {
	status, resp := appErr.ToHTTPResponse()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
