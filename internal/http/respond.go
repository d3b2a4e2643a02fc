package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/spectcast/identity/internal/service/account"
)

// writeJSON writes a JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeSuccess sends a direct-caller body with the success flag appended.
func writeSuccess(w http.ResponseWriter, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["success"] = true
	writeJSON(w, http.StatusOK, payload)
}

// writeEnvelope sends a trusted-caller body. The gateway wraps responses in
// its own envelope, so no success flag is added.
func writeEnvelope(w http.ResponseWriter, status int, payload any) {
	writeJSON(w, status, payload)
}

// writeFailure maps a tagged account error onto its status and short
// message. Untagged errors are surfaced as store faults: no internal detail
// ever reaches the response body.
func writeFailure(w http.ResponseWriter, err error) {
	code, ok := account.CodeOf(err)
	if !ok {
		code = account.CodeDatabase
	}
	writeJSON(w, statusForCode(code), map[string]any{
		"message": string(code) + " error",
		"success": false,
	})
}

// writeError sends a plain error message outside the account taxonomy
// (method checks, missing routes, rate limits).
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"message": msg, "success": false})
}

func statusForCode(code account.Code) int {
	switch code {
	case account.CodeValidation, account.CodeCredentials:
		return http.StatusUnauthorized
	case account.CodeDuplicate:
		return http.StatusForbidden
	default:
		return http.StatusServiceUnavailable
	}
}
