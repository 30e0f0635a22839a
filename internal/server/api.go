package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	orchestration "github.com/koscakluka/ema-duplex/core"
	"github.com/koscakluka/ema-duplex/core/forms"
)

type fieldRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func registerAPIRoutes(mux *http.ServeMux, registry *Registry) {
	mux.HandleFunc("GET /state", func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}

		form, err := registry.Form(r.Context(), userID)
		if err != nil {
			writeJSONError(w, statusFor(err), fmt.Sprintf("get form: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, form)
	})

	mux.HandleFunc("POST /field", func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}

		var request fieldRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if _, ok := forms.ParseField(request.Field); !ok {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown field %q", request.Field))
			return
		}

		if err := registry.UpdateField(r.Context(), userID, request.Field, request.Value); err != nil {
			writeJSONError(w, statusFor(err), fmt.Sprintf("update field: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	mux.HandleFunc("POST /reset", func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}

		if err := registry.ResetForm(r.Context(), userID); err != nil {
			writeJSONError(w, statusFor(err), fmt.Sprintf("reset form: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing user")
		return "", false
	}
	return userID, true
}

func statusFor(err error) int {
	if errors.Is(err, orchestration.ErrSessionClosed) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
