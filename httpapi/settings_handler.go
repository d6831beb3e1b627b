package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/korylprince/agent-neo/api"
)

func settingsResponse(s api.Settings) *handlerResponse {
	return &handlerResponse{Code: http.StatusOK, Body: &SettingsResponse{
		Settings: &s,
		LLMTypes: api.LLMTypes,
		Themes:   api.Themes,
	}}
}

//GET /settings/
func handleReadSettings(h *api.SettingsHandle) returnHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlerResponse {
		return settingsResponse(h.Settings())
	}
}

//POST /settings/
//Fields missing from the request keep their current values.
func handleUpdateSettings(h *api.SettingsHandle) returnHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlerResponse {
		var raw json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil || len(raw) == 0 || string(raw) == "null" {
			return handleError(http.StatusBadRequest, fmt.Errorf("Could not decode json: %v", err))
		}

		var decodeErr error
		s, err := h.Update(func(s *api.Settings) {
			next := *s
			if decodeErr = json.Unmarshal(raw, &next); decodeErr == nil {
				*s = next
			}
		})
		if decodeErr != nil {
			return handleError(http.StatusBadRequest, fmt.Errorf("Could not decode json: %v", decodeErr))
		}
		if resp := checkAPIError(err); resp != nil {
			return resp
		}

		return settingsResponse(s)
	}
}

//POST /settings/theme
func handleToggleTheme(h *api.SettingsHandle) returnHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlerResponse {
		return settingsResponse(h.ToggleTheme())
	}
}
