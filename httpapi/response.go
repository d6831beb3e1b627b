package httpapi

import "github.com/korylprince/agent-neo/api"

//SettingsResponse contains the current settings and the allowed values
type SettingsResponse struct {
	Settings *api.Settings `json:"settings"`
	LLMTypes []string      `json:"llm_types"`
	Themes   []string      `json:"themes"`
}

//UserResponse is the current login state
type UserResponse struct {
	Enabled       bool                   `json:"enabled"`
	Authenticated bool                   `json:"authenticated"`
	ExpiresAt     int64                  `json:"expires_at,omitempty"` //ms since epoch
	User          map[string]interface{} `json:"user,omitempty"`
}
