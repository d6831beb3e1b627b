package api

import (
	"errors"
	"sync"
)

//LLMTypes are the models the remote endpoint accepts as llm_type
var LLMTypes = []string{"Gemini", "GPT-4 8k", "GPT-4 32k"}

//Themes are the allowed UI themes
var Themes = []string{ThemeLight, ThemeDark}

//Themes
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

//Settings are the chat options selected in the settings sidebar
type Settings struct {
	SelectedLLM      string  `json:"selected_llm"`
	Temperature      float64 `json:"temperature"`
	UseGrounding     bool    `json:"use_grounding"`
	ContextDocuments int     `json:"context_documents"`
	Theme            string  `json:"theme"`
}

//DefaultSettings returns the Settings a new page starts with
func DefaultSettings() Settings {
	return Settings{
		SelectedLLM:      "GPT-4 8k",
		Temperature:      0.7,
		UseGrounding:     true,
		ContextDocuments: 10,
		Theme:            ThemeDark,
	}
}

//Validate validates the given Settings
func (s *Settings) Validate() error {
	if err := ValidateOneOf("selected_llm", s.SelectedLLM, LLMTypes); err != nil {
		return err
	}
	if err := ValidateRange("temperature", s.Temperature, 0, 1); err != nil {
		return err
	}
	if s.ContextDocuments < 0 {
		return errors.New("context_documents must not be negative")
	}
	return ValidateOneOf("theme", s.Theme, Themes)
}

//NumberOfDocuments returns the number of context documents to request.
//It is zero unless grounding is enabled.
func (s *Settings) NumberOfDocuments() int {
	if !s.UseGrounding {
		return 0
	}
	return s.ContextDocuments
}

//SettingsHandle holds the current Settings and is the only way to change them
type SettingsHandle struct {
	mu       sync.RWMutex
	settings Settings
}

//NewSettingsHandle returns a new SettingsHandle with the given initial Settings
func NewSettingsHandle(initial Settings) (*SettingsHandle, error) {
	if err := initial.Validate(); err != nil {
		return nil, &Error{Description: "Could not validate Settings", Type: ErrorTypeUser, Err: err}
	}
	return &SettingsHandle{settings: initial}, nil
}

//Settings returns a copy of the current Settings
func (h *SettingsHandle) Settings() Settings {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.settings
}

//Update applies fn to a copy of the current Settings and stores the result if it validates.
//The stored Settings are returned.
func (h *SettingsHandle) Update(fn func(*Settings)) (Settings, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.settings
	fn(&s)
	if err := s.Validate(); err != nil {
		return h.settings, &Error{Description: "Could not validate Settings", Type: ErrorTypeUser, Err: err}
	}
	h.settings = s
	return s, nil
}

//ToggleTheme switches between the light and dark themes and returns the new Settings
func (h *SettingsHandle) ToggleTheme() Settings {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.settings.Theme == ThemeDark {
		h.settings.Theme = ThemeLight
	} else {
		h.settings.Theme = ThemeDark
	}
	return h.settings
}
