package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/korylprince/agent-neo/api"
	"github.com/korylprince/agent-neo/auth"
	"go.uber.org/zap"
)

//NewRouter returns an HTTP router for the HTTP API. chat is the WebSocket chat handler.
func NewRouter(logger *zap.Logger, settings *api.SettingsHandle, a *auth.Authenticator, chat http.Handler) http.Handler {

	//construct middleware
	var m = func(h returnHandler) http.Handler {
		return logMiddleware(jsonMiddleware(authMiddleware(h, a)), logger)
	}
	var page = func(h returnHandler) http.Handler {
		return logMiddleware(pageMiddleware(h), logger)
	}

	r := mux.NewRouter()

	r.Path("/settings/").Methods("GET").Handler(m(handleReadSettings(settings)))
	r.Path("/settings/").Methods("POST").Handler(m(handleUpdateSettings(settings)))
	r.Path("/settings/theme").Methods("POST").Handler(m(handleToggleTheme(settings)))

	r.Path("/login").Methods("GET").Handler(page(handleLogin(a)))
	r.Path("/callback").Methods("GET").Handler(page(handleCallbackPage(a)))
	r.Path("/callback").Methods("POST").Handler(logMiddleware(jsonMiddleware(handleCallback(a)), logger))
	r.Path("/logout").Methods("GET").Handler(page(handleLogout(a)))
	r.Path("/user").Methods("GET").Handler(logMiddleware(jsonMiddleware(handleReadUser(a)), logger))

	// Chat WebSocket endpoint (no JSON middleware)
	r.Path("/chat").Handler(logMiddleware(wsMiddleware(chat, a), logger))

	r.NotFoundHandler = m(notFoundHandler)

	return r
}
