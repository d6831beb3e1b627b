package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"

	"github.com/korylprince/agent-neo/auth"
)

var errAuthDisabled = errors.New("Authentication is not enabled")

//callbackPage posts the URL fragment, which never reaches the server, back to the callback handler
var callbackPage = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.Title}}</title></head>
<body>
<p>{{.Message}}</p>
<script>
fetch("callback", {
	method: "POST",
	headers: {"Content-Type": "application/json"},
	body: JSON.stringify({fragment: window.location.hash})
}).then(function(resp) {
	window.location.replace(resp.ok ? "./" : "login");
});
</script>
</body>
</html>
`))

//GET /login
func handleLogin(a *auth.Authenticator) returnHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlerResponse {
		if !a.Enabled() {
			return handleError(http.StatusNotFound, errAuthDisabled)
		}

		u, err := a.LoginURL()
		if err != nil {
			return handleError(http.StatusInternalServerError, fmt.Errorf("Could not create login URL: %v", err))
		}

		http.Redirect(w, r, u, http.StatusFound)
		return &handlerResponse{Code: http.StatusFound}
	}
}

//GET /callback
func handleCallbackPage(a *auth.Authenticator) returnHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlerResponse {
		if !a.Enabled() {
			return handleError(http.StatusNotFound, errAuthDisabled)
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		err := callbackPage.Execute(w, map[string]string{"Title": "Agent-Neo", "Message": "Signing in..."})
		if err != nil {
			return handleError(http.StatusInternalServerError, fmt.Errorf("Could not render callback page: %v", err))
		}

		return &handlerResponse{Code: http.StatusOK}
	}
}

//POST /callback
func handleCallback(a *auth.Authenticator) returnHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlerResponse {
		if !a.Enabled() {
			return handleError(http.StatusNotFound, errAuthDisabled)
		}

		var req *CallbackRequest
		d := json.NewDecoder(r.Body)

		err := d.Decode(&req)
		if err != nil || req == nil {
			return handleError(http.StatusBadRequest, fmt.Errorf("Could not decode json: %v", err))
		}

		err = a.HandleAuthentication(req.Fragment)
		if resp := checkAPIError(err); resp != nil {
			return resp
		}

		return userResponse(a)
	}
}

//GET /logout
func handleLogout(a *auth.Authenticator) returnHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlerResponse {
		if !a.Enabled() {
			return handleError(http.StatusNotFound, errAuthDisabled)
		}

		u, err := a.Logout()
		if err != nil {
			return handleError(http.StatusInternalServerError, fmt.Errorf("Could not log out: %v", err))
		}

		http.Redirect(w, r, u, http.StatusFound)
		return &handlerResponse{Code: http.StatusFound}
	}
}

//GET /user
func handleReadUser(a *auth.Authenticator) returnHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlerResponse {
		return userResponse(a)
	}
}

func userResponse(a *auth.Authenticator) *handlerResponse {
	resp := &UserResponse{Enabled: a.Enabled(), Authenticated: a.IsAuthenticated()}
	if !resp.Authenticated {
		return &handlerResponse{Code: http.StatusOK, Body: resp}
	}

	state, err := a.State()
	if err != nil {
		return handleError(http.StatusInternalServerError, fmt.Errorf("Could not read authentication state: %v", err))
	}
	resp.ExpiresAt = state.ExpiresAt.UnixMilli()
	resp.User = state.Payload

	return &handlerResponse{Code: http.StatusOK, Body: resp, User: email(state)}
}
