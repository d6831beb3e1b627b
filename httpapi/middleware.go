package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/korylprince/agent-neo/auth"
	"go.uber.org/zap"
)

type handlerResponse struct {
	Code int
	Body interface{}
	User string
	Err  error
}

type returnHandler func(http.ResponseWriter, *http.Request) *handlerResponse

func logMiddleware(next returnHandler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := next(w, r)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("code", resp.Code),
			zap.String("status", http.StatusText(resp.Code)),
		}
		if r.URL.RawQuery != "" {
			fields = append(fields, zap.String("query", r.URL.RawQuery))
		}
		if resp.User != "" {
			fields = append(fields, zap.String("user", resp.User))
		}
		if resp.Err != nil {
			fields = append(fields, zap.Error(resp.Err))
		}

		if resp.Code >= http.StatusInternalServerError {
			logger.Error("Request", fields...)
			return
		}
		logger.Info("Request", fields...)
	})
}

func jsonMiddleware(next returnHandler) returnHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlerResponse {
		var resp *handlerResponse

		if r.Method != "GET" {
			mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil {
				resp = handleError(http.StatusBadRequest, errors.New("Could not parse Content-Type"))
				goto serve
			}
			if mediaType != "application/json" {
				resp = handleError(http.StatusBadRequest, errors.New("Content-Type not application/json"))
				goto serve
			}
		}

		resp = next(w, r)

	serve:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.Code)
		e := json.NewEncoder(w)
		err := e.Encode(resp.Body)
		if err != nil {
			return handleError(http.StatusInternalServerError, fmt.Errorf("Could encode json: %v", err))
		}
		return resp
	}
}

//pageMiddleware writes a plain text error for failed page handlers. Successful handlers write their own response.
func pageMiddleware(next returnHandler) returnHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlerResponse {
		resp := next(w, r)
		if resp.Err != nil {
			http.Error(w, http.StatusText(resp.Code), resp.Code)
		}
		return resp
	}
}

//email returns the email claim of an authentication state, if any
func email(s *auth.State) string {
	if s == nil {
		return ""
	}
	e, _ := s.Payload["email"].(string)
	return e
}

func authMiddleware(next returnHandler, a *auth.Authenticator) returnHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlerResponse {
		if !a.Enabled() {
			return next(w, r)
		}

		if !a.IsAuthenticated() {
			return handleError(http.StatusUnauthorized, errors.New("Not authenticated"))
		}

		state, err := a.State()
		if err != nil {
			return handleError(http.StatusInternalServerError, fmt.Errorf("Could not read authentication state: %v", err))
		}

		resp := next(w, r)
		resp.User = email(state)

		return resp
	}
}

//wsMiddleware checks authentication before handing the request to a WebSocket handler
func wsMiddleware(next http.Handler, a *auth.Authenticator) returnHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlerResponse {
		if a.Enabled() && !a.IsAuthenticated() {
			resp := handleError(http.StatusUnauthorized, errors.New("Not authenticated"))
			http.Error(w, http.StatusText(resp.Code), resp.Code)
			return resp
		}

		next.ServeHTTP(w, r)
		return &handlerResponse{Code: http.StatusSwitchingProtocols}
	}
}
