package auth

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/korylprince/agent-neo/api"
)

// Result is a parsed authentication callback
type Result struct {
	AccessToken string
	IDToken     string
	TokenType   string
	ExpiresIn   time.Duration
	State       string
}

// ParseHash parses the URL fragment the identity provider redirects back with
func ParseHash(fragment string) (*Result, error) {
	q, err := url.ParseQuery(strings.TrimPrefix(fragment, "#"))
	if err != nil {
		return nil, &api.Error{Description: "Could not parse callback", Type: api.ErrorTypeUser, Err: err}
	}

	if e := q.Get("error"); e != "" {
		return nil, &api.Error{Description: "Identity provider returned an error", Type: api.ErrorTypeUser, Err: fmt.Errorf("%s: %s", e, q.Get("error_description"))}
	}

	r := &Result{
		AccessToken: q.Get("access_token"),
		IDToken:     q.Get("id_token"),
		TokenType:   q.Get("token_type"),
		State:       q.Get("state"),
	}

	if r.IDToken == "" {
		return nil, &api.Error{Description: "Could not parse callback", Type: api.ErrorTypeUser, Err: ErrInvalidResult}
	}

	if v := q.Get("expires_in"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, &api.Error{Description: "Could not parse expires_in", Type: api.ErrorTypeUser, Err: err}
		}
		r.ExpiresIn = time.Duration(secs) * time.Second
	}

	return r, nil
}
