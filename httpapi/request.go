package httpapi

//CallbackRequest is the URL fragment the identity provider redirected to the callback page with
type CallbackRequest struct {
	Fragment string `json:"fragment"`
}
