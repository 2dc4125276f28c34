package canvasclient

import "fmt"

// APIError is returned for any non-2xx HTTP response from the
// replica's HTTP front end.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("canvasclient: server error (status %d): %s", e.StatusCode, e.Message)
}
