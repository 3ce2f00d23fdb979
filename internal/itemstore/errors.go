package itemstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/net/html"
)

// APIError is a non-2xx answer from the item store.
type APIError struct {
	Method  string
	Route   string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: API %d: %s", e.Method, e.Route, e.Status, e.Message)
}

// Unwrap makes every APIError match ErrAPIRequest.
func (e *APIError) Unwrap() error {
	return ErrAPIRequest
}

// Is maps well-known statuses onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrForbidden:
		return e.Status == http.StatusForbidden || e.Status == http.StatusUnauthorized
	case ErrBadRequest:
		return e.Status == http.StatusBadRequest
	}
	return false
}

// errorMessage extracts a readable message from an error body: the JSON
// "error" or "message" field, the text of an HTML page, or the raw text.
func errorMessage(status int, contentType string, body []byte) string {
	fallback := fmt.Sprintf("API %d", status)
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return fallback
	}

	switch {
	case strings.Contains(contentType, "application/json"):
		var payload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(body, &payload); err == nil {
			if payload.Error != "" {
				return payload.Error
			}
			if payload.Message != "" {
				return payload.Message
			}
		}
		return fallback

	case strings.Contains(contentType, "text/html"):
		if text := htmlText(body); text != "" {
			return text
		}
		return fallback
	}

	return string(body)
}

// htmlText returns the visible text of an HTML document, whitespace
// collapsed, skipping script and style content.
func htmlText(doc []byte) string {
	z := html.NewTokenizer(bytes.NewReader(doc))
	var parts []string
	skip := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
		case html.StartTagToken:
			name, _ := z.TagName()
			if tag := string(name); tag == "script" || tag == "style" {
				skip++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if tag := string(name); (tag == "script" || tag == "style") && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				if t := strings.TrimSpace(string(z.Text())); t != "" {
					parts = append(parts, t)
				}
			}
		}
	}
}
