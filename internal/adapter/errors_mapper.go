package adapter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/stitchline/stitchline/models"
)

// mapHTTPError converts a non-2xx resty response into one of the package's
// sentinel errors. A 409 is decoded into a *ConflictError so the caller can
// reach both payload sides.
func mapHTTPError(resp *resty.Response) error {
	if resp.StatusCode() >= http.StatusOK && resp.StatusCode() < http.StatusMultipleChoices {
		return nil
	}

	body := strings.TrimSpace(string(resp.Body()))

	switch resp.StatusCode() {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrBadRequest, body)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, body)
	case http.StatusConflict:
		var conflictBody models.ConflictResponse
		if err := json.Unmarshal(resp.Body(), &conflictBody); err != nil {
			return fmt.Errorf("%w: %s", ErrVersionConflict, body)
		}
		return &ConflictError{Response: conflictBody}
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: http %d: %s", ErrNetworkUnavailable, resp.StatusCode(), body)
	case http.StatusInternalServerError:
		return fmt.Errorf("%w: %s", ErrInternalServerError, body)
	default:
		if body == "" {
			body = http.StatusText(resp.StatusCode())
		}
		return fmt.Errorf("http %d: %s", resp.StatusCode(), body)
	}
}
