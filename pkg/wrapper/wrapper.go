package wrapper

import "net/http"

// JSONResult is the envelope every watcher endpoint answers with. Code is
// the HTTP status and is not serialised.
type JSONResult struct {
	Code    int               `json:"-"`
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    interface{}       `json:"data,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func ResponseSuccess(httpCode int, data interface{}) JSONResult {
	return JSONResult{
		Code:    httpCode,
		Success: true,
		Message: "Success",
		Data:    data,
	}
}

func ResponseFailed(httpCode int, message string) JSONResult {
	return JSONResult{
		Code:    httpCode,
		Success: false,
		Message: message,
	}
}

// ResponseInvalid reports request validation failures per field.
func ResponseInvalid(errs map[string]string) JSONResult {
	return JSONResult{
		Code:    http.StatusBadRequest,
		Success: false,
		Message: "invalid request",
		Errors:  errs,
	}
}
