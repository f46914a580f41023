package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler registers a group of routes on the server.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}

// APIResponse is the envelope every JSON endpoint writes.
type APIResponse struct {
	Status    int         `json:"status"`
	Message   string      `json:"message"`
	RequestID string      `json:"request_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// ValidationError describes one rejected request field.
type ValidationError struct {
	Code    string                 `json:"code"`
	Field   string                 `json:"field,omitempty"`
	Message string                 `json:"message"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// DataResponse writes the envelope using status both as the HTTP code and in the body.
func DataResponse(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, APIResponse{
		Status:    status,
		Message:   http.StatusText(status),
		RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
		Data:      data,
	})
}

func SuccessResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusOK, data)
}

func CreatedResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusCreated, data)
}

// BadRequestResponse reports request validation failures.
func BadRequestResponse(c echo.Context, errs []ValidationError) error {
	return DataResponse(c, http.StatusBadRequest, errs)
}

// AppErrorResponse writes err with its own status; anything that is not an AppError becomes a 500.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = InternalError("internal error").WithError(err)
	}
	return DataResponse(c, appErr.Status, []*AppError{appErr})
}

// AttachmentResponse writes body as a downloadable file.
func AttachmentResponse(c echo.Context, filename, contentType string, body []byte) error {
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, contentType, body)
}
