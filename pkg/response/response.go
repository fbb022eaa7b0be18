package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the envelope every handler writes. Code is 0 on success and
// mirrors the HTTP status otherwise.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// AppError is a service failure tagged with the status it surfaces as.
type AppError struct {
	HTTPStatus int
	Code       int
	Message    string
}

func (e *AppError) Error() string { return e.Message }

func newAppError(status int, msg string) *AppError {
	return &AppError{HTTPStatus: status, Code: status, Message: msg}
}

func NewBadRequest(msg string) *AppError { return newAppError(http.StatusBadRequest, msg) }
func NewNotFound(msg string) *AppError   { return newAppError(http.StatusNotFound, msg) }
func NewConflict(msg string) *AppError   { return newAppError(http.StatusConflict, msg) }

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Message: "ok", Data: data})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Message: "created", Data: data})
}

// Error writes err. An *AppError anywhere in the chain picks the status,
// anything else becomes a 500 carrying the error text.
func Error(c *gin.Context, err error) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = newAppError(http.StatusInternalServerError, err.Error())
	}
	fail(c, appErr.HTTPStatus, appErr.Message)
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, Response{Code: status, Message: msg})
}

func BadRequest(c *gin.Context, msg string)  { fail(c, http.StatusBadRequest, msg) }
func NotFound(c *gin.Context, msg string)    { fail(c, http.StatusNotFound, msg) }
func ServerError(c *gin.Context, msg string) { fail(c, http.StatusInternalServerError, msg) }

// TooManyRequests aborts the chain; it is meant for middleware.
func TooManyRequests(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, Response{Code: http.StatusTooManyRequests, Message: msg})
}
