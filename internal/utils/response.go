package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Envelope codes. Errors reuse the HTTP status as their code.
const CodeOK = 0

// Envelope is the wrapper every API response is sent in.
type Envelope struct {
	IsSuccess bool        `json:"isSuccess"`
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	Result    interface{} `json:"result"`
}

type ResponseHelper struct {
	c *gin.Context
}

// NewResponseHelper creates a new response helper
func NewResponseHelper(c *gin.Context) *ResponseHelper {
	return &ResponseHelper{c: c}
}

// Success sends a 200 envelope with result
func (r *ResponseHelper) Success(result interface{}, message ...string) {
	msg := "ok"
	if len(message) > 0 {
		msg = message[0]
	}
	r.c.JSON(http.StatusOK, Envelope{IsSuccess: true, Code: CodeOK, Message: msg, Result: result})
}

// Error aborts the request with an error envelope and status
func (r *ResponseHelper) Error(status int, message string) {
	r.c.AbortWithStatusJSON(status, Envelope{IsSuccess: false, Code: status, Message: message, Result: nil})
}

func (r *ResponseHelper) BadRequest(message string) {
	r.Error(http.StatusBadRequest, message)
}

func (r *ResponseHelper) Unauthorized(message string) {
	r.Error(http.StatusUnauthorized, message)
}

func (r *ResponseHelper) InternalError(message string) {
	r.Error(http.StatusInternalServerError, message)
}

func (r *ResponseHelper) ServiceUnavailable(message string) {
	r.Error(http.StatusServiceUnavailable, message)
}
