// README: HTTP helper utilities for JSON and error mapping.
package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"milkrun/internal/modules/order"
	"milkrun/internal/modules/subscription"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(c *gin.Context, status int, msg string) {
	c.JSON(status, errorResponse{Error: msg})
}

// writeActionError maps the service error taxonomy onto status codes the
// shell can distinguish: a lost race is not a lost connection.
func writeActionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, order.ErrNoLocation):
		writeError(c, http.StatusPreconditionFailed, err.Error())
	case errors.Is(err, order.ErrConflict), errors.Is(err, subscription.ErrConflict):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, subscription.ErrInvalidState):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, subscription.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrUnavailable), errors.Is(err, subscription.ErrUnavailable):
		writeError(c, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
