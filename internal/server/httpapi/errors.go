package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/gin-gonic/gin"
)

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// writeError is the only place where service errors become HTTP statuses.
// Unknown errors are logged and reported without detail.
func (s *Server) writeError(c *gin.Context, err error) {
	status, message := http.StatusInternalServerError, "Internal server error"

	switch {
	case errors.Is(err, common.ErrorUnauthorized):
		status, message = http.StatusUnauthorized, err.Error()
	case errors.Is(err, common.ErrorForbidden):
		status, message = http.StatusForbidden, err.Error()
	case errors.Is(err, common.ErrorNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, common.ErrorEmailTaken), errors.Is(err, common.ErrorValidation):
		status, message = http.StatusBadRequest, err.Error()
	default:
		s.logger.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
	}

	c.AbortWithStatusJSON(status, errorBody{Code: status, Message: message})
}

func (s *Server) writeBindError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Code: http.StatusBadRequest, Message: bindMessage(err)})
}
