package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the JSON shape of every error this API produces.
type ErrorResponse struct {
	Error string `json:"error"`
}

func respondError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, ErrorResponse{Error: message})
}

// respondUpstreamError surfaces an adapter failure as a generic server
// error. Callers must treat the operation's upstream state as unknown; no
// status translation happens here.
func respondUpstreamError(c *gin.Context, err error) {
	log.Error(err)
	respondError(c, http.StatusInternalServerError, err.Error())
}
