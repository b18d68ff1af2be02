package adminapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/filewarden/mesh/pkg/logger"
)

// The Python distribution's routes always return jsonify(...) directly,
// without a success/error envelope. The handlers below keep that flat
// shape instead of the enveloped gin.H{"success":...} pattern used
// elsewhere in this codebase's HTTP surface, since the admin UI this API
// feeds expects the original response bodies verbatim.

func ok(c *gin.Context, body any) {
	c.JSON(http.StatusOK, body)
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}

func notFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, gin.H{"error": message})
}

func serverError(c *gin.Context, op string, err error) {
	logger.FromContext(c.Request.Context()).Error("adminapi: "+op, logger.FieldError, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}
