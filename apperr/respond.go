package apperr

import "github.com/gin-gonic/gin"

// Respond aborts the request with err's status and user message.
func Respond(c *gin.Context, err error) {
	c.AbortWithStatusJSON(HTTPStatus(err), gin.H{"error": UserMessage(err)})
}
