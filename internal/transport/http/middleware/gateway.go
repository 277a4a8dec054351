package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"docchat/internal/transport/http/response"
)

const GatewayHeader = "X-From-ApiGateway"

// GatewayGate rejects requests that did not come through the API gateway. An empty secret disables it.
func GatewayGate(secret string, exempt ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(exempt))
	for _, p := range exempt {
		skip[p] = struct{}{}
	}
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}
		if c.GetHeader(GatewayHeader) != secret {
			response.Abort(c, http.StatusForbidden, response.CodeForbidden, "Forbidden: Invalid or missing API Gateway header")
			return
		}
		c.Next()
	}
}
