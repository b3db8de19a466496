package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const DeviceKeyHeader = "x-device-key"

// DeviceAuth guards the ingestion endpoints with the shared device secret.
// Sensors and gate cameras do not carry user tokens.
func DeviceAuth(deviceKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := c.GetHeader(DeviceKeyHeader)
		if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(deviceKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid device key"})
			return
		}
		c.Next()
	}
}
