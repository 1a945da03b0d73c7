package middlewares

import (
	"bitbucket.org/mmdatafocus/logistics_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const CorrelationIdHeader = "x-correlation-id"

// CorrelationMiddleware attaches one id per request; domain events carry it.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader(CorrelationIdHeader)
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Writer.Header().Set(CorrelationIdHeader, cid)
		c.Next()
	}
}

// ErrorLogger logs only requests that recorded errors.
func ErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
			logger.WithFields(logrus.Fields{
				"path":           c.FullPath(),
				"method":         c.Request.Method,
				"status":         c.Writer.Status(),
				"correlation_id": cid,
			}).Error(c.Errors.String())
		}
	}
}
