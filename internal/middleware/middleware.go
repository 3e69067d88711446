package middleware

import (
	"math/rand"
	"net/http"
	"sync"
	"time"

	"history-calendar-loadtest/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func Logger() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		logrus.WithFields(logrus.Fields{
			"status":      param.StatusCode,
			"method":      param.Method,
			"path":        param.Path,
			"query":       param.Request.URL.RawQuery,
			"app_version": param.Request.Header.Get("X-App-Version"),
			"latency":     param.Latency,
			"time":        param.TimeStamp.Format(time.RFC3339),
		}).Debug("Request processed")
		return ""
	})
}

func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logrus.WithField("error", recovered).Error("Panic recovered")
		utils.NewResponseHelper(c).InternalError("Internal server error")
	})
}

// FaultInjector delays every request by latency and fails a share of them,
// given by errorRate in [0,1], with a 500 envelope.
func FaultInjector(latency time.Duration, errorRate float64) gin.HandlerFunc {
	var mu sync.Mutex
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	return func(c *gin.Context) {
		if latency > 0 {
			select {
			case <-time.After(latency):
			case <-c.Request.Context().Done():
				c.AbortWithStatus(http.StatusServiceUnavailable)
				return
			}
		}
		if errorRate > 0 {
			mu.Lock()
			fail := rng.Float64() < errorRate
			mu.Unlock()
			if fail {
				utils.NewResponseHelper(c).InternalError("injected failure")
				return
			}
		}
		c.Next()
	}
}
