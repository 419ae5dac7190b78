package webserver

import (
	"github.com/gin-gonic/gin"
	"github.com/stake-plus/trustink/src/apierr"
	"go.uber.org/zap"
)

// respondError writes {"err", "kind"}. Internal details are logged, not returned.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	kind := apierr.KindOf(err)
	if kind == apierr.KindInternal {
		log.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(apierr.Status(kind), gin.H{
		"err":  apierr.Message(err),
		"kind": kind,
	})
}

// badRequest reports a body or query binding failure.
func badRequest(c *gin.Context, log *zap.Logger, err error) {
	respondError(c, log, apierr.Validation("invalid request: %v", err))
}
