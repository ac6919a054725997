package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// getStatus reports collaborator availability so the Studio can disable
// features whose backing services are down or unconfigured.
func (s *Server) getStatus(c *gin.Context) {
	ctx := c.Request.Context()

	c.JSON(http.StatusOK, gin.H{
		"service":  s.cfg.AppName,
		"version":  s.cfg.AppVersion,
		"llm":      s.llmClient.Status(ctx),
		"rag":      s.ragClient.Status(),
		"payments": s.paymentSvc.Status(),
		"notify":   s.notifier.Status(),
	})
}
