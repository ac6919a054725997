package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	defaultPlan        = "free"
	defaultPlanCredits = 10
)

type createWorkspaceRequest struct {
	Name string `json:"name" binding:"required"`
}

func (s *Server) createWorkspace(c *gin.Context) {
	var req createWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	ws, err := s.workspaceSvc.Create(c.Request.Context(), req.Name, userID(c), defaultPlan, defaultPlanCredits)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ws)
}

func (s *Server) listWorkspaces(c *gin.Context) {
	workspaces, err := s.workspaceSvc.ListForUser(c.Request.Context(), userID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workspaces": workspaces})
}

func (s *Server) getWorkspace(c *gin.Context) {
	ws, ok := s.workspaceForRequest(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ws)
}

func (s *Server) listUsage(c *gin.Context) {
	ws, ok := s.workspaceForRequest(c)
	if !ok {
		return
	}

	records, err := s.usageSvc.ListByWorkspace(c.Request.Context(), ws.ID, 0)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	spent, err := s.usageSvc.TotalSince(c.Request.Context(), ws.ID, s.clock.Now().Add(-24*time.Hour))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"usage":             records,
		"credits_spent_24h": spent,
		"credits_remaining": ws.Credits,
	})
}
