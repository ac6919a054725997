package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	campaigndomain "github.com/noxloop/digiforge/internal/campaign/domain"
)

func (s *Server) generateCampaign(c *gin.Context) {
	ws, ok := s.workspaceForRequest(c)
	if !ok {
		return
	}

	var req campaigndomain.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.WorkspaceID = ws.ID
	req.UserID = userID(c)

	campaign, err := s.campaignSvc.Generate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, campaign)
}

func (s *Server) listCampaigns(c *gin.Context) {
	ws, ok := s.workspaceForRequest(c)
	if !ok {
		return
	}

	campaigns, err := s.campaignSvc.List(c.Request.Context(), ws.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": campaigns})
}

func (s *Server) getCampaign(c *gin.Context) {
	ws, ok := s.workspaceForRequest(c)
	if !ok {
		return
	}

	campaign, err := s.campaignSvc.Get(c.Request.Context(), ws.ID, c.Param("campaign_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

func (s *Server) exportCampaign(c *gin.Context) {
	ws, ok := s.workspaceForRequest(c)
	if !ok {
		return
	}

	export, err := s.campaignSvc.ExportArchive(c.Request.Context(), ws.ID, c.Param("campaign_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	c.Header("X-Export-ID", export.ExportID)
	c.Data(http.StatusOK, "application/zip", export.Archive)
}
