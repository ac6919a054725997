package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	generationdomain "github.com/noxloop/digiforge/internal/generation/domain"
)

func (s *Server) generateProduct(c *gin.Context) {
	ws, ok := s.workspaceForRequest(c)
	if !ok {
		return
	}

	var req generationdomain.ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.WorkspaceID = ws.ID
	req.UserID = userID(c)

	product, err := s.generationSvc.GenerateProduct(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (s *Server) listProducts(c *gin.Context) {
	ws, ok := s.workspaceForRequest(c)
	if !ok {
		return
	}

	products, err := s.generationSvc.ListProducts(c.Request.Context(), ws.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (s *Server) getProduct(c *gin.Context) {
	ws, ok := s.workspaceForRequest(c)
	if !ok {
		return
	}

	product, err := s.generationSvc.GetProduct(c.Request.Context(), ws.ID, c.Param("product_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (s *Server) deleteProduct(c *gin.Context) {
	ws, ok := s.workspaceForRequest(c)
	if !ok {
		return
	}

	if err := s.generationSvc.DeleteProduct(c.Request.Context(), ws.ID, c.Param("product_id")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
