package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) listPlans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"plans": s.catalog.List()})
}

type checkoutRequest struct {
	PlanID    string `json:"plan_id" binding:"required"`
	OriginURL string `json:"origin_url"`
}

func (s *Server) checkoutStripe(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	checkout, err := s.paymentSvc.CheckoutStripe(c.Request.Context(), userID(c), userEmail(c), req.PlanID, req.OriginURL)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, checkout)
}

func (s *Server) checkoutPayPal(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	checkout, err := s.paymentSvc.CheckoutPayPal(c.Request.Context(), userID(c), req.PlanID, req.OriginURL)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, checkout)
}

type confirmStripeRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

func (s *Server) confirmStripe(c *gin.Context) {
	var req confirmStripeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.paymentSvc.ConfirmStripe(c.Request.Context(), userID(c), userEmail(c), userName(c), req.SessionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type confirmPayPalRequest struct {
	OrderID string `json:"order_id" binding:"required"`
}

func (s *Server) confirmPayPal(c *gin.Context) {
	var req confirmPayPalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.paymentSvc.ConfirmPayPal(c.Request.Context(), userID(c), userEmail(c), userName(c), req.OrderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) paymentHistory(c *gin.Context) {
	history, err := s.paymentSvc.History(c.Request.Context(), userID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": history})
}

func (s *Server) stripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.paymentSvc.HandleStripeWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
