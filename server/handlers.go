package server

import (
	"errors"
	"net/http"

	"scalpengine/projection"
	"scalpengine/tradestore"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleGetSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.api.GetSnapshot())
}

func (s *Server) handleGetWatchlist(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"watchlist": s.api.Watchlist()})
}

func (s *Server) handleEnable(c *gin.Context) {
	if err := s.api.Enable(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": true})
}

func (s *Server) handleDisable(c *gin.Context) {
	if err := s.api.Disable(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": false})
}

func (s *Server) handleUpdateSettings(c *gin.Context) {
	var next tradestore.Settings
	if err := c.ShouldBindJSON(&next); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	err := s.api.UpdateSettings(next)
	var ve *tradestore.ValidationError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"settings": next})
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid settings", "fields": ve.Fields})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (s *Server) handleAddSymbol(c *gin.Context) {
	var req struct {
		Symbol string `json:"symbol" binding:"required"`
		Name   string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if err := s.api.AddSymbol(req.Symbol, req.Name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"watchlist": s.api.Watchlist()})
}

func (s *Server) handleRemoveSymbol(c *gin.Context) {
	symbol := c.Param("symbol")
	if err := s.api.RemoveSymbol(symbol); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"watchlist": s.api.Watchlist()})
}

func (s *Server) handleClosePosition(c *gin.Context) {
	symbol := c.Param("symbol")
	err := s.api.ClosePosition(symbol)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"symbol": symbol, "closing": true})
	case errors.Is(err, projection.ErrNotOpen):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
