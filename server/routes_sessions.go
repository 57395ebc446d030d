// routes_sessions.go - HTTP-Handler fuer fortsetzbare Sitzungen
// Enthaelt: StartHandler, NextHandler, MessageHandler, CancelHandler, SessionsHandler

package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ollama/ddpm/api"
	"github.com/ollama/ddpm/diffusion"
	"github.com/ollama/ddpm/sampler"
)

func stepResponse(r sampler.Reply) api.StepResponse {
	return api.StepResponse{
		Step:    r.Step,
		Image:   api.Image(r.Image),
		Key:     r.Key,
		Percent: r.Percent,
	}
}

func (s *Server) start(c *gin.Context) {
	release, err := s.acquire(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	defer release()

	reply, err := s.driver.Start(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, stepResponse(reply))
}

func (s *Server) next(c *gin.Context, key string) {
	if key == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "key is required"})
		return
	}

	release, err := s.acquire(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	defer release()

	reply, err := s.driver.Next(c.Request.Context(), key)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, stepResponse(reply))
}

// StartHandler beginnt eine neue Sitzung und liefert den ersten Schritt
func (s *Server) StartHandler(c *gin.Context) {
	s.start(c)
}

// NextHandler fuehrt einen weiteren Schritt der Sitzung aus
func (s *Server) NextHandler(c *gin.Context) {
	var req api.NextRequest
	if err := c.ShouldBindJSON(&req); errors.Is(err, io.EOF) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return
	} else if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.next(c, req.Key)
}

// MessageHandler nimmt {"type": "start"} oder {"type": "next", "key": ...}
// auf einem einzigen Endpunkt entgegen
func (s *Server) MessageHandler(c *gin.Context) {
	var req api.MessageRequest
	if err := c.ShouldBindJSON(&req); errors.Is(err, io.EOF) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return
	} else if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch req.Type {
	case api.MessageStart:
		s.start(c)
	case api.MessageNext:
		s.next(c, req.Key)
	default:
		abortWithError(c, fmt.Errorf("%w: unknown message type %q", diffusion.ErrInvalidArgument, req.Type))
	}
}

// CancelHandler verwirft eine Sitzung
func (s *Server) CancelHandler(c *gin.Context) {
	if err := s.driver.Cancel(c.Param("key")); err != nil {
		abortWithError(c, err)
		return
	}

	c.Status(http.StatusOK)
}

// SessionsHandler listet offene Sitzungen, die aelteste zuerst
func (s *Server) SessionsHandler(c *gin.Context) {
	infos := s.driver.Sessions()

	resp := api.SessionsResponse{Sessions: make([]api.SessionInfo, 0, len(infos))}
	for _, info := range infos {
		resp.Sessions = append(resp.Sessions, api.SessionInfo{
			Key:       info.Key,
			Step:      info.Step,
			Percent:   info.Percent,
			CreatedAt: info.Created,
			TouchedAt: info.Touched,
		})
	}

	c.JSON(http.StatusOK, resp)
}
