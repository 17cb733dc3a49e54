package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sirmark/resume/internal/reveal"
	"github.com/sirmark/resume/internal/views"
)

type startRequest struct {
	Capability string `json:"capability" binding:"required"`
}

type intersectionsRequest struct {
	Entries []reveal.Entry `json:"entries"`
}

type layoutRequest struct {
	Viewport reveal.Rect            `json:"viewport"`
	Regions  map[string]reveal.Rect `json:"regions"`
}

func (s *Server) setupViewRoutes(r *gin.Engine) {
	g := r.Group("/views/:id")
	g.GET("", s.viewSnapshot)
	g.POST("/start", s.viewStart)
	g.POST("/intersections", s.viewIntersections)
	g.POST("/layout", s.viewLayout)
	g.POST("/stop", s.viewStop)
}

func (s *Server) viewSnapshot(c *gin.Context) {
	snap, err := s.views.Snapshot(c.Param("id"))
	if err != nil {
		s.viewError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) viewStart(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	kind, err := views.ParseKind(req.Capability)
	if err != nil {
		s.viewError(c, err)
		return
	}
	snap, err := s.views.Start(c.Request.Context(), c.Param("id"), kind)
	if err != nil {
		s.viewError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) viewIntersections(c *gin.Context) {
	var req intersectionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap, err := s.views.Intersections(c.Request.Context(), c.Param("id"), req.Entries)
	if err != nil {
		s.viewError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) viewLayout(c *gin.Context) {
	var req layoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap, err := s.views.Layout(c.Request.Context(), c.Param("id"), req.Viewport, req.Regions)
	if err != nil {
		s.viewError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// viewStop is sent as a beacon when the page goes away. It always succeeds.
func (s *Server) viewStop(c *gin.Context) {
	s.views.Close(c.Request.Context(), c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (s *Server) viewError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, views.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, views.ErrUnknownCapability):
		status = http.StatusBadRequest
	case errors.Is(err, views.ErrWrongCapability),
		errors.Is(err, reveal.ErrNotObserving),
		errors.Is(err, reveal.ErrStopped):
		status = http.StatusConflict
	default:
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
