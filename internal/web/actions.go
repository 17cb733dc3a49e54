package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sirmark/resume/internal/analytics"
	"github.com/sirmark/resume/internal/export"
	"github.com/sirmark/resume/internal/logger"
	"github.com/sirmark/resume/internal/share"
)

// knownOutcomes bounds the outcome label; anything else is stored as "other".
var knownOutcomes = map[string]bool{
	"":                             true,
	"ok":                           true,
	"error":                        true,
	string(share.MethodNative):    true,
	string(share.MethodClipboard): true,
	string(share.MethodManual):    true,
	string(share.MethodCanceled):  true,
}

type actionRequest struct {
	Action  string `json:"action"  binding:"required"`
	Outcome string `json:"outcome"`
}

// shareResponse gives the page script everything it needs to run the
// share fallbacks on its own.
type shareResponse struct {
	Payload       share.Payload `json:"payload"`
	CopiedMessage string        `json:"copied_message"`
	ManualMessage string        `json:"manual_message"`
}

func (s *Server) setupActionRoutes(r *gin.Engine) {
	r.GET("/share", s.sharePayload)
	r.GET("/resume.pdf", s.download)
	r.POST("/views/:id/actions", s.recordAction)
}

func (s *Server) sharePayload(c *gin.Context) {
	url := s.baseURL(c.Request) + "/"
	c.JSON(http.StatusOK, shareResponse{
		Payload: share.Payload{
			Title: s.resume.Share.Title,
			Text:  s.resume.Share.Text,
			URL:   url,
		},
		CopiedMessage: share.CopiedMessage,
		ManualMessage: share.ManualMessage(url),
	})
}

func (s *Server) exportOptions() export.Options {
	return s.cfg.Export.Options(s.resume.Export.Filename)
}

func (s *Server) renderURL() string {
	if u := s.cfg.Export.RenderURL; u != "" {
		return u
	}
	return fmt.Sprintf("http://127.0.0.1:%d/?export=1", s.cfg.Service.Port)
}

// download exports the page with every section revealed.
func (s *Server) download(c *gin.Context) {
	if !s.exporter.Enabled() {
		s.countExport("disabled")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "document export is not enabled"})
		return
	}

	ctx := c.Request.Context()
	if t := s.cfg.Export.Timeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	opts := s.exportOptions()
	start := time.Now()
	doc, err := s.exporter.Export(ctx, s.renderURL(), opts)
	if s.metrics != nil {
		s.metrics.ExportTiming.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		s.countExport("error")
		s.log.Error("Document export failed", logger.Error(err))
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		c.JSON(status, gin.H{"error": "Failed to export document"})
		return
	}

	s.countExport("ok")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", opts.Filename))
	c.Data(http.StatusOK, "application/pdf", doc)
}

func (s *Server) countExport(outcome string) {
	if s.metrics != nil {
		s.metrics.Exports.WithLabelValues(outcome).Inc()
	}
}

// recordAction stores a download, print or share click reported by the page.
func (s *Server) recordAction(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch req.Action {
	case analytics.ActionDownload, analytics.ActionPrint, analytics.ActionShare:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": analytics.ErrUnknownAction.Error()})
		return
	}

	if !knownOutcomes[req.Outcome] {
		req.Outcome = "other"
	}

	if s.metrics != nil {
		s.metrics.Actions.WithLabelValues(req.Action, req.Outcome).Inc()
	}
	if s.store == nil || !analytics.Trackable(c.Request) {
		c.Status(http.StatusNoContent)
		return
	}
	if err := s.store.RecordAction(c.Request.Context(), c.Param("id"), req.Action, req.Outcome); err != nil {
		s.log.Warn("Failed to record action",
			logger.String("action", req.Action),
			logger.Error(err),
		)
	}
	c.Status(http.StatusNoContent)
}
