package web

import (
	"html/template"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sirmark/resume/internal/analytics"
	"github.com/sirmark/resume/internal/logger"
	"github.com/sirmark/resume/internal/resume"
	"github.com/sirmark/resume/internal/views"
)

// pageData is what the page and section templates render.
type pageData struct {
	Resume     *resume.Resume
	ViewID     string
	Threshold  float64
	RootMargin string
	// Export renders every section revealed, for document capture.
	Export   bool
	Revealed map[string]bool
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"markdown": resume.HTML,
		"percent": func(f float64) string {
			return strconv.FormatFloat(f*100, 'f', 0, 64) + "%"
		},
	}
}

func (s *Server) setupPageRoutes(r *gin.Engine) {
	r.GET("/", s.index)
	r.GET("/sections/:id", s.section)
	r.GET("/images/profile.jpg", s.photo)

	r.GET("/privacy", func(c *gin.Context) {
		c.HTML(http.StatusOK, "privacy.html", gin.H{
			"title":  "Privacy Policy",
			"resume": s.resume,
		})
	})
}

func (s *Server) index(c *gin.Context) {
	data := pageData{
		Resume:     s.resume,
		Threshold:  s.cfg.Reveal.Threshold,
		RootMargin: s.cfg.Reveal.RootMargin,
		Export:     c.Query("export") == "1",
		Revealed:   make(map[string]bool),
	}

	if data.Export {
		for _, id := range resume.Sections() {
			data.Revealed[id] = true
		}
	} else {
		view, err := s.views.Open(c.Request.Context(), views.Visit{
			HashedIP:  s.hasher.HashIP(c.ClientIP()),
			UserAgent: c.Request.UserAgent(),
			Track:     analytics.Trackable(c.Request),
		})
		if err != nil {
			s.log.Error("Failed to open view", logger.Error(err))
			// without a view the page cannot be tracked; show everything
			for _, id := range resume.Sections() {
				data.Revealed[id] = true
			}
		} else {
			data.ViewID = view.ID
		}
	}

	c.Header("Cache-Control", "no-store")
	c.HTML(http.StatusOK, "index.html", data)
}

// section renders one section as an HTMX fragment, with its reveal class
// taken from the view named by the view query parameter.
func (s *Server) section(c *gin.Context) {
	id := c.Param("id")
	if !resume.IsSection(id) {
		c.HTML(http.StatusNotFound, "error.html", gin.H{"error": "Unknown section"})
		return
	}

	data := pageData{Resume: s.resume, Revealed: make(map[string]bool)}
	if viewID := c.Query("view"); viewID != "" {
		snap, err := s.views.Snapshot(viewID)
		if err == nil {
			data.ViewID = viewID
			for _, r := range snap.Revealed {
				data.Revealed[r] = true
			}
		}
	} else {
		data.Revealed[id] = true
	}
	c.HTML(http.StatusOK, "section-"+id, data)
}

func (s *Server) photo(c *gin.Context) {
	if p := s.cfg.Resume.PhotoPath; p != "" {
		c.File(p)
		return
	}
	c.Redirect(http.StatusFound, "/static/profile.svg")
}
