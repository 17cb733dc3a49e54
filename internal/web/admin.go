package web

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sirmark/resume/internal/logger"
	"github.com/sirmark/resume/internal/resume"
)

// adminSessionAge is how long an admin login lasts, in seconds.
const adminSessionAge = 3600 * 24

func (s *Server) setupAdminRoutes(r *gin.Engine) {
	if s.cfg.Admin.UsingDefaults() {
		s.log.Warn("Using default admin credentials; set ADMIN_USERNAME and ADMIN_PASSWORD")
	}

	r.GET("/admin/login", func(c *gin.Context) {
		c.HTML(http.StatusOK, "admin-login.html", gin.H{"title": "Admin Login"})
	})
	r.POST("/admin/login", s.adminLogin)
	r.GET("/admin/logout", func(c *gin.Context) {
		c.SetCookie(adminCookie, "", -1, "/admin", "", false, true)
		s.log.Info("Admin logout", logger.String("client", s.hasher.HashIP(c.ClientIP())))
		c.Redirect(http.StatusFound, "/admin/login")
	})

	admin := r.Group("/admin")
	admin.Use(s.adminAuthMiddleware())
	admin.GET("/dashboard", s.adminDashboard)
	admin.GET("/api/stats", s.adminStats)
	admin.GET("/export/stats", s.adminExportStats)
}

func (s *Server) adminLogin(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")
	client := s.hasher.HashIP(c.ClientIP())

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.cfg.Admin.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.cfg.Admin.Password)) == 1
	if !userOK || !passOK {
		s.log.Warn("Failed admin login attempt", logger.String("client", client))
		c.HTML(http.StatusUnauthorized, "admin-login.html", gin.H{
			"title": "Admin Login",
			"error": "Invalid credentials",
		})
		return
	}

	c.SetCookie(adminCookie, s.adminToken, adminSessionAge, "/admin", "", false, true)
	s.log.Info("Admin login successful", logger.String("client", client))
	c.Redirect(http.StatusFound, "/admin/dashboard")
}

func (s *Server) adminDashboard(c *gin.Context) {
	if s.store == nil {
		c.HTML(http.StatusServiceUnavailable, "error.html", gin.H{"error": "Analytics storage is not configured"})
		return
	}
	stats, err := s.store.Stats(c.Request.Context(), resume.Sections())
	if err != nil {
		s.log.Error("Failed to load admin stats", logger.Error(err))
		c.HTML(http.StatusInternalServerError, "error.html", gin.H{"error": "Failed to load statistics"})
		return
	}
	c.HTML(http.StatusOK, "admin-dashboard.html", gin.H{
		"title":       "Dashboard",
		"stats":       stats,
		"activeViews": s.views.Len(),
	})
}

func (s *Server) adminStats(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "analytics storage is not configured"})
		return
	}
	stats, err := s.store.Stats(c.Request.Context(), resume.Sections())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) adminExportStats(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "analytics storage is not configured"})
		return
	}
	stats, err := s.store.Stats(c.Request.Context(), resume.Sections())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Disposition", "attachment; filename=resume-stats.json")
	s.log.Info("Admin stats exported", logger.String("client", s.hasher.HashIP(c.ClientIP())))
	c.JSON(http.StatusOK, stats)
}
