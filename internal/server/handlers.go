package server

import (
	"errors"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/RecoveryAshes/kinocrawl/internal/models"
	"github.com/RecoveryAshes/kinocrawl/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// maxListLimit /items 单次返回的最大条数
const maxListLimit = 500

func newEngine(s *Server) *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(), gin.Recovery())

	r.GET("/healthz", s.handleHealth)
	r.GET("/stats", s.handleStats)
	r.GET("/items", s.handleItems)
	r.GET("/items/:id/windows", s.handleWindows)
	r.GET("/passes/last", s.handleLastPass)
	r.POST("/passes", s.handleStartPass)
	return r
}

// requestLogger 用 zerolog 记录请求
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("HTTP请求")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "busy": s.Busy()})
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.store.Stats(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("查询统计失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询统计失败"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleItems(c *gin.Context) {
	filter := storage.ItemFilter{Limit: 100}

	switch status := models.LifecycleStatus(strings.ToUpper(c.Query("status"))); status {
	case models.StatusNone, models.StatusUpcoming, models.StatusExpiring:
		filter.Status = status
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "status 只能是 UPCOMING 或 EXPIRING"})
		return
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit 必须是正整数"})
			return
		}
		filter.Limit = min(n, maxListLimit)
	}

	items, err := s.store.ListItems(c.Request.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("查询作品失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询作品失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(items), "items": items})
}

func (s *Server) handleWindows(c *gin.Context) {
	id, err := models.ParseExternalID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的作品ID"})
		return
	}
	windows, err := s.store.ListWindows(c.Request.Context(), id)
	if err != nil {
		log.Error().Err(err).Int64("id", id).Msg("查询窗口失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询窗口失败"})
		return
	}
	if len(windows) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "没有该作品的窗口"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"external_id": id, "windows": windows})
}

func (s *Server) handleLastPass(c *gin.Context) {
	report, err := s.LastReport()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Error().Err(err).Msg("读取最近报告失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "读取最近报告失败"})
		return
	}
	if report == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "尚未执行过抓取"})
		return
	}

	s.mu.Lock()
	lastErr := s.lastErr
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"busy": s.Busy(), "report": report, "error": lastErr})
}

func (s *Server) handleStartPass(c *gin.Context) {
	if !s.Trigger("api") {
		c.JSON(http.StatusConflict, gin.H{"error": "已有抓取在执行"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}
