package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dyike/tsladash/internal/chart"
	"github.com/dyike/tsladash/internal/llm"
	"github.com/dyike/tsladash/internal/service"
)

func (s *Server) chartOptions() chart.Options {
	cfg := s.dash.Config()
	return chart.Options{Symbol: cfg.Ticker, MaxRows: cfg.MaxChartRows}
}

func (s *Server) handleHealth(c *gin.Context) {
	status := gin.H{"status": "UP", "clients": s.hub.ClientCount()}
	if snap, err := s.dash.Snapshot(); err == nil {
		status["version"] = snap.Version
		status["loaded_at"] = snap.LoadedAt
	} else {
		status["status"] = "NO_DATA"
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleChart(c *gin.Context) {
	snap, err := s.dash.Snapshot()
	if err != nil {
		c.String(http.StatusServiceUnavailable, err.Error())
		return
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := chart.Render(c.Writer, snap.Bars, s.chartOptions()); err != nil {
		s.log.WithError(err).Error("render chart")
	}
}

func (s *Server) handleBars(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		fail(c, http.StatusBadRequest, fmt.Errorf("invalid limit %q", c.Query("limit")))
		return
	}
	bars, err := s.dash.Bars(limit)
	if err != nil {
		fail(c, http.StatusServiceUnavailable, err)
		return
	}
	ok(c, bars)
}

func (s *Server) handleSummary(c *gin.Context) {
	snap, err := s.dash.Snapshot()
	if err != nil {
		fail(c, http.StatusServiceUnavailable, err)
		return
	}
	ok(c, gin.H{
		"summary": snap.Summary,
		"text":    snap.Summary.String(),
		"version": snap.Version,
	})
}

type askRequest struct {
	Question string `json:"question" form:"question"`
}

func (s *Server) handleAsk(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ans, err := s.dash.Ask(c.Request.Context(), req.Question)
	if err != nil {
		code := llm.HTTPStatus(err)
		if errors.Is(err, service.ErrNoData) {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"error": err.Error(), "answer": ans.Text})
		return
	}
	c.JSON(http.StatusOK, ans)
}

func (s *Server) handleHistory(c *gin.Context) {
	var params service.HistoryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	items, err := s.dash.History(c.Request.Context(), params)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, items)
}
