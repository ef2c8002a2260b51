package service

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/flowapp/flow-backend/internal/model"
)

const defaultUserID = "local"

// NewRouter wires the HTTP surface: sync trigger, transaction reads, report
// reads and override writes.
func NewRouter(svc *Service, log zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-User-ID"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.POST("/sync", handleSync(svc))
		api.GET("/transactions", handleTransactions(svc))
		api.PUT("/overrides/:raw", handleSetOverride(svc))

		reports := api.Group("/reports")
		{
			reports.GET("/forecast", handleForecast(svc))
			reports.GET("/trends", handleTrends(svc))
			reports.GET("/goals", handleGoals(svc))
			reports.GET("/salary", handleSalary(svc))
			reports.GET("/daily-budget", handleDailyBudget(svc))
		}
	}
	return r
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}

func userID(c *gin.Context) string {
	if id := c.GetHeader("X-User-ID"); id != "" {
		return id
	}
	return defaultUserID
}

func handleSync(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SyncRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sync payload: " + err.Error()})
			return
		}
		result, err := svc.Sync(c.Request.Context(), userID(c), req)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func handleTransactions(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		txns, err := svc.Transactions(c.Request.Context(), userID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"transactions": txns, "count": len(txns)})
	}
}

func handleSetOverride(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var override model.LocalOverride
		if err := c.ShouldBindJSON(&override); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid override payload: " + err.Error()})
			return
		}
		if err := svc.SetOverride(c.Request.Context(), userID(c), c.Param("raw"), override); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func handleForecast(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		forecast, err := svc.Forecast(c.Request.Context(), userID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, forecast)
	}
}

func handleTrends(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		trends, err := svc.Trends(c.Request.Context(), userID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"trends": trends})
	}
}

func handleGoals(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		goals, err := svc.Goals(c.Request.Context(), userID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"goals": goals})
	}
}

func handleSalary(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := svc.Salary(c.Request.Context(), userID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func handleDailyBudget(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := svc.DailyBudget(c.Request.Context(), userID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}
