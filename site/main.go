// Command site is a read-only viewer over the fogger history database.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"furitingoasis/fogger/chart"
	"furitingoasis/fogger/config"
	"furitingoasis/fogger/history"
)

const timestampLayout = "02:01:2006 15:04:05"

// SensorData is one downsampled reading as served to the viewer.
type SensorData struct {
	Value       string  `json:"timestamp"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

func newRouter(store *history.Store, maxPoints int) *gin.Engine {
	router := gin.New()
	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))
	router.Use(gin.Recovery())

	router.GET("/", func(c *gin.Context) {
		points, err := store.Series(c.Request.Context(), maxPoints)
		if err != nil {
			c.String(http.StatusInternalServerError, "Error querying data: %v", err)
			return
		}
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.Status(http.StatusOK)
		if err := chart.RenderHistory(c.Writer, points); err != nil {
			c.Error(err)
		}
	})

	router.GET("/api/sensor_data", func(c *gin.Context) {
		points, err := store.Series(c.Request.Context(), maxPoints)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Error querying data: " + err.Error()})
			return
		}
		readings := make([]SensorData, 0, len(points))
		for _, p := range points {
			readings = append(readings, SensorData{
				Value:       p.Timestamp.Format(timestampLayout),
				Temperature: p.Temperature,
				Humidity:    p.Humidity,
			})
		}
		c.JSON(http.StatusOK, readings)
	})

	// Full export, not downsampled.
	router.GET("/api/sensor_data.csv", func(c *gin.Context) {
		points, err := store.Series(c.Request.Context(), 0)
		if err != nil {
			c.String(http.StatusInternalServerError, "Error querying data: %v", err)
			return
		}
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", `attachment; filename="sensor_data.csv"`)
		w := csv.NewWriter(c.Writer)
		w.Write([]string{"timestamp", "temperature", "humidity"})
		for _, p := range points {
			w.Write([]string{
				p.Timestamp.UTC().Format(time.RFC3339),
				strconv.FormatFloat(p.Temperature, 'f', 2, 64),
				strconv.FormatFloat(p.Humidity, 'f', 2, 64),
			})
		}
		w.Flush()
		if err := w.Error(); err != nil {
			c.Error(err)
		}
	})

	router.GET("/api/stats", func(c *gin.Context) {
		stats, err := store.Stats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Error computing stats: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, stats)
	})

	router.GET("/api/actuations", func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if err != nil || limit < 1 || limit > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 1000"})
			return
		}
		actuations, err := store.Actuations(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Error querying actuations: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, actuations)
	})

	return router
}

func main() {
	addr := flag.String("addr", ":8080", "HTTP network address")
	configPath := flag.String("config", "", "JSON config file (defaults and FOGGER_* env apply)")
	dsn := flag.String("dsn", "", "history database, overrides the config")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("loading config", "error", err)
		os.Exit(1)
	}
	if *dsn != "" {
		cfg.HistoryDSN = *dsn
	}

	store, err := history.Open(cfg.HistoryDSN, logger)
	if err != nil {
		logger.Error("opening history", "dsn", cfg.HistoryDSN, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	logger.Info("starting history viewer", "addr", *addr, "dsn", cfg.HistoryDSN)
	if err := newRouter(store, cfg.ChartPoints).Run(*addr); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}
