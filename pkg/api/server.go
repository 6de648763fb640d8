// Package api provides the REST API server for xmiplay.
package api

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/milesxmi/xmiseq/pkg/xmi"
)

// @title xmiplay API
// @version 1.0
// @description API for probing XMI (Extended MIDI) files
// @host localhost:8080
// @BasePath /api/v1

// StartServer starts the API server on the specified port.
func StartServer(port int) error {
	r := gin.Default()

	r.Use(corsMiddleware())

	r.GET("/health", healthCheck)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/formats", listFormats)
		v1.POST("/probe", handleProbe)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r.Run(fmt.Sprintf(":%d", port))
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// healthCheck godoc
// @Summary Health check endpoint
// @Description Returns the health status of the API
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "xmiplay",
	})
}

// listFormats godoc
// @Summary List supported formats
// @Description Returns the container forms this server recognizes
// @Tags info
// @Produce json
// @Success 200 {object} map[string][]string
// @Router /api/v1/formats [get]
func listFormats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"formats": []string{"FORM XMID", "CAT ", "XMID+FORM_AS_INT"},
	})
}

// handleProbe godoc
// @Summary Probe an XMI file's metadata
// @Description Upload an XMI file and receive its duration, tempo, time signature, and event count
// @Tags probe
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "XMI file to probe"
// @Success 200 {object} xmi.Result
// @Failure 400 {object} map[string]string
// @Router /api/v1/probe [post]
func handleProbe(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	defer func() { _ = file.Close() }()

	tmp, err := os.CreateTemp("", "xmiplay-probe-*.xmi")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to buffer upload"})
		return
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := io.Copy(tmp, file); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return
	}

	result := xmi.Probe(tmp.Name())
	if !result.Found {
		c.JSON(http.StatusBadRequest, gin.H{"error": result.Error})
		return
	}
	c.JSON(http.StatusOK, result)
}
