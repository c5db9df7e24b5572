// Package api handles HTTP and WebSocket API endpoints
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/thereceipt/label-engine/internal/command"
	"github.com/thereceipt/label-engine/internal/job"
	"github.com/thereceipt/label-engine/internal/printer"
	"github.com/thereceipt/label-engine/internal/render"
	"github.com/thereceipt/label-engine/pkg/labelformat"
)

const printTimeout = 2 * time.Minute

// Server is the API server
type Server struct {
	router   *gin.Engine
	manager  *printer.Manager
	renderer *render.Renderer
	executor *command.Executor
	upgrader websocket.Upgrader
	hub      *hub
}

// NewServer creates a new API server and subscribes it to manager events
func NewServer(manager *printer.Manager) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(), corsMiddleware())

	server := &Server{
		router:   router,
		manager:  manager,
		renderer: render.New(job.DotsPerMM),
		executor: command.NewExecutor(manager),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
		hub: newHub(),
	}

	manager.OnDeviceFound(server.BroadcastDevice)
	manager.OnConnectionChange(server.BroadcastConnection)

	server.setupRoutes()

	return server
}

func (s *Server) setupRoutes() {
	s.router.POST("/scan/start", s.handleStartScan)
	s.router.POST("/scan/stop", s.handleStopScan)
	s.router.GET("/devices", s.handleGetDevices)

	s.router.POST("/connect", s.handleConnect)
	s.router.POST("/disconnect", s.handleDisconnect)
	s.router.GET("/state", s.handleGetState)
	s.router.GET("/status", s.handleGetStatus)

	s.router.POST("/print", s.handlePrint)
	s.router.POST("/print/cancel", s.handleCancelPrint)
	s.router.POST("/preview", s.handlePreview)
	s.router.GET("/jobs", s.handleGetJobs)
	s.router.GET("/job/:id", s.handleGetJob)

	s.router.GET("/printers/known", s.handleGetKnown)
	s.router.POST("/printer/:id/name", s.handleSetPrinterName)

	s.router.POST("/command", s.handleCommand)

	s.router.GET("/ws", s.handleWebSocket)

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// httpStatus maps a printer error code to an HTTP status
func httpStatus(code string) int {
	switch code {
	case "INVALID_ARGUMENT":
		return http.StatusBadRequest
	case "PERMISSION_DENIED":
		return http.StatusForbidden
	case "DEVICE_NOT_FOUND", "NOT_FOUND":
		return http.StatusNotFound
	case "ALREADY_CONNECTED", "NOT_CONNECTED":
		return http.StatusConflict
	case "PRINT_ERROR":
		return http.StatusUnprocessableEntity
	case "CONNECTION_REJECTED", "CONNECTION_TIMEOUT", "LINK_LOST":
		return http.StatusBadGateway
	case "BLUETOOTH_UNAVAILABLE", "CLOSED":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	code := printer.Code(err)
	c.JSON(httpStatus(code), gin.H{
		"error": err.Error(),
		"code":  code,
	})
}

func (s *Server) handleStartScan(c *gin.Context) {
	if err := s.manager.StartScan(); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(200, gin.H{"success": true})
}

func (s *Server) handleStopScan(c *gin.Context) {
	if err := s.manager.StopScan(); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(200, gin.H{"success": true})
}

// handleGetDevices returns the current scan session in first-seen order
func (s *Server) handleGetDevices(c *gin.Context) {
	c.JSON(200, gin.H{
		"scanning": s.manager.Scanning(),
		"devices":  s.manager.Devices(),
	})
}

func (s *Server) handleConnect(c *gin.Context) {
	var req struct {
		DeviceID        string `json:"deviceId"`
		BypassWhitelist bool   `json:"bypassWhitelist"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", printer.ErrInvalidArgument, err))
		return
	}

	if err := s.manager.Connect(req.DeviceID, req.BypassWhitelist); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(200, gin.H{"success": true})
}

func (s *Server) handleDisconnect(c *gin.Context) {
	c.JSON(200, gin.H{"result": s.manager.Disconnect()})
}

func (s *Server) handleGetState(c *gin.Context) {
	c.JSON(200, s.manager.State())
}

func (s *Server) handleGetStatus(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	code, err := s.manager.Status(ctx)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(200, gin.H{"status": code})
}

// decodeJob reads a label job from the request body without validating it
func decodeJob(c *gin.Context) (*labelformat.Job, error) {
	data, err := c.GetRawData()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", printer.ErrInvalidArgument, err)
	}
	spec, err := labelformat.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", printer.ErrInvalidArgument, err)
	}
	return spec, nil
}

// handlePrint builds and transmits a label job to the connected printer
func (s *Server) handlePrint(c *gin.Context) {
	spec, err := decodeJob(c)
	if err != nil {
		abortWithError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), printTimeout)
	defer cancel()

	jobID, err := s.manager.Print(ctx, spec)
	if err != nil {
		code := printer.Code(err)
		resp := gin.H{
			"success": false,
			"error":   err.Error(),
			"code":    code,
		}
		if jobID != "" {
			resp["job_id"] = jobID
		}
		c.JSON(httpStatus(code), resp)
		return
	}

	c.JSON(200, gin.H{
		"success": true,
		"job_id":  jobID,
	})
}

func (s *Server) handleCancelPrint(c *gin.Context) {
	s.manager.CancelPrint()
	c.JSON(200, gin.H{"success": true})
}

// handlePreview renders one label of a job to PNG
func (s *Server) handlePreview(c *gin.Context) {
	index, err := strconv.Atoi(c.DefaultQuery("page", "0"))
	if err != nil || index < 0 {
		abortWithError(c, fmt.Errorf("%w: page must be a non-negative integer", printer.ErrInvalidArgument))
		return
	}

	spec, err := decodeJob(c)
	if err != nil {
		abortWithError(c, err)
		return
	}

	j, err := s.manager.Build(spec)
	if err != nil {
		abortWithError(c, err)
		return
	}

	labels, err := s.renderer.RenderJob(j)
	if err != nil {
		abortWithError(c, fmt.Errorf("%w: %w", printer.ErrPrint, err))
		return
	}
	if index >= len(labels) {
		abortWithError(c, fmt.Errorf("%w: page %d out of range (%d labels)", printer.ErrInvalidArgument, index, len(labels)))
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, labels[index].Image); err != nil {
		abortWithError(c, err)
		return
	}
	c.Data(200, "image/png", buf.Bytes())
}

// handleGetJobs returns the print history
func (s *Server) handleGetJobs(c *gin.Context) {
	c.JSON(200, gin.H{"jobs": s.manager.History().GetAll()})
}

// handleGetJob returns a specific print job
func (s *Server) handleGetJob(c *gin.Context) {
	entry := s.manager.History().Get(c.Param("id"))
	if entry == nil {
		c.JSON(404, gin.H{"error": "job not found", "code": "NOT_FOUND"})
		return
	}
	c.JSON(200, entry)
}

func (s *Server) handleGetKnown(c *gin.Context) {
	known := s.manager.Known()
	if known == nil {
		c.JSON(200, gin.H{"printers": []any{}})
		return
	}
	c.JSON(200, gin.H{"printers": known.All()})
}

// handleSetPrinterName sets an operator alias for a known printer
func (s *Server) handleSetPrinterName(c *gin.Context) {
	printerID := c.Param("id")

	var req struct {
		Name string `json:"name" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "name is required", "code": "INVALID_ARGUMENT"})
		return
	}

	known := s.manager.Known()
	if known == nil || !known.SetAlias(printerID, req.Name) {
		c.JSON(404, gin.H{"error": "printer not found", "code": "NOT_FOUND"})
		return
	}

	c.JSON(200, gin.H{"success": true})
}

// handleCommand handles command execution requests
func (s *Server) handleCommand(c *gin.Context) {
	var req struct {
		Command string `json:"command" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "command is required", "code": "INVALID_ARGUMENT"})
		return
	}

	result := s.executor.Execute(req.Command)

	if !result.Success {
		c.JSON(httpStatus(result.Code), gin.H{
			"success": false,
			"error":   result.Error,
			"code":    result.Code,
		})
		return
	}

	response := gin.H{"success": true}
	if result.Message != "" {
		response["message"] = result.Message
	}
	for k, v := range result.Data {
		response[k] = v
	}
	c.JSON(200, response)
}

// Run serves the API until ctx is cancelled
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	go func() {
		<-ctx.Done()
		s.hub.closeAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("http request")
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
