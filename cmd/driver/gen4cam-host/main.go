// Command gen4cam-host opens a camera and exposes a minimal HTTP status and
// control surface over it: read-only device/stats endpoints and a
// parameters push, so the facade in internal/camera has a runnable front
// door without a second RPC stack.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"gen4cam/internal/camera"
	"gen4cam/internal/config"
	"gen4cam/internal/controllog"
	"gen4cam/internal/sensor"
)

var port = flag.Int("port", 8088, "HTTP status/control server port")

// server wraps the open camera with the state the HTTP handlers need:
// a control log sink and a mutex over last-known fatal error.
type server struct {
	cam *camera.Camera
	log *controllog.Writer

	mu       sync.RWMutex
	fatalErr error
}

func (s *server) handleDevices(c *gin.Context) {
	devices, err := camera.AvailableDevices()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": devices})
}

func (s *server) handleStats(c *gin.Context) {
	snapshot := s.cam.Stats()
	c.JSON(http.StatusOK, gin.H{
		"state":              s.cam.State().String(),
		"buffers_processed":  snapshot.BuffersProcessed,
		"buffers_dropped":    snapshot.BuffersDropped,
		"events_delivered":   snapshot.EventsDelivered,
		"triggers_delivered": snapshot.TriggersDelivered,
	})
}

type parametersRequest struct {
	PR         int8 `json:"pr"`
	FO         int8 `json:"fo"`
	HPF        int8 `json:"hpf"`
	DiffOn     int8 `json:"diff_on"`
	Diff       int8 `json:"diff"`
	DiffOff    int8 `json:"diff_off"`
	Inv        int8 `json:"inv"`
	Refr       int8 `json:"refr"`
	Reqpuy     int8 `json:"reqpuy"`
	Reqpux     int8 `json:"reqpux"`
	Sendreqpdy int8 `json:"sendreqpdy"`
	Unknown1   int8 `json:"unknown_1"`
	Unknown2   int8 `json:"unknown_2"`
}

func (s *server) handleParameters(c *gin.Context) {
	var req parametersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	biases := sensor.Biases{
		PR: req.PR, FO: req.FO, HPF: req.HPF, DiffOn: req.DiffOn, Diff: req.Diff,
		DiffOff: req.DiffOff, Inv: req.Inv, Refr: req.Refr, Reqpuy: req.Reqpuy,
		Reqpux: req.Reqpux, Sendreqpdy: req.Sendreqpdy, Unknown1: req.Unknown1, Unknown2: req.Unknown2,
	}
	s.cam.UpdateParameters(biases)
	if s.log != nil {
		if err := s.log.Parameters(req); err != nil {
			log.Printf("control log write failed: %v", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

func (s *server) handleHealth(c *gin.Context) {
	s.mu.RLock()
	fatalErr := s.fatalErr
	s.mu.RUnlock()

	status := "healthy"
	if fatalErr != nil {
		status = "stopped"
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "state": s.cam.State().String()})
}

func (s *server) onFatal(err error) {
	s.mu.Lock()
	s.fatalErr = err
	s.mu.Unlock()
	log.Printf("gen4cam-host: camera reported a fatal error: %v", err)
	if s.log != nil {
		if logErr := s.log.Fatal(err); logErr != nil {
			log.Printf("control log write failed: %v", logErr)
		}
	}
}

func main() {
	flag.Parse()

	cfg := config.MustLoadCameraConfig()

	logWriter := controllog.New(os.Stdout)
	srv := &server{log: logWriter}

	cam, err := camera.Open(cfg, sensor.Parameters{}, camera.Handlers{OnFatal: srv.onFatal})
	if err != nil {
		log.Fatalf("gen4cam-host: failed to open camera: %v", err)
	}
	srv.cam = cam
	defer cam.Close()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api/v1")
	{
		api.GET("/devices", srv.handleDevices)
		api.GET("/stats", srv.handleStats)
		api.GET("/health", srv.handleHealth)
		api.POST("/parameters", srv.handleParameters)
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: router,
	}

	go func() {
		log.Printf("gen4cam-host: listening on :%d", *port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("gen4cam-host: server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("gen4cam-host: shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("gen4cam-host: server shutdown error: %v", err)
	}
}
