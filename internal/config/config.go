// internal/config/config.go
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// CameraConfig holds the knobs for opening and running an acquisition
// session: which device to pick, how big the transfer pool and FIFO are
// (all settable from the environment), and the timeouts governing the three
// acquisition goroutines (compiled-in defaults only; no environment variable
// sets them).
type CameraConfig struct {
	Serial            string
	Type              string
	BufferSize        int
	BufferCount       int
	FIFOCapacity      int
	DropThreshold     int
	FIFOPopTimeout    time.Duration
	USBEventTimeout   time.Duration
	ParameterTimeout  time.Duration
}

var (
	cameraConfig *CameraConfig
	configLoaded bool
)

// LoadCameraConfig loads configuration from a `.env` file in the project
// root, then overrides from the process environment, caching the result.
func LoadCameraConfig() (*CameraConfig, error) {
	if cameraConfig != nil && configLoaded {
		return cameraConfig, nil
	}

	cfg := &CameraConfig{
		BufferSize:       131072,
		BufferCount:      8,
		FIFOCapacity:     64,
		DropThreshold:    64,
		FIFOPopTimeout:   100 * time.Millisecond,
		USBEventTimeout:  1 * time.Second,
		ParameterTimeout: 100 * time.Millisecond,
	}

	projectRoot := findProjectRoot()
	envPath := filepath.Join(projectRoot, ".env")
	if data, err := os.ReadFile(envPath); err == nil {
		parseEnvFile(string(data), cfg)
	}

	if v := os.Getenv("GEN4CAM_SERIAL"); v != "" {
		cfg.Serial = v
	}
	if v := os.Getenv("GEN4CAM_TYPE"); v != "" {
		cfg.Type = v
	}
	if v := os.Getenv("GEN4CAM_BUFFER_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BufferSize = n
		}
	}
	if v := os.Getenv("GEN4CAM_BUFFER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BufferCount = n
		}
	}
	if v := os.Getenv("GEN4CAM_FIFO_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.FIFOCapacity = n
		}
	}
	if v := os.Getenv("GEN4CAM_DROP_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DropThreshold = n
		}
	}

	cameraConfig = cfg
	configLoaded = true
	return cfg, nil
}

func parseEnvFile(content string, cfg *CameraConfig) {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case "GEN4CAM_SERIAL":
			cfg.Serial = value
		case "GEN4CAM_TYPE":
			cfg.Type = value
		case "GEN4CAM_BUFFER_SIZE":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.BufferSize = n
			}
		case "GEN4CAM_BUFFER_COUNT":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.BufferCount = n
			}
		case "GEN4CAM_FIFO_CAPACITY":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.FIFOCapacity = n
			}
		case "GEN4CAM_DROP_THRESHOLD":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.DropThreshold = n
			}
		}
	}
}

func findProjectRoot() string {
	cwd, _ := os.Getwd()
	if _, err := os.Stat(filepath.Join(cwd, ".env")); err == nil {
		return cwd
	}
	for {
		if _, err := os.Stat(filepath.Join(cwd, "go.mod")); err == nil {
			return cwd
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			return cwd
		}
		cwd = parent
	}
}

// MustLoadCameraConfig loads the configuration and panics if it could not be
// read at all (it never panics on missing fields — every field here has a
// usable zero value or a compiled-in default).
func MustLoadCameraConfig() CameraConfig {
	cfg, err := LoadCameraConfig()
	if err != nil {
		panic("gen4cam: failed to load camera configuration: " + err.Error())
	}
	return *cfg
}
