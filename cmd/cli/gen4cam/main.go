// Command gen4cam is a small CLI front end over internal/camera: list
// connected devices, or open one and stream decoded events to an
// Event-Stream file for a fixed duration.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gen4cam/internal/camera"
	"gen4cam/internal/config"
	"gen4cam/internal/decoder"
	"gen4cam/internal/sensor"
)

var (
	listDevices = flag.Bool("list", false, "list connected devices and exit")
	outputPath  = flag.String("out", "", "Event-Stream output file (dvs encoding); empty disables recording")
	duration    = flag.Duration("duration", 0, "stop streaming after this long (0 runs until interrupted)")
)

func main() {
	flag.Parse()

	if *listDevices {
		runList()
		return
	}

	runStream()
}

func runList() {
	devices, err := camera.AvailableDevices()
	if err != nil {
		log.Fatalf("gen4cam: failed to enumerate devices: %v", err)
	}
	if len(devices) == 0 {
		fmt.Println("no devices found")
		return
	}
	for _, d := range devices {
		fmt.Printf("%s serial=%s speed=%s\n", d.Type, d.Serial, d.Speed)
	}
}

func runStream() {
	cfg := config.MustLoadCameraConfig()

	var sink func(decoder.DvsEvent) error
	var out *os.File
	if *outputPath != "" {
		var err error
		out, err = os.Create(*outputPath)
		if err != nil {
			log.Fatalf("gen4cam: failed to create output file: %v", err)
		}
		defer out.Close()
	}

	eventCount := 0
	handlers := camera.Handlers{
		OnEvent: func(ev decoder.DvsEvent) {
			eventCount++
			if sink != nil {
				if err := sink(ev); err != nil {
					log.Printf("gen4cam: event sink write failed: %v", err)
				}
			}
		},
		OnFatal: func(err error) {
			log.Printf("gen4cam: camera reported a fatal error: %v", err)
		},
	}

	cam, err := camera.Open(cfg, sensor.Parameters{}, handlers)
	if err != nil {
		log.Fatalf("gen4cam: failed to open camera: %v", err)
	}
	defer cam.Close()

	if out != nil {
		sink, err = cam.NewEventSink(out)
		if err != nil {
			log.Fatalf("gen4cam: failed to open event sink: %v", err)
		}
	}

	descriptor := cam.Descriptor()
	log.Printf("gen4cam: streaming from %s serial=%s", descriptor.Type, descriptor.Serial)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	if *duration > 0 {
		select {
		case <-time.After(*duration):
		case <-quit:
		}
	} else {
		<-quit
	}

	log.Printf("gen4cam: stopping, %d events delivered", eventCount)
}
