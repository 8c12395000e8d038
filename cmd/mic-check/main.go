// Command mic-check verifies that microphone capture works and that the
// input level clears the silence gates before a real session. It records
// for a few seconds, prints a level meter per chunk, and reports whether
// the recording would have been accepted.
//
// Usage:
//
//	go run ./cmd/mic-check/
//	go run ./cmd/mic-check/ -backend mock -duration 2s
//
// Flags:
//
//	-backend   Capture backend: portaudio or mock (default: portaudio)
//	-duration  How long to record (default: 3s)
//	-device    Input device name, empty for the system default
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/voiceform/go-voiceform/internal/log"
	"github.com/voiceform/go-voiceform/pkg/capture"
	"github.com/voiceform/go-voiceform/pkg/pcm"
)

// The level gates a recording must clear: below silenceGate it is
// rejected outright, below warnGate it is accepted with a warning.
const (
	silenceGate = 0.005
	warnGate    = 0.01
	meterWidth  = 40
)

var (
	backend  = flag.String("backend", "portaudio", "Capture backend: portaudio or mock")
	duration = flag.Duration("duration", 3*time.Second, "How long to record")
	device   = flag.String("device", "", "Input device name, empty for default")
)

func main() {
	_ = godotenv.Load()
	flag.Parse()
	log.InitFromEnv()

	cfg := capture.DefaultConfig()
	cfg.Backend = capture.Backend(*backend)
	cfg.Device = *device

	src, err := capture.NewSource(cfg, log.L())
	if err != nil {
		fmt.Printf("❌ open capture source: %v\n", err)
		os.Exit(1)
	}
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		fmt.Printf("❌ start capture: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("🎙️  recording %s from %q (%d Hz)... speak now\n",
		*duration, src.Name(), cfg.SampleRate)

	acc := capture.NewAccumulator(cfg.ChunkSize())
	deadline := time.After(*duration)

	var all []float32
	var chunks int

loop:
	for {
		select {
		case frame, ok := <-src.Frames():
			if !ok {
				break loop
			}
			acc.Ingest(frame)
		case chunk := <-acc.Chunks():
			chunks++
			all = append(all, chunk...)
			printMeter(chunks, pcm.MeanAbs(chunk))
		case <-deadline:
			break loop
		}
	}
	_ = src.Stop()

	acc.Flush()
	for {
		select {
		case chunk := <-acc.Chunks():
			all = append(all, chunk...)
			continue
		default:
		}
		break
	}

	if len(all) == 0 {
		fmt.Println("❌ no audio captured")
		os.Exit(1)
	}

	level := pcm.MeanAbs(all)
	captured := time.Duration(len(all)) * time.Second / time.Duration(cfg.SampleRate)
	fmt.Printf("\n📊 captured %.1fs, mean level %.4f\n", captured.Seconds(), level)

	switch {
	case level < silenceGate:
		fmt.Printf("❌ below the silence gate (%.3f) - recordings would be rejected\n", silenceGate)
		fmt.Println("   check the microphone is plugged in and not muted")
		os.Exit(1)
	case level < warnGate:
		fmt.Printf("⚠️  above the silence gate but quiet (< %.2f) - consider raising input gain\n", warnGate)
	default:
		fmt.Println("✅ microphone level looks good")
	}
}

func printMeter(chunk int, level float64) {
	filled := int(level / 0.05 * meterWidth)
	if filled > meterWidth {
		filled = meterWidth
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", meterWidth-filled)
	fmt.Printf("  chunk %2d  %s  %.4f\n", chunk, bar, level)
}
