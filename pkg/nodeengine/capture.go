package nodeengine

import (
	"fmt"
	"image"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/nodefleet/fleetview/pkg/stream"
)

func (e *Engine) captureFrame(img *ebiten.Image, suffix string, timestamp time.Time) {
	if e.FrameCaptureDir == "" {
		e.Notify(stream.LevelInfo, "Frame capture is disabled (no capture directory)")
		return
	}
	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	img.ReadPixels(rgba.Pix)

	go func() {
		path, err := writePNG(e.FrameCaptureDir, suffix, timestamp, rgba)
		if err != nil {
			log.Printf("[CAPTURE] %v", err)
			return
		}
		log.Printf("[CAPTURE] Captured frame: %s", path)
		e.Notify(stream.LevelInfo, "Saved "+filepath.Base(path))
	}()
}

// writePNG encodes img into dir under a timestamped name.
func writePNG(dir, suffix string, timestamp time.Time, img image.Image) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create capture directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("fleet-%s-%s.png", timestamp.Format("20060102-150405"), suffix))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create capture file: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("encode capture: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close capture file: %w", err)
	}
	return path, nil
}
