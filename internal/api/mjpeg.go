package api

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"net/http"
	"strconv"
	"time"

	"github.com/bryanchriswhite/CamStreamer/internal/device"
	"github.com/bryanchriswhite/CamStreamer/internal/logger"
	"github.com/bryanchriswhite/CamStreamer/internal/notify"
	"github.com/gorilla/mux"
)

const jpegQuality = 90

// handleStream serves one device's frames as a Motion JPEG stream, which any
// browser can render directly. Frames are pushed from the device's notifier;
// a slow client skips frames instead of lagging behind.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	loop := s.registry.Device(name)
	if loop == nil {
		http.Error(w, "unknown device", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("Connection", "close")

	log := logger.WithDevice("mjpeg", name)
	log.Info().Msg("Stream client connected")
	defer log.Info().Msg("Stream client disconnected")

	frames := make(chan device.Frame, 2)
	unsub := loop.Notifier().Subscribe(notify.EventFrameReady, func(p notify.Payload) {
		select {
		case frames <- p.Frame:
		default:
			// client is slow, skip this frame
		}
	})
	defer unsub()

	// show the current frame (or the placeholder) right away
	if frame, ok := loop.Read(time.Second); ok {
		if err := writeJPEGPart(w, frame); err != nil {
			return
		}
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-frames:
			if err := writeJPEGPart(w, frame); err != nil {
				return
			}
		}
	}
}

// handleSnapshot returns a single JPEG frame, or the placeholder while the
// device is unavailable.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	loop := s.registry.Device(mux.Vars(r)["name"])
	if loop == nil {
		http.Error(w, "unknown device", http.StatusNotFound)
		return
	}

	frame, ok := loop.Read(2 * time.Second)
	if !ok || frame.Image == nil {
		http.Error(w, "no frame available", http.StatusServiceUnavailable)
		return
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, frame.Image, &jpeg.Options{Quality: jpegQuality}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Write(buf.Bytes())
}

// writeJPEGPart encodes one frame and writes it as a multipart section.
func writeJPEGPart(w http.ResponseWriter, frame device.Frame) error {
	if frame.Image == nil {
		return nil
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, frame.Image, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return fmt.Errorf("failed to encode JPEG: %w", err)
	}

	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", buf.Len()); err != nil {
		return err
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
		return err
	}

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
