package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/bryanchriswhite/CamStreamer/internal/logger"
)

const defaultReadTimeout = 5 * time.Second

// FFmpegOpener opens local V4L2 devices through an ffmpeg MJPEG pipe.
// A numeric source selects /dev/video<n>; anything else is used as a device
// path verbatim.
type FFmpegOpener struct {
	// Width and Height request a capture size; zero captures at native size
	Width  int
	Height int

	// FPS requests a capture rate from the driver; zero leaves it to ffmpeg
	FPS int

	// ReadTimeout bounds a single Read call; zero means 5s
	ReadTimeout time.Duration
}

// Open starts the ffmpeg subprocess and begins splitting JPEG frames off its
// stdout.
func (o *FFmpegOpener) Open(source string) (Handle, error) {
	path := source
	if idx, err := strconv.Atoi(source); err == nil {
		path = fmt.Sprintf("/dev/video%d", idx)
	}

	args := []string{"-f", "v4l2"}
	if o.Width > 0 && o.Height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", o.Width, o.Height))
	}
	if o.FPS > 0 {
		args = append(args, "-r", strconv.Itoa(o.FPS))
	}
	args = append(args,
		"-i", path,
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", "3",
		"-",
	)

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, &OpenError{Source: source, Err: err}
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, &OpenError{Source: source, Err: err}
	}

	timeout := o.ReadTimeout
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}

	h := &ffmpegHandle{
		source:  source,
		cmd:     cmd,
		ctx:     ctx,
		cancel:  cancel,
		frames:  make(chan []byte, 2),
		errs:    make(chan error, 1),
		timeout: timeout,
	}

	go h.splitFrames(stdout)

	logger.WithComponent("ffmpeg").Debug().
		Str("source", source).
		Str("path", path).
		Msg("ffmpeg pipe started")

	return h, nil
}

type ffmpegHandle struct {
	source  string
	cmd     *exec.Cmd
	ctx     context.Context
	cancel  context.CancelFunc
	frames  chan []byte
	errs    chan error
	timeout time.Duration
	release sync.Once
}

// Read returns the next decoded frame from the pipe.
func (h *ffmpegHandle) Read() (image.Image, error) {
	timer := time.NewTimer(h.timeout)
	defer timer.Stop()

	select {
	case data, ok := <-h.frames:
		if !ok {
			return nil, &ReadError{Source: h.source, Err: errors.New("stream ended")}
		}
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, &ReadError{Source: h.source, Err: err}
		}
		return img, nil
	case err := <-h.errs:
		return nil, &ReadError{Source: h.source, Err: err}
	case <-h.ctx.Done():
		return nil, &ReadError{Source: h.source, Err: h.ctx.Err()}
	case <-timer.C:
		return nil, &ReadError{Source: h.source, Err: errors.New("frame timeout")}
	}
}

// Release stops the subprocess. Safe to call more than once.
func (h *ffmpegHandle) Release() {
	h.release.Do(func() {
		h.cancel()
	})
}

// splitFrames scans the MJPEG byte stream for SOI/EOI markers and emits
// complete JPEG frames. Runs until the pipe closes or the handle is released.
func (h *ffmpegHandle) splitFrames(stdout interface{ Read([]byte) (int, error) }) {
	defer func() {
		close(h.frames)
		_ = h.cmd.Wait() // expected to error when cancelled
	}()

	buffer := make([]byte, 256*1024)
	var frameBuffer bytes.Buffer

	for {
		if h.ctx.Err() != nil {
			return
		}

		n, err := stdout.Read(buffer)
		if err != nil {
			if h.ctx.Err() == nil {
				select {
				case h.errs <- err:
				default:
				}
			}
			return
		}

		frameBuffer.Write(buffer[:n])

		frames, rest := extractJPEGFrames(frameBuffer.Bytes())
		for _, frame := range frames {
			select {
			case h.frames <- frame:
			case <-h.ctx.Done():
				return
			default:
				// reader is behind, drop this frame
			}
		}

		frameBuffer.Reset()
		frameBuffer.Write(rest)
	}
}

// extractJPEGFrames scans data for complete SOI..EOI spans. It returns the
// complete frames found (copied) and the unconsumed tail, which starts at a
// trailing partial frame if one is present.
func extractJPEGFrames(data []byte) (frames [][]byte, rest []byte) {
	for {
		startIdx := bytes.Index(data, []byte{0xFF, 0xD8})
		if startIdx == -1 {
			return frames, nil
		}

		endIdx := bytes.Index(data[startIdx+2:], []byte{0xFF, 0xD9})
		if endIdx == -1 {
			return frames, data[startIdx:]
		}

		endIdx += startIdx + 2 + 2
		frame := make([]byte, endIdx-startIdx)
		copy(frame, data[startIdx:endIdx])
		frames = append(frames, frame)

		data = data[endIdx:]
	}
}
