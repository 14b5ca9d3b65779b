package device

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"sync"
	"time"
)

// MJPEGOpener connects to network cameras that serve HTTP multipart MJPEG
// (Content-Type multipart/x-mixed-replace).
type MJPEGOpener struct {
	// Client overrides the HTTP client; nil uses a client with a response
	// header timeout so a dead camera fails the open instead of hanging
	Client *http.Client
}

// Open issues the GET request and validates the multipart stream headers.
func (o *MJPEGOpener) Open(source string) (Handle, error) {
	client := o.Client
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: 10 * time.Second,
			},
		}
	}

	resp, err := client.Get(source)
	if err != nil {
		return nil, &OpenError{Source: source, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &OpenError{Source: source, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		resp.Body.Close()
		return nil, &OpenError{Source: source, Err: fmt.Errorf("parse content type: %w", err)}
	}
	if mediaType != "multipart/x-mixed-replace" || params["boundary"] == "" {
		resp.Body.Close()
		return nil, &OpenError{Source: source, Err: fmt.Errorf("not an MJPEG stream: %s", mediaType)}
	}

	return &mjpegHandle{
		source: source,
		body:   resp.Body,
		reader: multipart.NewReader(resp.Body, params["boundary"]),
	}, nil
}

type mjpegHandle struct {
	source  string
	body    io.ReadCloser
	reader  *multipart.Reader
	release sync.Once
}

// Read decodes the next multipart body part as a JPEG frame. Release unblocks
// a pending Read by closing the response body.
func (h *mjpegHandle) Read() (image.Image, error) {
	part, err := h.reader.NextPart()
	if err != nil {
		return nil, &ReadError{Source: h.source, Err: err}
	}

	data, err := io.ReadAll(part)
	if err != nil {
		return nil, &ReadError{Source: h.source, Err: err}
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &ReadError{Source: h.source, Err: err}
	}

	return img, nil
}

// Release closes the HTTP stream. Safe to call more than once.
func (h *mjpegHandle) Release() {
	h.release.Do(func() {
		h.body.Close()
	})
}
