// Package convert drives one HTML-to-image request from validation to a
// verified file on disk.
package convert

import (
	"context"
	"fmt"
	"os"

	"html2image/internal/domain"
	"html2image/internal/infra/logging"
	"html2image/internal/infra/pathlock"
	"html2image/internal/paths"
)

const (
	missingFieldsMessage   = "Missing required fields: html, destPath, filename"
	invalidFilenameMessage = "Invalid filename. Use alphanumeric characters, spaces, _, -, and .png/.jpg/.jpeg extension"
	dirMode                = 0o755
)

// Renderer writes the image for html to dst.
type Renderer interface {
	Render(ctx context.Context, html, dst string) error
}

// Service converts requests into image files below Root.
type Service struct {
	root     string
	renderer Renderer
	locker   pathlock.Locker
}

// NewService creates a Service writing below root, which must be absolute.
func NewService(root string, renderer Renderer, locker pathlock.Locker) *Service {
	return &Service{root: root, renderer: renderer, locker: locker}
}

// Root is the directory all outputs are confined to.
func (s *Service) Root() string { return s.root }

type requestIDKey struct{}

// WithRequestID attaches id to ctx for log correlation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Convert validates req, renders it and checks that the file exists.
// Failures are returned as *domain.Error.
func (s *Service) Convert(ctx context.Context, req domain.ConversionRequest) (domain.ConversionResult, error) {
	rid := requestID(ctx)

	// Validated
	if req.HTML == "" || req.DestPath == "" || req.Filename == "" {
		logging.Warn("Missing required fields",
			"request_id", rid,
			"html", req.HTML != "",
			"destPath", req.DestPath != "",
			"filename", req.Filename != "",
		)
		return domain.ConversionResult{}, domain.NewError(domain.KindMissingFields, missingFieldsMessage, nil)
	}
	target, err := paths.Resolve(s.root, req.DestPath, req.Filename)
	if err != nil {
		logging.Warn("Invalid filename", "request_id", rid, "filename", req.Filename)
		return domain.ConversionResult{}, domain.NewError(domain.KindInvalidFilename, invalidFilenameMessage, nil)
	}
	if !paths.Within(s.root, target.File) {
		logging.Error("Destination escapes output root", "request_id", rid, "path", target.File)
		return domain.ConversionResult{}, domain.ConversionError(fmt.Errorf("destination %q is outside %q", target.File, s.root))
	}
	logging.Debug("Request validated", "request_id", rid, "dest", target.Rel, "filename", req.Filename)

	// DirectoryEnsured
	if err := os.MkdirAll(target.Dir, dirMode); err != nil {
		logging.Error("Failed to create output directory", "request_id", rid, "dir", target.Dir, "error", err)
		return domain.ConversionResult{}, domain.ConversionError(fmt.Errorf("create directory: %w", err))
	}
	logging.Debug("Output directory ready", "request_id", rid, "dir", target.Dir)

	// Rendered
	unlock, err := s.locker.Lock(ctx, target.File)
	if err != nil {
		logging.Error("Failed to lock destination", "request_id", rid, "path", target.File, "error", err)
		return domain.ConversionResult{}, domain.ConversionError(fmt.Errorf("lock destination: %w", err))
	}
	defer unlock()

	if err := s.renderer.Render(ctx, req.HTML, target.File); err != nil {
		logging.Error("Render failed", "request_id", rid, "path", target.File, "error", err)
		return domain.ConversionResult{}, domain.ConversionError(err)
	}
	logging.Debug("Image rendered", "request_id", rid, "path", target.File)

	// Verified
	info, err := os.Stat(target.File)
	if err != nil || info.IsDir() {
		logging.Error("Image missing after render", "request_id", rid, "path", target.File, "error", err)
		return domain.ConversionResult{}, domain.ConversionError(domain.ErrFileNotPersisted)
	}

	logging.Info("Image saved", "request_id", rid, "path", target.File, "bytes", info.Size())
	return domain.ConversionResult{Message: domain.SuccessMessage, Path: target.File}, nil
}
