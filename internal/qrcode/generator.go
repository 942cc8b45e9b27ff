// Package qrcode renders registration credentials into PNG images and stores them.
package qrcode

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	qr "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/ce-seminars/backend/pkg/storage"
)

// Uploader is the subset of the S3 client the generator needs.
type Uploader interface {
	Upload(ctx context.Context, bucket, key, contentType string, body io.Reader, contentLength int64) (string, error)
	QRBucket() string
}

// Generator turns credential content into a stored PNG and returns its location.
type Generator struct {
	uploader  Uploader
	outputDir string
	size      int
	logger    *zap.Logger
}

// NewGenerator creates a generator. When uploader is nil images are written under outputDir.
func NewGenerator(uploader Uploader, outputDir string, size int, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if outputDir == "" {
		outputDir = os.TempDir()
	}
	if size <= 0 {
		size = 300
	}
	return &Generator{uploader: uploader, outputDir: outputDir, size: size, logger: logger}
}

// Render encodes content as a PNG QR code.
func (g *Generator) Render(content string) ([]byte, error) {
	png, err := qr.Encode(content, qr.Medium, g.size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}

// Generate renders content and stores the image for a registration, returning its URL or file path.
func (g *Generator) Generate(ctx context.Context, seminarID, registrationID uuid.UUID, content string) (string, error) {
	png, err := g.Render(content)
	if err != nil {
		return "", err
	}
	if g.uploader != nil {
		key := storage.QRKey(seminarID.String(), registrationID.String())
		url, err := g.uploader.Upload(ctx, g.uploader.QRBucket(), key, "image/png", bytes.NewReader(png), int64(len(png)))
		if err != nil {
			return "", fmt.Errorf("upload qr: %w", err)
		}
		g.logger.Debug("qr image uploaded", zap.String("registration_id", registrationID.String()), zap.String("key", key))
		return url, nil
	}

	dir := filepath.Join(g.outputDir, "qr", seminarID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create qr dir: %w", err)
	}
	p := filepath.Join(dir, registrationID.String()+".png")
	if err := os.WriteFile(p, png, 0o644); err != nil {
		return "", fmt.Errorf("write qr: %w", err)
	}
	return p, nil
}
