package transfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/term"
)

type Options struct {
	Destination string
	// Size is the expected byte count, used only to size the progress bar.
	Size       int64
	NoProgress bool
	Logger     *zap.Logger
}

type Result struct {
	Path   string
	Bytes  int64
	SHA256 string
}

// WriteFile streams src into opts.Destination through a temporary ".part"
// file and renames it into place once the copy completed.
func WriteFile(ctx context.Context, src io.Reader, opts Options) (Result, error) {
	if src == nil {
		return Result{}, errors.New("source reader is required")
	}
	if opts.Destination == "" {
		return Result{}, errors.New("destination path is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	if err := os.MkdirAll(filepath.Dir(opts.Destination), 0o755); err != nil {
		return Result{}, fmt.Errorf("create destination directory: %w", err)
	}

	tempPath := opts.Destination + ".part"
	_ = os.Remove(tempPath)

	outFile, err := os.Create(tempPath)
	if err != nil {
		return Result{}, fmt.Errorf("create temp file: %w", err)
	}

	success := false
	defer func() {
		_ = outFile.Close()
		if !success {
			_ = os.Remove(tempPath)
		}
	}()

	hash := sha256.New()
	writer := io.MultiWriter(outFile, hash)

	var bar *progressbar.ProgressBar
	if shouldRenderProgress(opts.NoProgress, opts.Size) {
		bar = newBar(opts.Size, "writing")
		writer = io.MultiWriter(outFile, hash, bar)
	}

	written, err := io.Copy(writer, &contextReader{ctx: ctx, r: src})
	if err != nil {
		return Result{}, fmt.Errorf("write body: %w", err)
	}

	if bar != nil {
		_ = bar.Finish()
	}

	if err := outFile.Sync(); err != nil {
		return Result{}, fmt.Errorf("sync temp file: %w", err)
	}

	if err := outFile.Close(); err != nil {
		return Result{}, fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tempPath, opts.Destination); err != nil {
		return Result{}, fmt.Errorf("move temp file into destination: %w", err)
	}

	success = true
	result := Result{
		Path:   opts.Destination,
		Bytes:  written,
		SHA256: hex.EncodeToString(hash.Sum(nil)),
	}
	opts.Logger.Debug("file written",
		zap.String("path", result.Path),
		zap.String("size", humanize.IBytes(uint64(written))),
		zap.String("sha256", result.SHA256),
	)
	return result, nil
}

// NewProgressReader wraps r with an upload progress bar when stderr is a
// terminal. The returned finish func must be called once r is drained.
func NewProgressReader(r io.Reader, size int64, description string, noProgress bool) (io.Reader, func()) {
	if !shouldRenderProgress(noProgress, size) {
		return r, func() {}
	}

	bar := newBar(size, description)
	return io.TeeReader(r, bar), func() { _ = bar.Finish() }
}

func newBar(size int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(
		size,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(20),
		progressbar.OptionShowBytes(true),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionClearOnFinish(),
	)
}

func shouldRenderProgress(noProgress bool, size int64) bool {
	if noProgress {
		return false
	}
	if size <= 0 {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if c.ctx != nil {
		if err := c.ctx.Err(); err != nil {
			return 0, err
		}
	}
	return c.r.Read(p)
}
