// Package localmedia shells out to ffmpeg for the media conversions the
// ingestion pipeline needs: video to speech-ready audio, and periodic
// frame sampling for the OCR fallback.
package localmedia

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/incuisenix/backend/internal/pkg/ctxutil"
	"github.com/incuisenix/backend/internal/pkg/envutil"
	"github.com/incuisenix/backend/internal/pkg/logger"
)

type Tools interface {
	AssertReady(ctx context.Context) error
	// ExtractAudio writes mono 16kHz FLAC suitable for long-running
	// speech recognition. input may be a local path or a URL ffmpeg
	// can read.
	ExtractAudio(ctx context.Context, input string, outPath string) error
	// ExtractFrames samples one frame every intervalSeconds into
	// outDir and returns the frame paths with their timestamps.
	ExtractFrames(ctx context.Context, input string, outDir string, intervalSeconds float64) ([]Frame, error)
}

type Frame struct {
	Path          string
	OffsetSeconds float64
}

type tools struct {
	log            *logger.Logger
	ffmpegPath     string
	defaultTimeout time.Duration
}

func New(log *logger.Logger) Tools {
	return &tools{
		log:            log.With("service", "LocalMedia"),
		ffmpegPath:     envutil.String("FFMPEG_PATH", "ffmpeg"),
		defaultTimeout: envutil.DurationSeconds("FFMPEG_TIMEOUT_SECONDS", 1800),
	}
}

func (m *tools) AssertReady(ctx context.Context) error {
	if _, err := exec.LookPath(m.ffmpegPath); err != nil {
		return fmt.Errorf("ffmpeg not found at %q: %w", m.ffmpegPath, err)
	}
	return nil
}

func (m *tools) ExtractAudio(ctx context.Context, input string, outPath string) error {
	ctx = ctxutil.Default(ctx)
	if err := m.AssertReady(ctx); err != nil {
		return err
	}
	if input == "" {
		return fmt.Errorf("input required")
	}
	if outPath == "" {
		return fmt.Errorf("outPath required")
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	args := []string{
		"-y",
		"-i", input,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-f", "flac",
		outPath,
	}

	cmd := exec.CommandContext(ctx, m.ffmpegPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg extract audio failed: %w; out=%s", err, string(out))
	}
	if _, err := os.Stat(outPath); err != nil {
		return fmt.Errorf("audio output missing at %s", outPath)
	}
	return nil
}

func (m *tools) ExtractFrames(ctx context.Context, input string, outDir string, intervalSeconds float64) ([]Frame, error) {
	ctx = ctxutil.Default(ctx)
	if err := m.AssertReady(ctx); err != nil {
		return nil, err
	}
	if input == "" {
		return nil, fmt.Errorf("input required")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir outDir: %w", err)
	}
	if intervalSeconds <= 0 {
		intervalSeconds = 10.0
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	outPattern := filepath.Join(outDir, "frame_%06d.jpg")
	args := []string{
		"-y",
		"-i", input,
		"-vf", fmt.Sprintf("fps=%0.6f", 1.0/intervalSeconds),
		"-q:v", "3",
		outPattern,
	}

	cmd := exec.CommandContext(ctx, m.ffmpegPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg frame sampling failed: %w; out=%s", err, string(out))
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, err
	}
	names := []string{}
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".jpg" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, fmt.Errorf("no frames produced by ffmpeg; out=%s", string(out))
	}

	frames := make([]Frame, 0, len(names))
	for _, name := range names {
		// frame_000001.jpg is the frame at t=0, frame_000002.jpg at
		// t=interval, and so on.
		var n int
		if _, err := fmt.Sscanf(name, "frame_%d.jpg", &n); err != nil || n < 1 {
			continue
		}
		frames = append(frames, Frame{
			Path:          filepath.Join(outDir, name),
			OffsetSeconds: float64(n-1) * intervalSeconds,
		})
	}
	return frames, nil
}
