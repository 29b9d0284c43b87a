// Package encode assembles rendered frames into an MP4 via an external
// encoder process.
package encode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// ErrEncodingFailed reports an encoder process that did not produce a video.
var ErrEncodingFailed = errors.New("video encoding failed")

// Encoder turns an ordered frame sequence into video bytes. Injected so the
// pipeline can be tested without a real encoder binary.
type Encoder interface {
	Encode(ctx context.Context, frames []image.Image, fps int) ([]byte, error)
}

// FFmpeg pipes PNG frames into an ffmpeg process producing H.264 MP4.
type FFmpeg struct {
	Path    string
	Timeout time.Duration
	Log     zerolog.Logger
}

// NewFFmpeg uses the given binary path ("ffmpeg" when empty) and a
// per-job timeout so a stuck encoder cannot hang a worker indefinitely.
func NewFFmpeg(path string, timeout time.Duration, log zerolog.Logger) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &FFmpeg{Path: path, Timeout: timeout, Log: log}
}

func encoderArgs(fps int, output string) []string {
	return []string{
		"-y",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-r", strconv.Itoa(fps),
		"-i", "-",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-r", strconv.Itoa(fps),
		output,
	}
}

// Encode writes the frames in index order at the fixed frame rate and
// returns the finished MP4. Encoding is strictly sequential and assumes the
// caller already has every frame.
func (f *FFmpeg) Encode(ctx context.Context, frames []image.Image, fps int) ([]byte, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: no frames to encode", ErrEncodingFailed)
	}
	if fps <= 0 {
		return nil, fmt.Errorf("%w: non-positive frame rate %d", ErrEncodingFailed, fps)
	}

	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	tmp, err := os.CreateTemp("", "gpxhelper-*.mp4")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodingFailed, err)
	}
	tmp.Close()
	defer os.Remove(tmp.Name())

	cmd := exec.CommandContext(ctx, f.Path, encoderArgs(fps, tmp.Name())...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodingFailed, err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: starting %s: %v", ErrEncodingFailed, f.Path, err)
	}

	writeErr := func() error {
		defer stdin.Close()
		buf := new(bytes.Buffer)
		for i, frame := range frames {
			buf.Reset()
			if err := png.Encode(buf, frame); err != nil {
				return fmt.Errorf("encode frame %d: %w", i, err)
			}
			if _, err := stdin.Write(buf.Bytes()); err != nil {
				return fmt.Errorf("write frame %d: %w", i, err)
			}
		}
		return nil
	}()

	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %v: %s", ErrEncodingFailed, err, stderrTail(stderr.Bytes()))
	}
	if writeErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodingFailed, writeErr)
	}

	out, err := os.ReadFile(tmp.Name())
	if err != nil {
		return nil, fmt.Errorf("%w: reading output: %v", ErrEncodingFailed, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: encoder produced no output", ErrEncodingFailed)
	}
	f.Log.Debug().Int("frames", len(frames)).Int("bytes", len(out)).Msg("video encoded")
	return out, nil
}

// stderrTail keeps error messages readable: ffmpeg is chatty, the useful
// part is at the end.
func stderrTail(b []byte) string {
	const keep = 400
	if len(b) > keep {
		b = b[len(b)-keep:]
	}
	return string(bytes.TrimSpace(b))
}
