package encode

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncoderArgs(t *testing.T) {
	args := encoderArgs(30, "/tmp/out.mp4")

	assert.Equal(t, []string{
		"-y",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-r", "30",
		"-i", "-",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-r", "30",
		"/tmp/out.mp4",
	}, args)
}

func TestNewFFmpegDefaults(t *testing.T) {
	f := NewFFmpeg("", 0, zerolog.Nop())

	assert.Equal(t, "ffmpeg", f.Path)
	assert.Equal(t, 10*time.Minute, f.Timeout)
}

func TestEncodeRejectsEmptyInput(t *testing.T) {
	f := NewFFmpeg("", time.Second, zerolog.Nop())

	_, err := f.Encode(context.Background(), nil, 30)
	assert.ErrorIs(t, err, ErrEncodingFailed)

	frame := image.NewRGBA(image.Rect(0, 0, 4, 4))
	_, err = f.Encode(context.Background(), []image.Image{frame}, 0)
	assert.ErrorIs(t, err, ErrEncodingFailed)
}

func TestEncodeMissingBinary(t *testing.T) {
	f := NewFFmpeg("definitely-not-an-encoder-binary", time.Second, zerolog.Nop())
	frame := image.NewRGBA(image.Rect(0, 0, 4, 4))

	_, err := f.Encode(context.Background(), []image.Image{frame}, 30)

	require.ErrorIs(t, err, ErrEncodingFailed)
}
