package video

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Extractor reads capture metadata out of a video file. Implementations are
// injected so the resolver can be exercised without the real tool.
type Extractor interface {
	Extract(ctx context.Context, path string) (Metadata, error)
}

// Tag preference mirrors QuickTime behavior: the media-level atoms are more
// trustworthy than the container-level ones.
var (
	creationTags = []string{"MediaCreateDate", "CreateDate", "MediaModifyDate", "ModifyDate"}
	durationTags = []string{"MediaDuration", "Duration", "PlayDuration"}

	durationRe = regexp.MustCompile(`^(\d+):(\d+):(\d+(?:\.\d*)?)`)
)

// ExifTool extracts metadata by invoking the exiftool binary. The
// QuickTimeUTC option makes it report QuickTime dates on the UTC timeline.
type ExifTool struct {
	Path    string
	Timeout time.Duration
	Log     zerolog.Logger
}

// NewExifTool returns an extractor using the given binary path ("exiftool"
// when empty) and per-invocation timeout.
func NewExifTool(path string, timeout time.Duration, log zerolog.Logger) *ExifTool {
	if path == "" {
		path = "exiftool"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ExifTool{Path: path, Timeout: timeout, Log: log}
}

// Extract runs exiftool once and parses the tags it reports. A missing or
// failing tool is not an error here: it returns empty Metadata flagged as
// fallback, and the caller substitutes the file modification time.
func (e *ExifTool) Extract(ctx context.Context, path string) (Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	args := []string{"-api", "QuickTimeUTC=1"}
	for _, tag := range creationTags {
		args = append(args, "-"+tag)
	}
	for _, tag := range durationTags {
		args = append(args, "-"+tag)
	}
	args = append(args, path)

	cmd := exec.CommandContext(ctx, e.Path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		e.Log.Warn().Err(err).Str("stderr", strings.TrimSpace(stderr.String())).
			Msg("exiftool failed, capture metadata unavailable")
		return Metadata{Source: SourceFallback}, nil
	}

	info := parseExifOutput(stdout.String())
	meta := Metadata{Source: SourceExact}

	for _, tag := range creationTags {
		v, ok := info[tag]
		if !ok {
			continue
		}
		t, err := parseExifDatetime(v)
		if err != nil {
			e.Log.Warn().Str("tag", tag).Str("value", v).Err(err).Msg("unparseable exif datetime")
			continue
		}
		meta.CreationTime = &t
		break
	}

	for _, tag := range durationTags {
		v, ok := info[tag]
		if !ok {
			continue
		}
		d, err := parseExifDuration(v)
		if err != nil {
			e.Log.Warn().Str("tag", tag).Str("value", v).Err(err).Msg("unparseable exif duration")
			continue
		}
		secs := d.Seconds()
		meta.DurationSeconds = &secs
		break
	}

	if meta.CreationTime == nil {
		meta.Source = SourceFallback
	}
	return meta, nil
}

// parseExifOutput splits exiftool's human-readable lines, e.g.
// "Media Create Date               : 2025:11:02 17:02:23".
func parseExifOutput(out string) map[string]string {
	info := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name = strings.ReplaceAll(strings.TrimSpace(name), " ", "")
		value = strings.TrimSpace(value)
		if name != "" && value != "" {
			info[name] = value
		}
	}
	return info
}

// parseExifDatetime parses "2025:11:02 17:02:23", with or without an
// explicit offset. Offset-less values are UTC because of QuickTimeUTC=1.
func parseExifDatetime(s string) (time.Time, error) {
	if t, err := time.Parse("2006:01:02 15:04:05-07:00", s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006:01:02 15:04:05", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse exif datetime %q: %w", s, err)
	}
	return t.UTC(), nil
}

// parseExifDuration parses "0:04:34", "0:04:34.20" or "0:04:34 (approx)".
func parseExifDuration(s string) (time.Duration, error) {
	s, _, _ = strings.Cut(s, " ")
	m := durationRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("cannot parse duration %q", s)
	}
	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.ParseFloat(m[3], 64)
	total := float64(hours)*3600 + float64(minutes)*60 + seconds
	return time.Duration(total * float64(time.Second)), nil
}
