// Package audio reads container metadata (duration and bitrate) from
// uploaded audio files.
package audio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/hajimehoshi/go-mp3"

	"github.com/moodtunes/backend/internal/mood"
)

// ErrUnknownLength is returned when the decoder cannot determine stream length.
var ErrUnknownLength = errors.New("audio: stream length unknown")

// Prober extracts mood.Metadata from a file on disk.
type Prober interface {
	Probe(ctx context.Context, path string) (mood.Metadata, error)
}

// NewProber prefers ffprobe when ffprobePath resolves to an executable and
// falls back to in-process MP3 decoding otherwise.
func NewProber(ffprobePath string) Prober {
	if ffprobePath != "" {
		if resolved, err := exec.LookPath(ffprobePath); err == nil {
			return &FFProbe{Path: resolved}
		}
	}
	return MP3Probe{}
}

// FFProbe shells out to ffprobe, which understands every container ffmpeg does.
type FFProbe struct {
	Path string
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
}

func (p *FFProbe) Probe(ctx context.Context, path string) (mood.Metadata, error) {
	// #nosec G204 -- binary path comes from configuration, file path from our own upload store
	cmd := exec.CommandContext(ctx, p.Path, "-v", "quiet", "-print_format", "json", "-show_format", path)
	out, err := cmd.Output()
	if err != nil {
		return mood.Metadata{}, fmt.Errorf("ffprobe failed: %w", err)
	}
	return parseFFprobe(out)
}

// parseFFprobe reads ffprobe's JSON. Missing fields count as zero.
func parseFFprobe(out []byte) (mood.Metadata, error) {
	var parsed ffprobeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return mood.Metadata{}, fmt.Errorf("failed to decode ffprobe output: %w", err)
	}

	var meta mood.Metadata
	if parsed.Format.Duration != "" {
		d, err := strconv.ParseFloat(parsed.Format.Duration, 64)
		if err != nil {
			return mood.Metadata{}, fmt.Errorf("invalid duration %q: %w", parsed.Format.Duration, err)
		}
		meta.Duration = d
	}
	if parsed.Format.BitRate != "" {
		br, err := strconv.ParseInt(parsed.Format.BitRate, 10, 64)
		if err != nil {
			return mood.Metadata{}, fmt.Errorf("invalid bit_rate %q: %w", parsed.Format.BitRate, err)
		}
		meta.BitRate = br
	}
	return meta, nil
}

// MP3Probe decodes MP3 frames in-process. Duration comes from the decoded
// PCM length and bitrate is the file's average over that duration.
type MP3Probe struct{}

// bytesPerSample is 16-bit stereo, which go-mp3 always emits.
const bytesPerSample = 4

func (MP3Probe) Probe(ctx context.Context, path string) (mood.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return mood.Metadata{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return mood.Metadata{}, fmt.Errorf("failed to open audio: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return mood.Metadata{}, fmt.Errorf("failed to stat audio: %w", err)
	}

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		return mood.Metadata{}, fmt.Errorf("audio decode failed: %w", err)
	}

	length := decoder.Length()
	if length <= 0 || decoder.SampleRate() <= 0 {
		return mood.Metadata{}, ErrUnknownLength
	}

	duration := float64(length) / float64(bytesPerSample*decoder.SampleRate())
	return mood.Metadata{
		Duration: duration,
		BitRate:  int64(float64(info.Size()*8) / duration),
	}, nil
}
