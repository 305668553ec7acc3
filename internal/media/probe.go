package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"vidpipe/internal/utils"
)

// ProbeResult is what ffprobe reports about a file
type ProbeResult struct {
	DurationSec float64
	BitRate     int64
	FormatName  string
	Video       *VideoStream
	Audio       *AudioStream
}

type VideoStream struct {
	Width     int
	Height    int
	CodecName string
	FrameRate string // raw "N/D" as reported
}

type AudioStream struct {
	CodecName  string
	Channels   int
	SampleRate int
}

// ErrNoVideoStream is returned when the source has no decodable video track.
var ErrNoVideoStream = errors.New("no video stream")

type ffprobeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		Channels     int    `json:"channels"`
		SampleRate   string `json:"sample_rate"`
	} `json:"streams"`
	Format struct {
		Duration   string `json:"duration"`
		BitRate    string `json:"bit_rate"`
		FormatName string `json:"format_name"`
	} `json:"format"`
}

// ParseProbeOutput decodes `ffprobe -print_format json -show_format -show_streams`.
// The first video and audio streams win.
func ParseProbeOutput(data []byte) (*ProbeResult, error) {
	var parsed ffprobeOutput
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	result := &ProbeResult{FormatName: parsed.Format.FormatName}
	if parsed.Format.Duration != "" {
		result.DurationSec, _ = strconv.ParseFloat(parsed.Format.Duration, 64)
	}
	if parsed.Format.BitRate != "" {
		result.BitRate, _ = strconv.ParseInt(parsed.Format.BitRate, 10, 64)
	}

	for _, s := range parsed.Streams {
		switch s.CodecType {
		case "video":
			if result.Video != nil {
				continue
			}
			rate := s.RFrameRate
			if rate == "" {
				rate = s.AvgFrameRate
			}
			result.Video = &VideoStream{
				Width:     s.Width,
				Height:    s.Height,
				CodecName: s.CodecName,
				FrameRate: rate,
			}
		case "audio":
			if result.Audio != nil {
				continue
			}
			sampleRate, _ := strconv.Atoi(s.SampleRate)
			result.Audio = &AudioStream{
				CodecName:  s.CodecName,
				Channels:   s.Channels,
				SampleRate: sampleRate,
			}
		}
	}
	return result, nil
}

// ParseFrameRate turns "N/D" into N/D rounded to two decimals. A zero
// denominator or a malformed value yields nil.
func ParseFrameRate(s string) *float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		return roundRate(v)
	}

	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return nil
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return nil
	}
	return roundRate(n / d)
}

func roundRate(v float64) *float64 {
	r := math.Round(v*100) / 100
	return &r
}

// FFprobe runs the ffprobe binary
type FFprobe struct {
	Path    string
	Timeout time.Duration // zero means no limit beyond ctx
}

func NewFFprobe(path string, timeout time.Duration) *FFprobe {
	if path == "" {
		path = "ffprobe"
	}
	return &FFprobe{Path: path, Timeout: timeout}
}

// Probe inspects a local file. Every failure, including a missing video
// stream, comes back as a *utils.ProbeError.
func (p *FFprobe) Probe(ctx context.Context, filePath string) (*ProbeResult, error) {
	var output []byte
	run := func(ctx context.Context) error {
		cmd := exec.CommandContext(ctx, p.Path,
			"-v", "quiet",
			"-print_format", "json",
			"-show_format",
			"-show_streams",
			filePath,
		)
		var err error
		output, err = cmd.Output()
		return err
	}

	var err error
	if p.Timeout > 0 {
		err = utils.WithTimeout(ctx, p.Timeout, run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		return nil, &utils.ProbeError{Err: fmt.Errorf("ffprobe: %w", err)}
	}

	result, err := ParseProbeOutput(output)
	if err != nil {
		return nil, &utils.ProbeError{Err: err}
	}
	if result.Video == nil || result.Video.Width <= 0 || result.Video.Height <= 0 {
		return nil, &utils.ProbeError{Err: ErrNoVideoStream}
	}
	return result, nil
}
