package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/kikiluvv/slidesync/internal/decode"
	"github.com/kikiluvv/slidesync/pkg/util"
)

// ProbeVideo runs ffprobe on path. The returned Meta holds what the
// container reports; Metadata fills in the fallbacks.
func (e *Executor) ProbeVideo(ctx context.Context, path string) (*VideoInfo, error) {
	if path == "" {
		return nil, fmt.Errorf("file path is required")
	}

	cmd := exec.CommandContext(ctx, e.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("ffprobe %s: %s", path, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	info, err := parseProbe(path, out)
	if err != nil {
		return nil, err
	}

	e.logger.Debug().
		Str("path", path).
		Float64("duration", info.Meta.Duration).
		Float64("fps", info.Meta.FPS).
		Int("width", info.Meta.Width).
		Int("height", info.Meta.Height).
		Msg("probed video")
	return info, nil
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	NbFrames     string `json:"nb_frames"`
	Duration     string `json:"duration"`
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []probeStream `json:"streams"`
}

func parseProbe(path string, data []byte) (*VideoInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	var video *probeStream
	info := &VideoInfo{Path: path}
	for i := range out.Streams {
		switch s := &out.Streams[i]; s.CodecType {
		case "video":
			if video == nil {
				video = s
			}
		case "audio":
			info.HasAudio = true
		}
	}
	if video == nil || video.Width <= 0 || video.Height <= 0 {
		return nil, fmt.Errorf("no video stream in %s", path)
	}

	info.Codec = video.CodecName
	info.FrameCount, _ = strconv.ParseInt(video.NbFrames, 10, 64)
	info.Meta = decode.Metadata{
		// the container duration wins; some muxers only fill the stream's
		Duration: firstPositive(seconds(out.Format.Duration), seconds(video.Duration)),
		// avg_frame_rate is the real rate for VFR sources, r_frame_rate the tick
		FPS:    firstPositive(util.ParseFrameRate(video.AvgFrameRate), util.ParseFrameRate(video.RFrameRate)),
		Width:  video.Width,
		Height: video.Height,
	}
	return info, nil
}

func seconds(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func firstPositive(vals ...float64) float64 {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

// Metadata returns Meta with the fallback duration and frame rate in place
// of missing or implausible values.
func (v *VideoInfo) Metadata() decode.Metadata {
	m := v.Meta
	if m.Duration <= 0 {
		m.Duration = FallbackDuration.Seconds()
	}
	if m.FPS <= 0 || m.FPS > MaxPlausibleFPS {
		m.FPS = FallbackFPS
	}
	return m
}

// Estimated reports whether Metadata had to substitute a fallback.
func (v *VideoInfo) Estimated() bool {
	return v.Meta.Duration <= 0 || v.Meta.FPS <= 0 || v.Meta.FPS > MaxPlausibleFPS
}
