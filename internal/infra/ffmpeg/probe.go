package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// Metadata is what the sampler needs to know about the first video stream.
type Metadata struct {
	Width      int
	Height     int
	FPS        int
	FrameCount int
	Duration   float64
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  ffprobeFormat   `json:"format"`
}

type ffprobeStream struct {
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	NbFrames     string `json:"nb_frames"`
	NbReadFrames string `json:"nb_read_frames"`
	Duration     string `json:"duration"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

func (d *Decoder) probe(ctx context.Context, path string) (*Metadata, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,avg_frame_rate,nb_frames,nb_read_frames,duration:format=duration",
		"-of", "json",
	}
	if d.exactFrameCount {
		args = append(args, "-count_frames")
	}
	args = append(args, path)

	cmd := exec.CommandContext(ctx, d.ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w", err)
	}
	return parseProbeOutput(output)
}

func parseProbeOutput(output []byte) (*Metadata, error) {
	var ff ffprobeOutput
	if err := json.Unmarshal(output, &ff); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(ff.Streams) == 0 {
		return nil, fmt.Errorf("no video stream")
	}

	s := ff.Streams[0]
	rate := parseFrameRate(s.RFrameRate)
	if rate <= 0 {
		rate = parseFrameRate(s.AvgFrameRate)
	}

	duration := parseFloat(s.Duration)
	if duration <= 0 {
		duration = parseFloat(ff.Format.Duration)
	}

	count := parseInt(s.NbReadFrames)
	if count <= 0 {
		count = parseInt(s.NbFrames)
	}
	if count <= 0 && rate > 0 {
		count = int(math.Round(duration * rate))
	}

	return &Metadata{
		Width:  s.Width,
		Height: s.Height,
		// Truncated: a 29.97 fps source samples on a 29-frame grid.
		FPS:        int(rate),
		FrameCount: count,
		Duration:   duration,
	}, nil
}

func parseFrameRate(s string) float64 {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return parseFloat(s)
	}
	num, _ := strconv.ParseFloat(parts[0], 64)
	den, _ := strconv.ParseFloat(parts[1], 64)
	if den == 0 {
		return 0
	}
	return num / den
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

func parseInt(s string) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return v
}
