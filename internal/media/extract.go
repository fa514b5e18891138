package media

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Extractor pulls sampled frames out of finite video files with
// ffmpeg. Sampling happens inside the decoder (select filter) so only
// every Nth frame ever crosses the pipe.
type Extractor struct {
	ffmpeg  string
	ffprobe string
	log     *zap.Logger
}

// NewExtractor creates an Extractor using ffmpeg/ffprobe from PATH.
func NewExtractor(log *zap.Logger) *Extractor {
	return &Extractor{ffmpeg: "ffmpeg", ffprobe: "ffprobe", log: log}
}

// Probe returns the video stream's frame rate and duration in seconds.
func (e *Extractor) Probe(ctx context.Context, path string) (frameRate float64, duration float64, err error) {
	cmd := exec.CommandContext(ctx, e.ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=r_frame_rate,duration",
		"-of", "csv=p=0",
		path)
	out, err := cmd.Output()
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	fields := strings.Split(strings.TrimSpace(string(out)), ",")
	if len(fields) < 1 {
		return 0, 0, fmt.Errorf("ffprobe %s: empty output", path)
	}
	frameRate, err = parseRate(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	if len(fields) > 1 {
		// Duration may be "N/A" for some containers.
		duration, _ = strconv.ParseFloat(fields[1], 64)
	}
	return frameRate, duration, nil
}

// Frames decodes the video and invokes fn for every sampled frame, in
// capture order, with source frame numbers interval, 2*interval, and so
// on. fn returning an error aborts the extraction.
func (e *Extractor) Frames(ctx context.Context, path string, interval int, fn func(frameNumber int, data []byte) error) error {
	if interval < 1 {
		interval = 1
	}
	cmd := exec.CommandContext(ctx, e.ffmpeg,
		"-i", path,
		"-vf", fmt.Sprintf("select=not(mod(n+1\\,%d))", interval),
		"-vsync", "vfr",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "2",
		"pipe:1")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg start: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 32*1024*1024)
	scanner.Split(splitJPEG)

	sampled := 0
	var fnErr error
	for scanner.Scan() {
		sampled++
		frame := make([]byte, len(scanner.Bytes()))
		copy(frame, scanner.Bytes())
		if fnErr = fn(sampled*interval, frame); fnErr != nil {
			break
		}
	}

	if fnErr != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fnErr
	}
	if err := scanner.Err(); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("ffmpeg read: %w", err)
	}
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg %s: %w (%s)", path, err, strings.TrimSpace(stderr.String()))
	}

	e.log.Debug("video extraction finished",
		zap.String("path", path),
		zap.Int("sampled_frames", sampled),
		zap.Int("interval", interval))
	return nil
}

var (
	jpegSOI = []byte{0xff, 0xd8}
	jpegEOI = []byte{0xff, 0xd9}
)

// splitJPEG tokenizes an MJPEG byte stream into complete JPEG images.
func splitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, jpegSOI)
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	end := bytes.Index(data[start+2:], jpegEOI)
	if end < 0 {
		if atEOF && len(data) > start {
			return 0, nil, fmt.Errorf("truncated jpeg frame")
		}
		return start, nil, nil
	}
	stop := start + 2 + end + 2
	return stop, data[start:stop], nil
}

// parseRate parses ffprobe's rational frame rate ("30/1", "30000/1001").
func parseRate(s string) (float64, error) {
	num, den, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return strconv.ParseFloat(s, 64)
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("frame rate %q: %w", s, err)
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0, fmt.Errorf("frame rate %q: bad denominator", s)
	}
	return n / d, nil
}
