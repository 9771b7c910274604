package runner

import (
	"fmt"
	"strconv"
	"strings"

	"restreamd/internal/models"
)

// BuildArgs builds the encoder argument list for one job. The command is a
// pure function of the job's quality profile, orientation, input path and
// destination; nothing about it depends on runtime state.
func BuildArgs(job models.StreamJob, ingestURL string) []string {
	p := models.ProfileFor(job.Quality, job.Vertical)
	outputURL := strings.TrimRight(ingestURL, "/") + "/" + job.StreamKey
	scale := p.Scale()

	return []string{
		"-hide_banner",
		"-loglevel", "info",
		"-re",
		"-stream_loop", "-1", // loop the input until the process is terminated
		"-i", job.VideoPath,

		"-c:v", "libx264",
		"-preset", "veryfast",
		"-tune", "zerolatency",
		"-profile:v", "high",
		"-level", "4.1",
		"-pix_fmt", "yuv420p",

		"-b:v", p.VideoBitrate,
		"-maxrate", p.Maxrate,
		"-bufsize", p.Bufsize,
		"-minrate", halfRate(p.VideoBitrate),

		"-g", "60",
		"-keyint_min", "30",
		"-sc_threshold", "0",

		"-r", strconv.Itoa(p.FPS),

		"-c:a", "aac",
		"-b:a", p.AudioBitrate,
		"-ar", "44100",
		"-ac", "2",

		"-vf", fmt.Sprintf("scale=%s:force_original_aspect_ratio=decrease,pad=%s:(ow-iw)/2:(oh-ih)/2,fps=%d", scale, scale, p.FPS),

		"-f", "flv",

		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",

		outputURL,
	}
}

func halfRate(rate string) string {
	n, err := strconv.Atoi(strings.TrimSuffix(rate, "k"))
	if err != nil {
		return rate
	}
	return strconv.Itoa(n/2) + "k"
}
