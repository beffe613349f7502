package supervisor

import (
	"strconv"

	"github.com/warpdl/vodkeep/internal/model"
)

// progressTemplate makes yt-dlp print "<percent> <downloaded> / <total>" on
// its own line, so both progress patterns match the same line.
const progressTemplate = "download:%(progress._percent_str)s %(progress._downloaded_bytes_str)s / " +
	"%(progress._total_bytes_str,progress._total_bytes_estimate_str)s"

// FormatArgs maps a quality selector to the downloader's format arguments.
// Source and unknown selectors add no filter.
func FormatArgs(q model.Quality) []string {
	if q == model.QualityAudioOnly {
		return []string{"-f", "bestaudio"}
	}
	if h, ok := q.MaxHeight(); ok {
		return []string{"-f", "best[height<=" + strconv.Itoa(h) + "]"}
	}
	return nil
}

// BuildArgs returns the full argument list for one download.
func BuildArgs(req Request) []string {
	args := []string{
		req.URL,
		"-o", req.OutputPath,
		"--no-part",
		"--no-playlist",
		"--newline",
		"--concurrent-fragments", "4",
		"--progress-template", progressTemplate,
	}
	return append(args, FormatArgs(req.Quality)...)
}
