package supervisor

import (
	"regexp"
	"strconv"
)

var (
	percentRe = regexp.MustCompile(`(\d+(?:\.\d+)?)%`)
	sizeRe    = regexp.MustCompile(`~?\s*(\d+(?:\.\d+)?)\s*(B|KiB|MiB|GiB|TiB)\s*(?:/|of)\s*~?\s*(\d+(?:\.\d+)?)\s*(B|KiB|MiB|GiB|TiB)`)
)

var unitBytes = map[string]float64{
	"B":   1,
	"KiB": 1 << 10,
	"MiB": 1 << 20,
	"GiB": 1 << 30,
	"TiB": 1 << 40,
}

// Progress is one progress event emitted by a running download.
type Progress struct {
	Percent    float64 `json:"percent"`
	Downloaded int64   `json:"downloaded"`
	Total      int64   `json:"total"`
}

// ParseState carries what the parser has seen so far for one process.
type ParseState struct {
	Percent float64
	Total   int64
}

// Parse scans one chunk of downloader output. The percentage and size
// patterns are matched independently: a percentage only updates the state,
// and a size match yields an event carrying the latest percentage seen.
func Parse(st ParseState, chunk string) (ParseState, *Progress) {
	if m := percentRe.FindStringSubmatch(chunk); m != nil {
		if p, err := strconv.ParseFloat(m[1], 64); err == nil {
			st.Percent = p
		}
	}
	m := sizeRe.FindStringSubmatch(chunk)
	if m == nil {
		return st, nil
	}
	downloaded, ok1 := toBytes(m[1], m[2])
	total, ok2 := toBytes(m[3], m[4])
	if !ok1 || !ok2 {
		return st, nil
	}
	st.Total = total
	return st, &Progress{Percent: st.Percent, Downloaded: downloaded, Total: total}
}

func toBytes(num, unit string) (int64, bool) {
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}
	mult, ok := unitBytes[unit]
	if !ok {
		return 0, false
	}
	return int64(v * mult), true
}
