//go:build linux

package cgroup

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ReadPressureAvg10 parses basePath/memory.pressure and returns the
// avg10 token from the "some" line. A missing file is treated as 0.0,
// not an error, matching the reference pressure monitor.
func ReadPressureAvg10(basePath string) float64 {
	f, err := os.Open(filepath.Join(basePath, "memory.pressure"))
	if err != nil {
		return 0.0
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	sc.Split(bufio.ScanWords)
	for sc.Scan() {
		tok := sc.Text()
		if v, ok := strings.CutPrefix(tok, "avg10="); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return 0.0
			}
			return f
		}
	}
	return 0.0
}
