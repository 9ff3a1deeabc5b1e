package service

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"
)

// TrafficStats summarizes edge traffic for a tenant over a window.
type TrafficStats struct {
	PageViews      int64
	UniqueVisitors int64
	BandwidthMB    float64
}

// TrafficReader derives traffic stats for a tenant.
type TrafficReader interface {
	// TrailingHour reports traffic in the hour ending at now.
	TrailingHour(ctx context.Context, rootPath string, now time.Time) (TrafficStats, error)
}

// accessLogLine matches the combined log format:
//
//	remote - user [time] "request" status bytes "referer" "agent"
var accessLogLine = regexp.MustCompile(
	`^(\S+) \S+ \S+ \[([^\]]+)\] "([A-Z]+) (\S+)[^"]*" (\d{3}) (\d+|-)`)

const accessLogTimeLayout = "02/Jan/2006:15:04:05 -0700"

// AccessLogReader parses the tenant's edge access log in place. The log
// rotates daily, so scanning one file covers any trailing-hour window.
type AccessLogReader struct {
	// FileName under the tenant's logs dir; defaults to access.log.
	FileName string
}

func NewAccessLogReader() *AccessLogReader {
	return &AccessLogReader{FileName: "access.log"}
}

func (r *AccessLogReader) TrailingHour(ctx context.Context, rootPath string, now time.Time) (TrafficStats, error) {
	path := filepath.Join(rootPath, "logs", r.FileName)
	f, err := os.Open(path)
	if err != nil {
		return TrafficStats{}, fmt.Errorf("open access log: %w", err)
	}
	defer f.Close() // nolint:errcheck

	since := now.Add(-time.Hour)
	visitors := map[string]struct{}{}
	var stats TrafficStats
	var bytes int64

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return TrafficStats{}, err
		}

		m := accessLogLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		ts, err := time.Parse(accessLogTimeLayout, m[2])
		if err != nil {
			continue
		}
		if ts.Before(since) || ts.After(now) {
			continue
		}

		if size := m[6]; size != "-" {
			if n, err := strconv.ParseInt(size, 10, 64); err == nil {
				bytes += n
			}
		}

		// Page views count successful HTML-ish GETs; assets and errors
		// still count toward bandwidth above.
		status, _ := strconv.Atoi(m[5])
		if m[3] == "GET" && status < 400 && isPagePath(m[4]) {
			stats.PageViews++
			visitors[m[1]] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return TrafficStats{}, fmt.Errorf("scan access log: %w", err)
	}

	stats.UniqueVisitors = int64(len(visitors))
	stats.BandwidthMB = float64(bytes) / (1 << 20)
	return stats, nil
}

var assetExtensions = map[string]bool{
	".css": true, ".js": true, ".png": true, ".jpg": true, ".jpeg": true,
	".gif": true, ".svg": true, ".ico": true, ".woff": true, ".woff2": true,
	".ttf": true, ".map": true, ".webp": true,
}

func isPagePath(path string) bool {
	return !assetExtensions[filepath.Ext(path)]
}

var _ TrafficReader = (*AccessLogReader)(nil)
