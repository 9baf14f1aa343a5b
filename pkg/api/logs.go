package api

import (
	"bufio"
	"bytes"
	"strings"
	"time"

	"github.com/cuemby/dbaasd/pkg/types"
)

// parseLogLines splits raw combined stdout/stderr capture into log
// entries, attempting to peel a leading RFC3339 timestamp off each
// line. The stream is always reported as "stdout": the capture file
// underlying runtime.Orchestrator.Logs interleaves both streams with
// no per-line tag to recover which is which.
func parseLogLines(raw []byte) []types.LogEntry {
	var entries []types.LogEntry
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		ts, message := splitTimestamp(line)
		entries = append(entries, types.LogEntry{
			Timestamp: ts,
			Stream:    "stdout",
			Message:   message,
		})
	}
	return entries
}

func splitTimestamp(line string) (time.Time, string) {
	fields := strings.SplitN(line, " ", 2)
	if len(fields) != 2 {
		return time.Time{}, line
	}
	ts, err := time.Parse(time.RFC3339Nano, fields[0])
	if err != nil {
		ts, err = time.Parse(time.RFC3339, fields[0])
	}
	if err != nil {
		return time.Time{}, line
	}
	return ts, fields[1]
}

// filterLogs applies since/until/level. An entry with a zero
// Timestamp (no parseable leading timestamp) always passes the
// since/until bounds, since there is nothing to compare.
func filterLogs(entries []types.LogEntry, q LogsQuery) []types.LogEntry {
	if q.Since.IsZero() && q.Until.IsZero() && q.Level == "" {
		return entries
	}
	out := entries[:0]
	for _, e := range entries {
		if !e.Timestamp.IsZero() {
			if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
				continue
			}
			if !q.Until.IsZero() && e.Timestamp.After(q.Until) {
				continue
			}
		}
		if q.Level != "" && !strings.Contains(strings.ToUpper(e.Message), strings.ToUpper(q.Level)) {
			continue
		}
		out = append(out, e)
	}
	return out
}
