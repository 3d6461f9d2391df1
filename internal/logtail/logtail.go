package logtail

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Read returns at most maxLines from the end of the file at path. A
// non-positive maxLines returns every line. A missing file yields no lines.
func Read(path string, maxLines int) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if maxLines <= 0 {
		var lines []string
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read log: %w", err)
		}
		return lines, nil
	}

	ring := make([]string, maxLines)
	count := 0
	idx := 0
	for scanner.Scan() {
		ring[idx] = scanner.Text()
		idx = (idx + 1) % maxLines
		if count < maxLines {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	lines := make([]string, count)
	if count == maxLines {
		for i := 0; i < count; i++ {
			lines[i] = ring[(idx+i)%maxLines]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, nil
}

// Entry is one structured log line as written by the JSON file sink.
type Entry struct {
	Time      time.Time
	Level     string
	Component string
	Message   string
	Fields    map[string]any
	// Raw is set when the line was not JSON; it is shown unchanged.
	Raw string
}

var reservedKeys = map[string]bool{
	"time": true, "level": true, "component": true, "msg": true, "caller": true, "stacktrace": true,
}

// Parse decodes a JSON log line. Lines that are not JSON objects come back
// with only Raw set.
func Parse(line string) Entry {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return Entry{Raw: line}
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return Entry{Raw: line}
	}

	e := Entry{Fields: map[string]any{}}
	if s, ok := obj["time"].(string); ok {
		if t, err := time.Parse("2006-01-02T15:04:05.000Z0700", s); err == nil {
			e.Time = t
		} else if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			e.Time = t
		}
	}
	e.Level, _ = obj["level"].(string)
	e.Component, _ = obj["component"].(string)
	e.Message, _ = obj["msg"].(string)
	for k, v := range obj {
		if !reservedKeys[k] {
			e.Fields[k] = v
		}
	}
	return e
}

// String renders the entry as
// "2006-01-02 15:04:05 LEVEL [component] – message key=value ...".
func (e Entry) String() string {
	if e.Raw != "" || e.Message == "" && e.Level == "" {
		return e.Raw
	}
	parts := make([]string, 0, 4)
	if !e.Time.IsZero() {
		parts = append(parts, e.Time.In(time.Local).Format("2006-01-02 15:04:05"))
	}
	level := strings.ToUpper(strings.TrimSpace(e.Level))
	if level == "" {
		level = "INFO"
	}
	parts = append(parts, level)
	if c := strings.TrimSpace(e.Component); c != "" {
		parts = append(parts, "["+c+"]")
	}

	var b strings.Builder
	b.WriteString(strings.Join(parts, " "))
	if msg := strings.TrimSpace(e.Message); msg != "" {
		b.WriteString(" – ")
		b.WriteString(msg)
	}

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Fields[k])
	}
	return b.String()
}

// Format parses and renders each line.
func Format(lines []string) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = Parse(line).String()
	}
	return out
}
