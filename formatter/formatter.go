package formatter

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const sourceKey = "source"

var levelDesc = [...]string{"PANC", "FATL", "ERRO", "WARN", "INFO", "DEBG", "TRAC"}

// TextFormatter writes one line per entry:
//
//	2006-01-02T15:04:05Z07:00 WARN server/server.go:120: route removal failed iface=wg0 peer=abcdefgh
//
// Fields are sorted by key and values containing blanks or quotes are quoted.
type TextFormatter struct {
	// DisableTimestamp drops the leading time, for outputs that stamp lines themselves
	DisableTimestamp bool
	TimestampFormat  string
}

// NewTextFormatter creates a TextFormatter with RFC 3339 timestamps
func NewTextFormatter() *TextFormatter {
	return &TextFormatter{TimestampFormat: time.RFC3339}
}

// Format renders a single log entry
func (f *TextFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer

	if !f.DisableTimestamp {
		b.WriteString(entry.Time.Format(f.TimestampFormat))
		b.WriteByte(' ')
	}

	b.WriteString(levelName(entry.Level))
	b.WriteByte(' ')

	if src, ok := entry.Data[sourceKey]; ok {
		b.WriteString(stringify(src))
		b.WriteString(": ")
	}
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k != sourceKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(quoteIfNeeded(stringify(entry.Data[k])))
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

func levelName(level logrus.Level) string {
	if int(level) >= len(levelDesc) {
		return "UNKN"
	}
	return levelDesc[level]
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case error:
		return t.Error()
	default:
		return strings.TrimSpace(strings.ReplaceAll(fmt.Sprint(v), "\n", " "))
	}
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\"=") {
		return strconv.Quote(s)
	}
	return s
}
