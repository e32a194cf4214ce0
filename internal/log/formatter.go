package log

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	defaultPattern    = "%time [%level] %field %msg%n"
	defaultTimeLayout = "2006-01-02 15:04:05"
)

// formatter renders entries through a pattern with the placeholders
// %time, %level, %field, %msg and %n (newline).
type formatter struct {
	pattern string
	time    string
}

func newFormatter(pattern, timeLayout string) *formatter {
	if pattern == "" {
		pattern = defaultPattern
	}
	if timeLayout == "" {
		timeLayout = defaultTimeLayout
	}
	return &formatter{pattern: pattern, time: timeLayout}
}

func (f *formatter) Format(entry *logrus.Entry) ([]byte, error) {
	output := f.pattern
	output = strings.Replace(output, "%time", entry.Time.Format(f.time), 1)
	output = strings.Replace(output, "%level", strings.ToUpper(entry.Level.String()), 1)
	output = strings.Replace(output, "%field", buildFields(entry), 1)
	output = strings.Replace(output, "%msg", entry.Message, 1)
	output = strings.ReplaceAll(output, "%n", "\n")
	if !strings.HasSuffix(output, "\n") {
		output += "\n"
	}
	return []byte(output), nil
}

// buildFields renders entry data as key=value pairs in key order.
func buildFields(entry *logrus.Entry) string {
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	fields := make([]string, 0, len(keys))
	for _, key := range keys {
		val := entry.Data[key]
		stringVal, ok := val.(string)
		if !ok {
			stringVal = fmt.Sprint(val)
		}
		fields = append(fields, key+"="+stringVal)
	}
	return strings.Join(fields, ",")
}
