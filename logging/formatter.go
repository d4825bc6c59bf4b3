package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Formatter 日志格式化接口
type Formatter interface {
	// Format 格式化日志条目
	Format(entry *LogEntry) ([]byte, error)
}

// LogEntry 日志条目
type LogEntry struct {
	Time     time.Time
	Level    LogLevel
	Category string
	Message  string
	Fields   []Field
}

func newEntry(level LogLevel, category, msg string, fields []Field) *LogEntry {
	return &LogEntry{
		Time:     time.Now(),
		Level:    level,
		Category: category,
		Message:  msg,
		Fields:   fields,
	}
}

// TextFormatter 文本格式化器
type TextFormatter struct {
	IncludeTimestamp bool
	TimestampFormat  string
	ColorOutput      bool
}

// NewTextFormatter 创建文本格式化器
func NewTextFormatter() *TextFormatter {
	return &TextFormatter{
		IncludeTimestamp: true,
		TimestampFormat:  "2006-01-02 15:04:05",
		ColorOutput:      false,
	}
}

// splitFields 取出组件与错误字段，其余字段保持原顺序
func splitFields(fields []Field) (component string, err error, rest []Field) {
	rest = make([]Field, 0, len(fields))
	for _, field := range fields {
		switch field.Key {
		case ComponentKey:
			if s, ok := field.Value.(string); ok {
				component = s
				continue
			}
		case ErrorKey:
			if e, ok := field.Value.(error); ok || field.Value == nil {
				if e != nil {
					err = e
				}
				continue
			}
		}
		rest = append(rest, field)
	}
	return component, err, rest
}

// Format 输出形如 `时间 级别 [分类] <组件> 消息 {k=v} error=...` 的一行
func (f *TextFormatter) Format(entry *LogEntry) ([]byte, error) {
	var buffer bytes.Buffer

	if f.IncludeTimestamp {
		buffer.WriteString(entry.Time.Format(f.TimestampFormat))
		buffer.WriteByte(' ')
	}

	levelStr := entry.Level.String()
	if f.ColorOutput {
		buffer.WriteString(colorize(entry.Level, levelStr))
	} else {
		buffer.WriteString(levelStr)
	}

	if entry.Category != "" {
		buffer.WriteString(" [")
		buffer.WriteString(entry.Category)
		buffer.WriteString("]")
	}

	component, err, rest := splitFields(entry.Fields)
	if component != "" {
		buffer.WriteString(" <")
		buffer.WriteString(component)
		buffer.WriteString(">")
	}

	buffer.WriteByte(' ')
	buffer.WriteString(entry.Message)

	if len(rest) > 0 {
		buffer.WriteString(" {")
		for i, field := range rest {
			if i > 0 {
				buffer.WriteString(", ")
			}
			buffer.WriteString(field.Key)
			buffer.WriteByte('=')
			fmt.Fprintf(&buffer, "%v", field.Value)
		}
		buffer.WriteByte('}')
	}

	if err != nil {
		buffer.WriteString(" error=")
		buffer.WriteString(strconv.Quote(err.Error()))
	}

	buffer.WriteByte('\n')
	return buffer.Bytes(), nil
}

// JsonFormatter JSON 格式化器，组件与错误作为顶层字段
type JsonFormatter struct {
	TimestampFormat string
}

// NewJsonFormatter 创建 JSON 格式化器
func NewJsonFormatter() *JsonFormatter {
	return &JsonFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	}
}

func (f *JsonFormatter) Format(entry *LogEntry) ([]byte, error) {
	data := map[string]any{
		"time":  entry.Time.Format(f.TimestampFormat),
		"level": entry.Level.String(),
		"msg":   entry.Message,
	}
	if entry.Category != "" {
		data["category"] = entry.Category
	}

	component, err, rest := splitFields(entry.Fields)
	if component != "" {
		data[ComponentKey] = component
	}
	if err != nil {
		data[ErrorKey] = err.Error()
	}
	if len(rest) > 0 {
		fields := make(map[string]any, len(rest))
		for _, field := range rest {
			if e, ok := field.Value.(error); ok {
				fields[field.Key] = e.Error()
				continue
			}
			fields[field.Key] = field.Value
		}
		data["fields"] = fields
	}

	out, merr := json.Marshal(data)
	if merr != nil {
		return nil, merr
	}
	return append(out, '\n'), nil
}

// colorize 为日志级别添加颜色
func colorize(level LogLevel, text string) string {
	const (
		reset   = "\033[0m"
		gray    = "\033[90m"
		cyan    = "\033[36m"
		green   = "\033[32m"
		yellow  = "\033[33m"
		red     = "\033[31m"
		magenta = "\033[35m"
	)

	switch level {
	case LogLevelTrace:
		return gray + text + reset
	case LogLevelDebug:
		return cyan + text + reset
	case LogLevelInfo:
		return green + text + reset
	case LogLevelWarn:
		return yellow + text + reset
	case LogLevelError:
		return red + text + reset
	case LogLevelFatal:
		return magenta + text + reset
	default:
		return text
	}
}
