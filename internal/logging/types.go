package logging

import "time"

type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Tag prefixes every line written to the output stream.
const Tag = "[migwatch]"

// Unknown levels rank as info.
var levelRanks = map[Level]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

func rankOf(level Level) int {
	if rank, ok := levelRanks[level]; ok {
		return rank
	}
	return levelRanks[LevelInfo]
}

type LogEntry struct {
	Timestamp time.Time
	Level     Level
	Message   string
	Context   map[string]string
}
