package alert

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// ConsoleSink 控制台出口（调试用）
type ConsoleSink struct {
	w io.Writer
}

// NewConsoleSink 创建控制台 sink
func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{w: os.Stdout}
}

func (s *ConsoleSink) Name() string {
	return "console"
}

func (s *ConsoleSink) Notify(_ context.Context, n Notification) error {
	if n.Kind == KindResolution {
		_, err := fmt.Fprintf(s.w, "[%s] RESOLVED %s occurrence=%s\n",
			n.Resolution.ResolvedAt.Format(time.RFC3339),
			n.Resolution.Type,
			n.Resolution.OccurrenceID)
		return err
	}

	tag := strings.ToUpper(string(n.Alert.Level))
	if n.Escalated {
		tag += " (escalated)"
	}
	_, err := fmt.Fprintf(s.w, "[%s] %s %s score=%.2f occurrence=%s\n",
		n.Alert.TriggeredAt.Format(time.RFC3339),
		tag,
		n.Alert.Type,
		n.Alert.Score,
		n.Alert.OccurrenceID)
	return err
}
