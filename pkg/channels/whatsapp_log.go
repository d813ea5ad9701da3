package channels

import (
	"fmt"
	"strings"

	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/sushiaki/sorabot/pkg/logger"
)

// waLogger routes whatsmeow logs into the process logger under its own
// component, with an independent minimum level.
type waLogger struct {
	component string
	min       logger.LogLevel
}

// NewWALogger returns a waLog.Logger. An empty level means WARN.
func NewWALogger(component, level string) waLog.Logger {
	min := logger.WARN
	if strings.TrimSpace(level) != "" {
		min = logger.ParseLevel(level)
	}
	return &waLogger{component: component, min: min}
}

func (l *waLogger) Debugf(msg string, args ...interface{}) { l.log(logger.DEBUG, msg, args) }
func (l *waLogger) Infof(msg string, args ...interface{})  { l.log(logger.INFO, msg, args) }
func (l *waLogger) Warnf(msg string, args ...interface{})  { l.log(logger.WARN, msg, args) }
func (l *waLogger) Errorf(msg string, args ...interface{}) { l.log(logger.ERROR, msg, args) }

func (l *waLogger) Sub(module string) waLog.Logger {
	return &waLogger{component: l.component + "/" + module, min: l.min}
}

func (l *waLogger) log(level logger.LogLevel, msg string, args []interface{}) {
	if level < l.min {
		return
	}
	text := fmt.Sprintf(msg, args...)
	switch level {
	case logger.DEBUG:
		logger.DebugC(l.component, text)
	case logger.INFO:
		logger.InfoC(l.component, text)
	case logger.WARN:
		logger.WarnC(l.component, text)
	default:
		logger.ErrorC(l.component, text)
	}
}
