package common

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/rs/zerolog"
)

// Names of the loggers used in this module
const (
	LoggerStore   = "store"
	LoggerEngine  = "engine"
	LoggerMaple   = "maple"
	LoggerSQLite  = "sqlite"
	LoggerLevelDB = "leveldb"
	LoggerCLI     = "cli"
)

var loggerNames = []string{LoggerStore, LoggerEngine, LoggerMaple, LoggerSQLite, LoggerLevelDB, LoggerCLI}

// sink is the zerolog logger all named loggers write to
var sink atomic.Pointer[zerolog.Logger]

func init() {
	SetOutput(os.Stderr)
	logger.SetLoggerFactory(CreateLogger)
}

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// scdbLogger implements the ILogger interface on top of zerolog
type scdbLogger struct {
	name  string
	level atomic.Int32
}

func (l *scdbLogger) SetLevel(level logger.LogLevel) {
	l.level.Store(int32(level))
}

func (l *scdbLogger) enabled(level logger.LogLevel) bool {
	return logger.LogLevel(l.level.Load()) >= level
}

func (l *scdbLogger) Debugf(format string, args ...interface{}) {
	if l.enabled(logger.DEBUG) {
		l.log(sink.Load().Debug(), format, args...)
	}
}

func (l *scdbLogger) Infof(format string, args ...interface{}) {
	if l.enabled(logger.INFO) {
		l.log(sink.Load().Info(), format, args...)
	}
}

func (l *scdbLogger) Warningf(format string, args ...interface{}) {
	if l.enabled(logger.WARNING) {
		l.log(sink.Load().Warn(), format, args...)
	}
}

func (l *scdbLogger) Errorf(format string, args ...interface{}) {
	if l.enabled(logger.ERROR) {
		l.log(sink.Load().Error(), format, args...)
	}
}

func (l *scdbLogger) Panicf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if l.enabled(logger.CRITICAL) {
		l.log(sink.Load().Error(), "%s", msg)
	}
	panic(msg)
}

func (l *scdbLogger) log(event *zerolog.Event, format string, args ...interface{}) {
	event.Str("logger", l.name).Msgf(format, args...)
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

// CreateLogger is the dragonboat logger factory, new loggers start at level INFO
func CreateLogger(pkgName string) logger.ILogger {
	l := &scdbLogger{name: pkgName}
	l.SetLevel(logger.INFO)
	return l
}

// GetLogger returns the named logger
func GetLogger(name string) logger.ILogger {
	return logger.GetLogger(name)
}

// SetOutput replaces the writer all loggers write to
func SetOutput(w io.Writer) {
	l := zerolog.New(w).With().Timestamp().Logger()
	sink.Store(&l)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// InitLoggers sets the level of all loggers of this module and, if w is not nil,
// their output
func InitLoggers(level string, w io.Writer) error {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return err
	}
	if w != nil {
		SetOutput(w)
	}
	for _, name := range loggerNames {
		logger.GetLogger(name).SetLevel(lvl)
	}
	return nil
}
