package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger struct {
	*logrus.Logger
	fileLogger *logrus.Logger
}

var defaultLogger *Logger

func init() {
	// 未调用 Setup 前只输出到控制台，文件日志丢弃
	fileLogger := logrus.New()
	fileLogger.SetOutput(io.Discard)

	defaultLogger = &Logger{
		Logger:     newConsoleLogger(logrus.DebugLevel),
		fileLogger: fileLogger,
	}
}

func newConsoleLogger(level logrus.Level) *logrus.Logger {
	consoleLogger := logrus.New()
	consoleLogger.SetFormatter(&logrus.TextFormatter{
		ForceColors:   true,
		FullTimestamp: true,
	})
	consoleLogger.SetOutput(os.Stdout)
	consoleLogger.SetLevel(level)
	return consoleLogger
}

// Setup 开启文件日志，logDir 下按大小轮转
func Setup(logDir string, debug bool) {
	level := logrus.InfoLevel
	if debug {
		level = logrus.DebugLevel
	}
	consoleLogger := newConsoleLogger(level)

	// 文件日志配置
	fileLogger := logrus.New()
	fileLogger.SetFormatter(&logrus.JSONFormatter{
		PrettyPrint:     false,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	fileLogger.SetLevel(logrus.InfoLevel)

	// 创建日志目录
	if err := os.MkdirAll(logDir, 0755); err != nil {
		consoleLogger.Errorf("无法创建日志目录: %v", err)
		fileLogger.SetOutput(io.Discard)
	} else {
		// 使用lumberjack进行日志轮转
		fileLogger.SetOutput(&lumberjack.Logger{
			Filename:   filepath.Join(logDir, "meeting-scribe.log"),
			MaxSize:    10,
			MaxBackups: 10,
			MaxAge:     30,
			Compress:   true,
		})
	}

	defaultLogger = &Logger{
		Logger:     consoleLogger,
		fileLogger: fileLogger,
	}
}

func Infof(format string, args ...any) {
	defaultLogger.Logger.Infof(format, args...)
	defaultLogger.fileLogger.Infof(format, args...)
}

func Warnf(format string, args ...any) {
	defaultLogger.Logger.Warnf(format, args...)
	defaultLogger.fileLogger.Warnf(format, args...)
}

func Errorf(format string, args ...any) {
	defaultLogger.Logger.Errorf(format, args...)
	defaultLogger.fileLogger.Errorf(format, args...)
}

func Fatalf(format string, args ...any) {
	defaultLogger.fileLogger.Errorf(format, args...)
	defaultLogger.Logger.Fatalf(format, args...)
}

func Debugf(format string, args ...any) {
	defaultLogger.Logger.Debugf(format, args...)
	defaultLogger.fileLogger.Debugf(format, args...)
}
