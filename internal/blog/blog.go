// Package blog is the bridge's package-level logging facade. Every
// other package calls it the way hunter007-jackal's modules call their
// own log package: blog.Error(err), blog.Infof("...", args...). Under
// the hood it is one *logrus.Logger with an optional rotating file
// sink.
package blog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var std = logrus.New()

func init() {
	std.SetOutput(os.Stderr)
	std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// Configure points the facade at logFile (rotated via lumberjack) in
// addition to stderr, and sets the minimum level. An empty logFile
// leaves logging on stderr only.
func Configure(logFile string, level string) {
	if lvl, err := logrus.ParseLevel(level); err == nil {
		std.SetLevel(lvl)
	}
	if logFile == "" {
		return
	}
	var w io.Writer = &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    20, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
	std.SetOutput(io.MultiWriter(os.Stderr, w))
}

func Error(args ...interface{})                 { std.Error(args...) }
func Errorf(format string, args ...interface{}) { std.Errorf(format, args...) }
func Info(args ...interface{})                  { std.Info(args...) }
func Infof(format string, args ...interface{})  { std.Infof(format, args...) }
func Warn(args ...interface{})                  { std.Warn(args...) }
func Warnf(format string, args ...interface{})  { std.Warnf(format, args...) }
func Debug(args ...interface{})                 { std.Debug(args...) }
func Debugf(format string, args ...interface{}) { std.Debugf(format, args...) }
func Fatalf(format string, args ...interface{}) { std.Fatalf(format, args...) }
