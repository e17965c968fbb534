package store

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fyrsmithlabs/docmind/internal/logging"
)

type zapWriter struct {
	logger *zap.Logger
}

func (w zapWriter) Printf(format string, args ...interface{}) {
	w.logger.Info(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// newGormLogger routes gorm's SQL log through the service logger.
func newGormLogger(logger *logging.Logger, level string) gormlogger.Interface {
	lvl := gormlogger.Warn
	switch strings.ToLower(level) {
	case "silent", "off":
		lvl = gormlogger.Silent
	case "error":
		lvl = gormlogger.Error
	case "info", "debug":
		lvl = gormlogger.Info
	}

	return gormlogger.New(zapWriter{logger: logger.Underlying().Named("gorm")}, gormlogger.Config{
		SlowThreshold:             500 * time.Millisecond,
		LogLevel:                  lvl,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
