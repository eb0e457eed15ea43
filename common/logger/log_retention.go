package logger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	errors "github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/nrbedrock/bedrock-observability/common/config"
)

var logSweepInterval = 24 * time.Hour

// StartLogRetentionCleaner keeps LOG_RETENTION_DAYS days of daily monitor
// logs in logDir. It sweeps once right away and then every day until ctx is
// done. The single bedrock-monitor.log written with ONLY_ONE_LOG_FILE is
// never removed.
func StartLogRetentionCleaner(ctx context.Context, logDir string) {
	retentionDays := config.LogRetentionDays
	if retentionDays <= 0 {
		Logger.Debug("log retention disabled", zap.Int("log_retention_days", retentionDays))
		return
	}
	if strings.TrimSpace(logDir) == "" {
		Logger.Warn("log retention enabled but log directory is empty", zap.Int("log_retention_days", retentionDays))
		return
	}

	sweep := func() {
		removed, err := sweepMonitorLogs(logDir, retentionDays, time.Now())
		if err != nil {
			Logger.Warn("log retention sweep failed", zap.String("log_dir", logDir), zap.Error(err))
			return
		}
		if len(removed) > 0 {
			Logger.Info("removed expired monitor logs", zap.Strings("files", removed))
		}
	}
	sweep()

	go func() {
		ticker := time.NewTicker(logSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				Logger.Debug("log retention cleaner stopped")
				return
			case <-ticker.C:
				sweep()
			}
		}
	}()

	Logger.Info("log retention cleaner started",
		zap.Int("log_retention_days", retentionDays),
		zap.String("log_dir", logDir))
}

// sweepMonitorLogs removes the daily logs whose day ended more than
// retentionDays before now, and returns the names it removed. Today's file
// is kept whatever the retention.
func sweepMonitorLogs(logDir string, retentionDays int, now time.Time) ([]string, error) {
	entries, err := os.ReadDir(logDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "read log directory %q", logDir)
	}

	cutoff := now.AddDate(0, 0, -retentionDays)
	today := dailyLogFileName(now)

	var removed []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == today || !isMonitorLogFile(name) {
			continue
		}
		// the undated single file is still being appended to
		day, dated := monitorLogDay(name)
		if !dated || !day.AddDate(0, 0, 1).Before(cutoff) {
			continue
		}

		path := filepath.Join(logDir, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			Logger.Warn("failed to remove expired log file", zap.String("log_path", path), zap.Error(err))
			continue
		}
		removed = append(removed, name)
	}

	return removed, nil
}

// isMonitorLogFile reports whether name is a file SetupLogger writes, so a
// shared log directory is never swept of other programs' logs.
func isMonitorLogFile(name string) bool {
	if name == loggerName+logFileExt {
		return true
	}
	_, ok := monitorLogDay(name)
	return ok
}

// monitorLogDay parses the day out of a bedrock-monitor-YYYYMMDD.log name.
func monitorLogDay(name string) (time.Time, bool) {
	stamp, ok := strings.CutPrefix(name, loggerName+"-")
	if !ok {
		return time.Time{}, false
	}
	stamp, ok = strings.CutSuffix(stamp, logFileExt)
	if !ok || len(stamp) != len(logFileDateLayout) {
		return time.Time{}, false
	}

	day, err := time.ParseInLocation(logFileDateLayout, stamp, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}
