package formatter

import "github.com/sirupsen/logrus"

// SetTextFormatter installs the TextFormatter and the ContextHook on logger.
// Caller reporting is enabled since the hook needs it for the source field.
func SetTextFormatter(logger *logrus.Logger, timestamps bool) {
	f := NewTextFormatter()
	f.DisableTimestamp = !timestamps

	logger.SetFormatter(f)
	logger.SetReportCaller(true)
	logger.ReplaceHooks(make(logrus.LevelHooks))
	logger.AddHook(NewContextHook())
}
