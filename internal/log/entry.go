package log

import "github.com/sirupsen/logrus"

// entryLogger is a Logger over a logrus entry. The leveled methods are the
// entry's own; the With methods rewrap the derived entry.
type entryLogger struct {
	*logrus.Entry
}

func wrap(e *logrus.Entry) Logger { return entryLogger{Entry: e} }

func (l entryLogger) WithField(field string, value interface{}) Logger {
	return wrap(l.Entry.WithField(field, value))
}

func (l entryLogger) WithFields(fields map[string]interface{}) Logger {
	return wrap(l.Entry.WithFields(fields))
}

func (l entryLogger) WithError(err error) Logger {
	return wrap(l.Entry.WithError(err))
}

func (l entryLogger) IsTraceEnabled() bool { return l.Logger.IsLevelEnabled(logrus.TraceLevel) }
func (l entryLogger) IsDebugEnabled() bool { return l.Logger.IsLevelEnabled(logrus.DebugLevel) }
func (l entryLogger) IsInfoEnabled() bool  { return l.Logger.IsLevelEnabled(logrus.InfoLevel) }
