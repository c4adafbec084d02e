package link

import "go.uber.org/zap"

func init() {
	z, err := zap.NewProduction()
	if err == nil {
		globalLogger = &zapLogger{z.Sugar()}
	}
}

// zapLogger is the default Logger implementation, backed by a
// production zap.Logger. It is installed automatically at package
// init time; callers can override it with SetLogger.
type zapLogger struct {
	s *zap.SugaredLogger
}

func (l *zapLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l *zapLogger) Info(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l *zapLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
func (l *zapLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
