// Package zap adapts go.uber.org/zap to logging.Logger.
package zap

import (
	"go.uber.org/zap"

	"github.com/goliatone/go-repository-mirror/logging"
)

var _ logging.Logger = Logger{}

// Logger forwards to a *zap.Logger.
type Logger struct{ L *zap.Logger }

func (z Logger) Debug(msg string, f logging.Fields) { z.L.Debug(msg, zf(f)...) }
func (z Logger) Info(msg string, f logging.Fields)  { z.L.Info(msg, zf(f)...) }
func (z Logger) Warn(msg string, f logging.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z Logger) Error(msg string, f logging.Fields) { z.L.Error(msg, zf(f)...) }

func zf(f logging.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}
