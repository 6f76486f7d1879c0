package core

import (
	"go.uber.org/zap"

	"github.com/smarty/antikinst/contracts"
	"github.com/smarty/antikinst/logging"
)

// LoggingObserver records session events; progress is logged at debug level.
type LoggingObserver struct {
	logger *zap.Logger
}

func NewLoggingObserver(logger *zap.Logger) *LoggingObserver {
	return &LoggingObserver{logger: logging.OrNop(logger)}
}

func (this *LoggingObserver) Transitioned(from, to contracts.State) {
	this.logger.Info("State changed.", zap.Stringer("from", from), zap.Stringer("to", to))
}

func (this *LoggingObserver) ManifestResolved(manifest contracts.Manifest) {
	this.logger.Info("Manifest resolved.",
		zap.String("app", manifest.AppName),
		zap.String("default_path", manifest.DefaultExtractPath),
		zap.String("executable", manifest.MainExecutable))
}

func (this *LoggingObserver) Progressed(progress contracts.Progress) {
	this.logger.Debug("Extracting.", zap.Int("percent", progress.Percent), zap.Int("processed", progress.Processed), zap.Int("total", progress.Total))
}

func (this *LoggingObserver) Failed(state contracts.State, err error) {
	this.logger.Error("Operation failed.", zap.Stringer("state", state), zap.Error(err))
}

type nopObserver struct{}

func (nopObserver) Transitioned(contracts.State, contracts.State) {}
func (nopObserver) ManifestResolved(contracts.Manifest)           {}
func (nopObserver) Progressed(contracts.Progress)                 {}
func (nopObserver) Failed(contracts.State, error)                 {}

func observerOrNop(observer contracts.Observer) contracts.Observer {
	if observer == nil {
		return nopObserver{}
	}
	return observer
}
