package util

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spikeekips/throttler/util/logging"
)

// ContextDaemon runs the callback in background until Stop() is called or the
// callback returns.
type ContextDaemon struct {
	*logging.Logging
	callback func(context.Context) error
	cancel   func()
	donech   chan struct{}
	sync.Mutex
}

func NewContextDaemon(name string, startfunc func(context.Context) error) *ContextDaemon {
	return &ContextDaemon{
		Logging: logging.NewLogging(func(c zerolog.Context) zerolog.Context {
			return c.Str("module", "context-daemon").Str("daemon", name)
		}),
		callback: startfunc,
	}
}

func (dm *ContextDaemon) IsStarted() bool {
	dm.Lock()
	defer dm.Unlock()

	return dm.cancel != nil
}

func (dm *ContextDaemon) Start() error {
	return dm.StartWithContext(context.Background())
}

func (dm *ContextDaemon) StartWithContext(ctx context.Context) error {
	dm.Lock()
	defer dm.Unlock()

	if dm.cancel != nil {
		return ErrDaemonAlreadyStarted.Call()
	}

	nctx, cancel := context.WithCancel(ctx)
	donech := make(chan struct{})

	dm.cancel = cancel
	dm.donech = donech

	go func() {
		defer close(donech)

		if err := dm.callback(nctx); err != nil && !isCanceled(err) {
			dm.Log().Error().Err(err).Msg("stopped by error")
		}

		dm.Lock()
		if dm.donech == donech {
			dm.cancel = nil
		}
		dm.Unlock()

		cancel()
	}()

	dm.Log().Debug().Msg("started")

	return nil
}

func (dm *ContextDaemon) Stop() error {
	dm.Lock()

	if dm.cancel == nil {
		dm.Unlock()

		return ErrDaemonAlreadyStopped.Call()
	}

	cancel, donech := dm.cancel, dm.donech
	dm.cancel = nil

	dm.Unlock()

	cancel()
	<-donech

	dm.Log().Debug().Msg("stopped")

	return nil
}

// Done is closed when the callback is finished.
func (dm *ContextDaemon) Done() <-chan struct{} {
	dm.Lock()
	defer dm.Unlock()

	return dm.donech
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
