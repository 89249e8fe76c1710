package lock

import (
	"context"
	"errors"
	"fmt"
	"github.com/godbus/dbus/v5"
	"sync"
)

// busConn is the part of *dbus.Conn used by this package.
type busConn interface {
	AddMatchSignal(options ...dbus.MatchOption) error
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
	Close() error
}

// connectSessionBus opens a new private connection to the session bus. Every Watcher and probe
// owns its connection.
var connectSessionBus = func() (busConn, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, err
	}

	return conn, nil
}

// Watcher forwards ActiveChanged signals to a callback until it is closed or the session bus
// connection goes away.
type Watcher struct {
	conn     busConn
	signals  chan *dbus.Signal
	stop     chan struct{}
	stopOnce sync.Once
	closeErr error
	done     chan struct{}
}

// OnLock calls callback every time a known screensaver reports that it became active or inactive.
// The payload of the signal is not inspected, use Watch to get it.
//
// The callback runs on its own goroutine, one call at a time, in the order the signals arrived.
// A slow callback does not delay the reading of signals.
//
// An error is returned if the session bus cannot be reached or the signals cannot be subscribed
// to. In that case the callback is never called.
// When the connection is lost after OnLock returned, no more calls are made and no error is
// reported. Listening cannot be stopped, use Watch if that is required.
func OnLock(callback func()) error {
	if callback == nil {
		return errors.New("OnLock: callback cannot be nil")
	}

	_, err := Watch(context.Background(), func(Event) {
		callback()
	})

	return err
}

// Watch is like OnLock, but passes the received Event to the callback and can be stopped by
// cancelling ctx or by closing the returned Watcher.
// Events that were received but not yet passed to callback when the watcher stops are dropped.
func Watch(ctx context.Context, callback func(Event)) (*Watcher, error) {
	if callback == nil {
		return nil, errors.New("Watch: callback cannot be nil")
	}

	conn, err := connectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	for _, saver := range screenSavers {
		if err := conn.AddMatchSignal(matchOptions(saver)...); err != nil {
			err = fmt.Errorf("failed to register D-Bus %s signal: %w", saver.signalName(), err)
			if closeErr := conn.Close(); closeErr != nil {
				err = errors.Join(err, fmt.Errorf("failed to close session bus: %w", closeErr))
			}

			return nil, err
		}
	}

	w := &Watcher{
		conn:    conn,
		signals: make(chan *dbus.Signal, 64),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	conn.Signal(w.signals)

	queue := newEventQueue()
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		w.forward(ctx, queue)
	}()
	go func() {
		queue.drain(w.stop, callback)
		<-forwarded
		close(w.done)
	}()

	return w, nil
}

func matchOptions(saver ScreenSaver) []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchInterface(saver.Interface),
		dbus.WithMatchMember(activeChangedMember),
	}
}

// forward moves matching signals into queue until the watcher stops or the signal channel is
// closed. The latter happens when the connection is closed by the bus.
func (w *Watcher) forward(ctx context.Context, queue *eventQueue) {
	defer queue.close()

	for {
		select {
		case <-ctx.Done():
			_ = w.Close()
			return
		case <-w.stop:
			return
		case s, ok := <-w.signals:
			if !ok {
				return
			}

			if event, ok := eventFromSignal(s); ok {
				queue.push(event)
			}
		}
	}
}

// Done returns a channel that is closed once the watcher has stopped and the callback will not be
// called anymore.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// Close stops the watcher and closes its session bus connection.
// It does not wait for a running callback to return, use Done for that.
// Close can be called multiple times and from multiple goroutines.
func (w *Watcher) Close() error {
	w.stopOnce.Do(func() {
		close(w.stop)
		w.conn.RemoveSignal(w.signals)
		if err := w.conn.Close(); err != nil {
			w.closeErr = fmt.Errorf("failed to close session bus: %w", err)
		}
	})

	return w.closeErr
}

// IsMonitorAvailable reports whether any known screensaver answers on the session bus.
// See IsMonitorAvailableContext.
func IsMonitorAvailable() bool {
	return IsMonitorAvailableContext(context.Background())
}

// IsMonitorAvailableContext asks the known screensavers for their active state, one after the
// other, and returns true as soon as one answers without error.
// It returns false if none of them answers or if the session bus cannot be reached. The cause is
// not reported.
func IsMonitorAvailableContext(ctx context.Context) bool {
	conn, err := connectSessionBus()
	if err != nil {
		return false
	}
	defer func() { _ = conn.Close() }()

	for _, saver := range screenSavers {
		if callGetActive(ctx, conn, saver).Err == nil {
			return true
		}
	}

	return false
}

// GetActive gets the active state of the first known screensaver that answers; true=active,
// false=inactive.
// A screensaver that is active usually means that the screen is locked.
func GetActive(ctx context.Context) (bool, error) {
	conn, err := connectSessionBus()
	if err != nil {
		return false, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	defer func() { _ = conn.Close() }()

	var totalError error
	for _, saver := range screenSavers {
		var active bool
		err := callGetActive(ctx, conn, saver).Store(&active)
		if err == nil {
			return active, nil
		}

		totalError = errors.Join(
			totalError,
			fmt.Errorf("could not get active state of %s: %w", saver.Interface, err),
		)
	}

	return false, totalError
}

func callGetActive(ctx context.Context, conn busConn, saver ScreenSaver) *dbus.Call {
	return conn.Object(saver.Interface, saver.Path).
		CallWithContext(ctx, saver.method("GetActive"), 0)
}
