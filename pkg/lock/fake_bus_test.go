package lock

import (
	"context"
	"errors"
	"github.com/godbus/dbus/v5"
	"sync"
	"testing"
)

var errServiceUnknown = errors.New("org.freedesktop.DBus.Error.ServiceUnknown")

type fakeReply struct {
	active bool
	err    error
}

// fakeBus stands in for a session bus connection.
type fakeBus struct {
	mu sync.Mutex

	// matchErrs[i] is returned by the i-th AddMatchSignal call.
	matchErrs map[int]error
	// replies maps a destination to its GetActive reply. Missing destinations are unknown
	// services.
	replies map[string]fakeReply

	matches  [][]dbus.MatchOption
	signals  []chan<- *dbus.Signal
	removed  []chan<- *dbus.Signal
	calls    []string
	closed   int
	isClosed bool
}

func (b *fakeBus) AddMatchSignal(options ...dbus.MatchOption) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	err := b.matchErrs[len(b.matches)]
	b.matches = append(b.matches, options)

	return err
}

func (b *fakeBus) Signal(ch chan<- *dbus.Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.signals = append(b.signals, ch)
}

func (b *fakeBus) RemoveSignal(ch chan<- *dbus.Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, c := range b.signals {
		if c == ch {
			b.signals = append(b.signals[:i], b.signals[i+1:]...)
			break
		}
	}
	b.removed = append(b.removed, ch)
}

func (b *fakeBus) Object(dest string, path dbus.ObjectPath) dbus.BusObject {
	return &fakeObject{bus: b, dest: dest, path: path}
}

// Close closes the signal channels that are still registered, the way a dbus.Conn does.
func (b *fakeBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed++
	if b.isClosed {
		return nil
	}
	b.isClosed = true
	for _, ch := range b.signals {
		close(ch)
	}
	b.signals = nil

	return nil
}

func (b *fakeBus) emit(s *dbus.Signal) {
	b.mu.Lock()
	channels := append([]chan<- *dbus.Signal(nil), b.signals...)
	b.mu.Unlock()

	for _, ch := range channels {
		ch <- s
	}
}

func (b *fakeBus) snapshot() (matches [][]dbus.MatchOption, signals, removed int, closed int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.matches, len(b.signals), len(b.removed), b.closed
}

func (b *fakeBus) callLog() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]string(nil), b.calls...)
}

type fakeObject struct {
	dbus.BusObject
	bus  *fakeBus
	dest string
	path dbus.ObjectPath
}

func (o *fakeObject) CallWithContext(
	_ context.Context,
	method string,
	_ dbus.Flags,
	args ...interface{},
) *dbus.Call {
	o.bus.mu.Lock()
	defer o.bus.mu.Unlock()

	o.bus.calls = append(o.bus.calls, o.dest+" "+string(o.path)+" "+method)
	call := &dbus.Call{
		Destination: o.dest,
		Path:        o.path,
		Method:      method,
		Args:        args,
	}

	reply, ok := o.bus.replies[o.dest]
	switch {
	case !ok:
		call.Err = errServiceUnknown
	case reply.err != nil:
		call.Err = reply.err
	default:
		call.Body = []interface{}{reply.active}
	}

	return call
}

// useBus makes every new session bus connection return bus until the test ends.
func useBus(t *testing.T, bus *fakeBus) {
	t.Helper()

	previous := connectSessionBus
	connectSessionBus = func() (busConn, error) {
		return bus, nil
	}
	t.Cleanup(func() {
		connectSessionBus = previous
	})
}

func useUnreachableBus(t *testing.T) {
	t.Helper()

	previous := connectSessionBus
	connectSessionBus = func() (busConn, error) {
		return nil, errors.New("dial unix /run/user/1000/bus: connect: no such file or directory")
	}
	t.Cleanup(func() {
		connectSessionBus = previous
	})
}

func activeChanged(saver ScreenSaver, body ...interface{}) *dbus.Signal {
	return &dbus.Signal{
		Sender: ":1.42",
		Path:   saver.Path,
		Name:   saver.signalName(),
		Body:   body,
	}
}
