package lock

import (
	"github.com/godbus/dbus/v5"
)

// activeChangedMember is the signal every known screensaver emits when the screen locks or
// unlocks.
const activeChangedMember = "ActiveChanged"

// ScreenSaver identifies a screensaver implementation on the session bus.
// Interface is used both as the bus name and as the D-Bus interface name.
type ScreenSaver struct {
	Interface string
	Path      dbus.ObjectPath
}

func (s ScreenSaver) signalName() string {
	return s.Interface + "." + activeChangedMember
}

func (s ScreenSaver) method(name string) string {
	return s.Interface + "." + name
}

var screenSavers = [...]ScreenSaver{
	{
		Interface: "org.gnome.ScreenSaver",
		Path:      "/org/gnome/ScreenSaver",
	},
	{
		Interface: "org.freedesktop.ScreenSaver",
		Path:      "/org/freedesktop/ScreenSaver",
	},
}

// ScreenSavers returns the screensaver implementations that are watched and probed, in the order
// they are tried.
func ScreenSavers() []ScreenSaver {
	result := make([]ScreenSaver, len(screenSavers))
	copy(result, screenSavers[:])
	return result
}

// Event is a single ActiveChanged signal.
type Event struct {
	// ScreenSaver is the implementation that emitted the signal.
	ScreenSaver ScreenSaver

	// Active is true when the screensaver, and thus usually the lock screen, became active.
	// It is false when it became inactive or when the signal carried no boolean.
	Active bool
}

// eventFromSignal converts s into an Event. ok is false when s is not an ActiveChanged signal of a
// known screensaver.
func eventFromSignal(s *dbus.Signal) (event Event, ok bool) {
	if s == nil {
		// Seems to happen on close
		return Event{}, false
	}

	for _, saver := range screenSavers {
		if s.Name != saver.signalName() {
			continue
		}

		event.ScreenSaver = saver
		if len(s.Body) > 0 {
			event.Active, _ = s.Body[0].(bool)
		}

		return event, true
	}

	return Event{}, false
}
