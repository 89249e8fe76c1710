// Package lock watches the screen lock state of a desktop session.
// It listens for the ActiveChanged signal of the [org.freedesktop.ScreenSaver] and
// org.gnome.ScreenSaver services on the D-Bus session bus.
//
// [org.freedesktop.ScreenSaver]: https://specifications.freedesktop.org/idle-inhibit-spec/latest/
package lock
