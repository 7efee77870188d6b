// Package policy holds the admission policies that do not depend on the
// report history: the daylight submission window and rate limiting.
package policy

import (
	"fmt"
	"time"
)

// Default daylight window, in device local hours: [06:00, 18:00).
const (
	DefaultOpenHour  = 6
	DefaultCloseHour = 18
)

// Window decides whether submissions are accepted at a given local time.
type Window struct {
	OpenHour  int // inclusive
	CloseHour int // exclusive

	// Fallback is the zone used when the device did not send its local time.
	Fallback *time.Location
}

// DefaultWindow returns the 06:00–18:00 window with a UTC fallback zone.
func DefaultWindow() Window {
	return Window{OpenHour: DefaultOpenHour, CloseHour: DefaultCloseHour, Fallback: time.UTC}
}

// NewWindow validates the hours and resolves the fallback zone name.
func NewWindow(openHour, closeHour int, fallbackZone string) (Window, error) {
	if openHour < 0 || openHour > 23 || closeHour < 1 || closeHour > 24 || openHour >= closeHour {
		return Window{}, fmt.Errorf("invalid submission window %d..%d", openHour, closeHour)
	}
	loc := time.UTC
	if fallbackZone != "" {
		var err error
		if loc, err = time.LoadLocation(fallbackZone); err != nil {
			return Window{}, fmt.Errorf("load fallback timezone %q: %w", fallbackZone, err)
		}
	}
	return Window{OpenHour: openHour, CloseHour: closeHour, Fallback: loc}, nil
}

// IsOpen reports whether now falls inside the window. The hour is read in the
// zone carried by now, which for device submissions is the device's own offset.
func (w Window) IsOpen(now time.Time) bool {
	h := now.Hour()
	return h >= w.OpenHour && h < w.CloseHour
}

// Local resolves the instant to judge: the device's time when provided,
// otherwise serverNow in the fallback zone.
func (w Window) Local(deviceNow *time.Time, serverNow time.Time) time.Time {
	if deviceNow != nil && !deviceNow.IsZero() {
		return *deviceNow
	}
	if w.Fallback == nil {
		return serverNow.UTC()
	}
	return serverNow.In(w.Fallback)
}

// Describe renders the window for user-facing rejection messages.
func (w Window) Describe() string {
	return fmt.Sprintf("%02d:00 to %02d:00 local time", w.OpenHour, w.CloseHour)
}
