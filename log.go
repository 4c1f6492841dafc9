package sonde

import (
	kitlog "github.com/go-kit/kit/log"
)

var logger kitlog.Logger = kitlog.NewNopLogger()

// SetLogger sets the logger used by the simulators. A nil logger silences them.
func SetLogger(l kitlog.Logger) {
	if l == nil {
		l = kitlog.NewNopLogger()
	}
	logger = l
}
