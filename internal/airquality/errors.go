package airquality

import (
	"errors"
	"fmt"
)

var (
	// ErrModelUnavailable is returned by every prediction when the trained
	// artifact could not be loaded at startup.
	ErrModelUnavailable = errors.New("ML model not available")

	// ErrProvidersUnavailable is returned when neither realtime provider
	// produced a reading.
	ErrProvidersUnavailable = errors.New("Failed to fetch real-time AQI data from both IQAir and OpenWeatherMap APIs. Check API keys and network connection.")
)

// InputError reports a problem with caller supplied values. Its message is
// safe to return to the client verbatim.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string {
	return e.Msg
}

func missingField(name string) error {
	return &InputError{Msg: "Missing field: " + name}
}

func invalidInput(format string, args ...any) error {
	return &InputError{Msg: "Invalid input values: " + fmt.Sprintf(format, args...)}
}

// IsInputError reports whether err was caused by bad client input.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}
