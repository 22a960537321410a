package cadence

import (
	"fmt"

	"github.com/rs/zerolog"
)

// ErrorHandler receives errors from asynchronous paths that have no
// caller to return to: failed operations on the edit queue worker. The
// MIDI input node does not report port failures through it.
type ErrorHandler interface {
	HandleError(error)
}

// DefaultErrorHandler prints errors to standard output.
type DefaultErrorHandler struct{}

func (DefaultErrorHandler) HandleError(err error) {
	fmt.Printf("engine error: %v\n", err)
}

// LoggingErrorHandler routes errors into a zerolog logger and
// optionally forwards them to another handler.
type LoggingErrorHandler struct {
	underlying ErrorHandler
	log        zerolog.Logger
}

func NewLoggingErrorHandler(underlying ErrorHandler, log zerolog.Logger) *LoggingErrorHandler {
	return &LoggingErrorHandler{
		underlying: underlying,
		log:        log,
	}
}

func (h *LoggingErrorHandler) HandleError(err error) {
	h.log.Error().Err(err).Msg("engine error")
	if h.underlying != nil {
		h.underlying.HandleError(err)
	}
}

// PanicErrorHandler panics on any error (useful for development).
type PanicErrorHandler struct{}

func (PanicErrorHandler) HandleError(err error) {
	panic(fmt.Sprintf("engine error: %v", err))
}
