// Package core defines sentinel errors and the process exit-code taxonomy.
package core

import "errors"

// Sentinel errors. Callers wrap them with %w and add context; the process
// boundary maps them to exit codes with ExitCode.
var (
	// Argument and configuration errors
	ErrInvalidArguments = errors.New("udptrain: invalid number of arguments")
	ErrInvalidPriority  = errors.New("udptrain: invalid priority or entropy selector")
	ErrInvalidPort      = errors.New("udptrain: invalid port number")
	ErrInvalidAddress   = errors.New("udptrain: invalid address")
	ErrConfigInvalid    = errors.New("udptrain: invalid configuration")

	// Setup errors
	ErrAddressResolution = errors.New("udptrain: address resolution failed")
	ErrSocketCreation    = errors.New("udptrain: socket creation failed")
	ErrSocketSetup       = errors.New("udptrain: socket setup failed")
	ErrBind              = errors.New("udptrain: bind failed")
	ErrRandomSource      = errors.New("udptrain: random source unavailable")

	// Capture errors
	ErrReceive                = errors.New("udptrain: receive failed")
	ErrPacketTooShort         = errors.New("udptrain: packet too short")
	ErrBufferCapacityExceeded = errors.New("udptrain: log buffer capacity exceeded")
	ErrInterrupted            = errors.New("udptrain: interrupted")

	// Persistence errors
	ErrFileOpen  = errors.New("udptrain: file open failed")
	ErrFileWrite = errors.New("udptrain: file write failed")
)

// Exit codes. Values follow the historical constants table of the
// measurement tools so wrapper scripts keep working.
const (
	ExitSuccess                = 0
	ExitFailure                = 1
	ExitInvalidArguments       = 11
	ExitInvalidPriority        = 12
	ExitInvalidPort            = 13
	ExitInvalidAddress         = 14
	ExitSocketCreation         = 15
	ExitSocketSetup            = 102
	ExitReceive                = 105
	ExitBind                   = 106
	ExitAddressResolution      = 109
	ExitRandomSource           = 110
	ExitFileWrite              = 115
	ExitFileOpen               = 116
	ExitBufferCapacityExceeded = 117
	ExitConfigInvalid          = 118
	ExitInterrupted            = 130
)

var exitCodes = []struct {
	err  error
	code int
}{
	{ErrInvalidArguments, ExitInvalidArguments},
	{ErrInvalidPriority, ExitInvalidPriority},
	{ErrInvalidPort, ExitInvalidPort},
	{ErrInvalidAddress, ExitInvalidAddress},
	{ErrConfigInvalid, ExitConfigInvalid},
	{ErrAddressResolution, ExitAddressResolution},
	{ErrSocketCreation, ExitSocketCreation},
	{ErrSocketSetup, ExitSocketSetup},
	{ErrBind, ExitBind},
	{ErrRandomSource, ExitRandomSource},
	{ErrReceive, ExitReceive},
	{ErrBufferCapacityExceeded, ExitBufferCapacityExceeded},
	{ErrInterrupted, ExitInterrupted},
	{ErrFileOpen, ExitFileOpen},
	{ErrFileWrite, ExitFileWrite},
}

// ExitCode maps err to its process exit code. nil maps to ExitSuccess and
// errors outside the taxonomy map to ExitFailure.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	for _, ec := range exitCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return ExitFailure
}
