package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyFrame    = errors.New("pcapledger: frame carries no bytes")
	ErrInvalidLength = errors.New("pcapledger: invalid frame length")
	ErrUndecodable   = errors.New("pcapledger: frame could not be decoded")
)

// ExtractionError reports a frame that produced no record.
type ExtractionError struct {
	FrameIndex int
	SourceFile string
	Cause      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract frame %d from %q: %v", e.FrameIndex, e.SourceFile, e.Cause)
}

func (e *ExtractionError) Unwrap() error {
	return e.Cause
}
