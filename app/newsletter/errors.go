package newsletter

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	ErrConfiguration   = errors.New("configuration error")
	ErrSchemaViolation = errors.New("schema violation")
	ErrProvider        = errors.New("provider error")
	ErrNetwork         = errors.New("network error")
)

// StageError attributes a failure to the stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func NewStageError(stage Stage, err error) error {
	var se *StageError
	if errors.As(err, &se) && se.Stage == stage {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}

// StageOf returns the stage an error was attributed to, if any.
func StageOf(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}

func ConfigurationErrorf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrConfiguration)
}

func SchemaViolationf(stage Stage, format string, args ...any) error {
	err := errors.Mark(errors.Newf(format, args...), ErrSchemaViolation)
	return NewStageError(stage, errors.Wrapf(err, "%s output violates its contract", stage))
}

// MarkNetwork classifies a transport failure.
func MarkNetwork(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrNetwork)
}

// Kind names the taxonomy class of err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "ConfigurationError"
	case errors.Is(err, ErrSchemaViolation):
		return "SchemaViolation"
	case errors.Is(err, ErrProvider):
		return "ProviderError"
	case errors.Is(err, ErrNetwork):
		return "NetworkError"
	default:
		return "Error"
	}
}
