package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/socialgravity/socialgravity/internal/transport"
)

const fallbackConversionMessage = "video conversion failed"

// ValidationError rejects input before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TriggerError means the conversion trigger answered but did not accept the job.
type TriggerError struct {
	VideoID string
	Reason  string
}

func (e *TriggerError) Error() string {
	return fmt.Sprintf("conversion trigger for video %s failed: %s", e.VideoID, e.Reason)
}

// ConversionError is a terminal error reported by the tracking record.
type ConversionError struct {
	VideoID string
	Message string
}

func (e *ConversionError) Error() string {
	return e.Message
}

// ConversionTimeoutError means the attempt budget ran out with the record
// still in a non-terminal state.
type ConversionTimeoutError struct {
	VideoID  string
	Attempts int
	Elapsed  time.Duration
}

func (e *ConversionTimeoutError) Error() string {
	return fmt.Sprintf("video %s still not converted after %d attempts (%s)", e.VideoID, e.Attempts, e.Elapsed.Round(time.Second))
}

// AnalysisError is a terminal error status on the simulation itself.
type AnalysisError struct {
	SimulationID string
	Status       string
	Message      string
}

func (e *AnalysisError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("simulation %s ended with status %q", e.SimulationID, e.Status)
	}
	return fmt.Sprintf("simulation %s failed: %s", e.SimulationID, e.Message)
}

// PhaseError records which state a run was in when it failed.
type PhaseError struct {
	State        State
	SimulationID string
	Err          error
}

func (e *PhaseError) Error() string {
	if e.SimulationID == "" {
		return fmt.Sprintf("%s: %v", e.State, e.Err)
	}
	return fmt.Sprintf("%s (simulation %s): %v", e.State, e.SimulationID, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// Describe turns a lifecycle failure into a sentence that tells the user
// whether to fix input, re-upload, wait or retry.
func Describe(err error) string {
	if err == nil {
		return ""
	}

	var (
		validation *ValidationError
		trigger    *TriggerError
		conversion *ConversionError
		timeout    *ConversionTimeoutError
		analysis   *AnalysisError
		transErr   *transport.Error
	)
	switch {
	case errors.As(err, &validation):
		return fmt.Sprintf("Check your input: %s %s.", validation.Field, validation.Reason)
	case errors.As(err, &trigger):
		return fmt.Sprintf("The video could not be queued for conversion (%s). Upload it again.", trigger.Reason)
	case errors.As(err, &conversion):
		return fmt.Sprintf("Video conversion failed: %s. Try re-encoding the file and upload it again.", conversion.Message)
	case errors.As(err, &timeout):
		return "Video conversion is taking longer than expected. It may still be processing, so check back later with `sg status`."
	case errors.As(err, &analysis):
		if analysis.Message != "" {
			return fmt.Sprintf("Analysis failed: %s. Start a new simulation to try again.", analysis.Message)
		}
		return "Analysis failed. Start a new simulation to try again."
	case errors.As(err, &transErr):
		if transErr.StatusCode == 0 {
			return fmt.Sprintf("Could not reach the backend (%s). Check your connection and retry.", transErr.Target)
		}
		return fmt.Sprintf("The backend rejected %s with %s. Retry in a moment.", transErr.Target, transErr.Status)
	case errors.Is(err, context.Canceled):
		return "Stopped before the simulation finished."
	case errors.Is(err, context.DeadlineExceeded):
		return "Timed out waiting for the backend."
	}
	return err.Error()
}
