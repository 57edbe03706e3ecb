package upload

import "gallery-feed/internal/domain/entity"

// Kind tags the result of a submission.
type Kind int

const (
	// Success means the record was created and the feed invalidated.
	Success Kind = iota
	// ValidationFailed means at least one field broke a rule. No network call was made.
	ValidationFailed
	// NetworkError means the create request was sent and failed.
	NetworkError
	// MissingAsset means no hosted URL had been resolved for the file. No network call was made.
	MissingAsset
	// Rejected means another submission was still in flight. Nothing was done.
	Rejected
)

// String returns the snake_case name of the kind, used as a metric label.
func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case ValidationFailed:
		return "validation_failed"
	case NetworkError:
		return "network_error"
	case MissingAsset:
		return "missing_asset"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Outcome is the result of Submit. FieldErrors is set for ValidationFailed,
// Err for NetworkError, MissingAsset and Rejected.
type Outcome struct {
	Kind        Kind
	FieldErrors entity.FieldErrors
	Err         error
}

// OK reports whether the submission succeeded.
func (o Outcome) OK() bool {
	return o.Kind == Success
}

// Message is the user-facing notice for an outcome.
type Message struct {
	Title       string
	Description string
	Error       bool
}

// Message returns the notice shown to the user for o.
func (o Outcome) Message() Message {
	switch o.Kind {
	case Success:
		return Message{
			Title:       "Image registered",
			Description: "Your image was registered successfully.",
		}
	case ValidationFailed:
		return Message{
			Title:       "Invalid form",
			Description: "Fix the highlighted fields and try again.",
			Error:       true,
		}
	case MissingAsset:
		return Message{
			Title:       "Image not added",
			Description: "Add an image and wait for its upload to finish before registering.",
			Error:       true,
		}
	case Rejected:
		return Message{
			Title:       "Registration in progress",
			Description: "Wait for the current registration to finish.",
			Error:       true,
		}
	default:
		return Message{
			Title:       "Registration failed",
			Description: "An error occurred while trying to register your image.",
			Error:       true,
		}
	}
}
