package core

// Severity classifies a user-visible notice.
type Severity string

const (
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

// Notice is a message meant for the person driving the pipeline. The caller
// decides how to render it.
type Notice struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Err      error    `json:"-"`
}

// NewWarning builds a WARNING notice.
func NewWarning(message string, err error) Notice {
	return Notice{Severity: SeverityWarning, Message: message, Err: err}
}

// NewFailure builds an ERROR notice whose message is the error text.
func NewFailure(err error) Notice {
	return Notice{Severity: SeverityError, Message: err.Error(), Err: err}
}

func (n Notice) String() string {
	return string(n.Severity) + ": " + n.Message
}
