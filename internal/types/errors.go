package types

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse builds a consistent API error payload.
// details can be string, map, struct, etc.
func NewErrorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// ConfigErrorKind classifies configuration-phase failures
type ConfigErrorKind int

const (
	KindSessionUnavailable ConfigErrorKind = iota + 1
	KindSlaveUnavailable
	KindPdoMappingRejected
	KindEntryRegistrationFailed
	KindDomainUnavailable
	KindReferenceClockFailed
	KindActivationFailed
)

func (k ConfigErrorKind) String() string {
	switch k {
	case KindSessionUnavailable:
		return "session unavailable"
	case KindSlaveUnavailable:
		return "slave unavailable"
	case KindPdoMappingRejected:
		return "pdo mapping rejected"
	case KindEntryRegistrationFailed:
		return "entry registration failed"
	case KindDomainUnavailable:
		return "domain unavailable"
	case KindReferenceClockFailed:
		return "reference clock failed"
	case KindActivationFailed:
		return "activation failed"
	default:
		return "unknown config error"
	}
}

// ConfigError is returned by every configuration-phase operation.
type ConfigError struct {
	Kind    ConfigErrorKind
	Slave   string
	Address *BusAddress
	Err     error
}

var (
	ErrSessionUnavailable      = &ConfigError{Kind: KindSessionUnavailable}
	ErrSlaveUnavailable        = &ConfigError{Kind: KindSlaveUnavailable}
	ErrPdoMappingRejected      = &ConfigError{Kind: KindPdoMappingRejected}
	ErrEntryRegistrationFailed = &ConfigError{Kind: KindEntryRegistrationFailed}
	ErrDomainUnavailable       = &ConfigError{Kind: KindDomainUnavailable}
	ErrReferenceClockFailed    = &ConfigError{Kind: KindReferenceClockFailed}
	ErrActivationFailed        = &ConfigError{Kind: KindActivationFailed}
)

// NewConfigError builds a ConfigError for a slave. addr may be nil for session-wide errors.
func NewConfigError(kind ConfigErrorKind, slave string, addr *BusAddress, err error) *ConfigError {
	return &ConfigError{Kind: kind, Slave: slave, Address: addr, Err: err}
}

func (e *ConfigError) Error() string {
	msg := e.Kind.String()
	if e.Slave != "" {
		msg += " (slave " + e.Slave
		if e.Address != nil {
			msg += " at " + e.Address.String()
		}
		msg += ")"
	} else if e.Address != nil {
		msg += " (at " + e.Address.String() + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is matches any ConfigError of the same kind, so the Err* sentinels work with errors.Is.
func (e *ConfigError) Is(target error) bool {
	t, ok := target.(*ConfigError)
	return ok && t.Kind == e.Kind
}

// Fatal reports whether the kind always aborts startup regardless of the partial-bus policy.
func (e *ConfigError) Fatal() bool {
	switch e.Kind {
	case KindSlaveUnavailable, KindPdoMappingRejected:
		return false
	default:
		return true
	}
}
