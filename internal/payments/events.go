package payments

// Event is a verified, provider-neutral webhook notification. The concrete
// types below form a closed set; the reconciler switches over them.
type Event interface {
	EventID() string
	EventType() string
}

// SessionCompleted reports a settled hosted session.
type SessionCompleted struct {
	ID        string
	Type      string
	SessionID string
	IntentRef string
}

func (e SessionCompleted) EventID() string   { return e.ID }
func (e SessionCompleted) EventType() string { return e.Type }

// PaymentFailed reports a declined or abandoned payment.
type PaymentFailed struct {
	ID          string
	Type        string
	SessionID   string
	IntentRef   string
	FailureCode string
}

func (e PaymentFailed) EventID() string   { return e.ID }
func (e PaymentFailed) EventType() string { return e.Type }

// Unhandled wraps event types the reconciler acknowledges without acting on.
type Unhandled struct {
	ID   string
	Type string
}

func (e Unhandled) EventID() string   { return e.ID }
func (e Unhandled) EventType() string { return e.Type }
