package relay

import "fmt"

// AuthError is returned when the relay answers with a bare string where an
// object was expected. The relay does this for a rejected password.
type AuthError struct {
	Endpoint string
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("relay %s refused: %s", e.Endpoint, e.Message)
}

// ActionError is a do-actions.json reply other than "OK".
type ActionError struct {
	Message string
}

func (e *ActionError) Error() string {
	return "action rejected: " + e.Message
}
