// internal/protocol/errors.go
package protocol

// Kind identifies a protocol error on the wire. The set is closed; the
// string form is what travels inside a fail frame.
type Kind string

const (
	KindNoSuchRoom             Kind = "NoSuchRoom"
	KindNoSuchPlayer           Kind = "NoSuchPlayer"
	KindGameAlreadyStarted     Kind = "GameAlreadyStarted"
	KindUnauthorizedGameServer Kind = "UnauthorizedGameServer"
	KindUnauthorizedPlayer     Kind = "UnauthorizedPlayer"
	KindPlayerNotInRoom        Kind = "PlayerNotInRoom"
	KindGameNotRunning         Kind = "GameNotRunning"
	KindNotPlayersTurn         Kind = "NotPlayersTurn"
	KindGameFull               Kind = "GameFull"
	KindExistingPlayer         Kind = "ExistingPlayer"
	KindIllegalMove            Kind = "IllegalMove"
	KindRegistrationFailed     Kind = "RegistrationFailed"
	KindInputValidation        Kind = "InputValidationError"
	KindAlreadyInTournament    Kind = "AlreadyInTournament"
	KindServerError            Kind = "ServerError"
)

// kindDetails is the default human-readable detail per kind.
var kindDetails = map[Kind]string{
	KindNoSuchRoom:             "the specified room does not exist",
	KindNoSuchPlayer:           "the specified player does not exist",
	KindGameAlreadyStarted:     "the room cannot be joined as the game has already begun",
	KindUnauthorizedGameServer: "the specified room is owned by a different game server",
	KindUnauthorizedPlayer:     "the specified player is owned by a different connection",
	KindPlayerNotInRoom:        "the specified player is in a different room",
	KindGameNotRunning:         "the game has either not started or is already finished",
	KindNotPlayersTurn:         "it is not currently your turn",
	KindGameFull:               "the game already has its full complement of players",
	KindExistingPlayer:         "the player is already seated in this game",
	KindIllegalMove:            "the attempted move is not legal",
	KindRegistrationFailed:     "the game server rejected the registration",
	KindInputValidation:        "the event payload failed validation",
	KindAlreadyInTournament:    "the bot is already enrolled in this tournament",
	KindServerError:            "the broker could not complete the operation",
}

// playerFault marks the kinds attributable to a misbehaving player rather
// than a game server. Player errors are always recoverable for the room.
var playerFault = map[Kind]bool{
	KindGameAlreadyStarted:  true,
	KindUnauthorizedPlayer:  true,
	KindGameNotRunning:      true,
	KindNotPlayersTurn:      true,
	KindGameFull:            true,
	KindRegistrationFailed:  true,
	KindAlreadyInTournament: true,
}

// Error is the one failure shape the broker ever sends back. It maps 1:1 to
// the body of a fail frame.
type Error struct {
	Kind         Kind   `json:"error"`
	Details      string `json:"details"`
	RespondingTo string `json:"respondingTo,omitempty"`
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Details
}

// PlayerFault reports whether the error blames the player side.
func (e *Error) PlayerFault() bool {
	return playerFault[e.Kind]
}

// NewError builds an Error with the default detail for kind.
func NewError(kind Kind) *Error {
	return &Error{Kind: kind, Details: kindDetails[kind]}
}

// Errorf builds an Error with a specific detail string.
func Errorf(kind Kind, details string) *Error {
	return &Error{Kind: kind, Details: details}
}

// KindOf resolves a wire string to a known kind. Unknown strings map to
// KindInputValidation so a garbled fail frame still surfaces as an error.
func KindOf(s string) Kind {
	k := Kind(s)
	if _, ok := kindDetails[k]; ok {
		return k
	}
	return KindInputValidation
}
