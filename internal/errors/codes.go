// Package errors provides machine-readable failure tokens for command handling.
//
// Commands never panic on domain failures: a handler returns a nil *Rejection
// on success or a Rejection carrying one of the tokens below. The sender of a
// failed command receives the token in an error envelope; nobody else is
// notified. Infrastructure failures (missing content files, storage I/O) are
// ordinary Go errors and propagate.
package errors

// Code is a machine-readable error token.
type Code string

const (
	// CodeUnknownType indicates an unrecognized command envelope type.
	CodeUnknownType Code = "unknown-type"
	// CodeInvalidArgument indicates a missing or malformed command payload.
	CodeInvalidArgument Code = "invalid-argument"

	// Structural lookup failures. These are distinct from rule violations so
	// callers can tell "never existed" from "not allowed".
	CodeRoomNotFound         Code = "room-not-found"
	CodeTeamNotFound         Code = "team-not-found"
	CodeNoGame               Code = "no-game"
	CodeCardNotFound         Code = "card-not-found"
	CodePlayerNotFound       Code = "player-not-found"
	CodeNotificationNotFound Code = "notification-not-found"

	// Domain rule violations.
	CodeRoomExists        Code = "room-exists"
	CodeTeamExists        Code = "team-exists"
	CodeDuplicateMember   Code = "duplicate-member"
	CodeWhitelistDenied   Code = "whitelist-denied"
	CodeNotTeamMember     Code = "not-a-team-member"
	CodeQuorumNotMet      Code = "quorum-not-met"
	CodeRoleTaken         Code = "role-taken"
	CodeInvalidRole       Code = "invalid-role"
	CodeNotLeader         Code = "not-leader"
	CodeGameAlreadyActive Code = "game-already-active"
	CodeNoInvites         Code = "no-invites"
)
