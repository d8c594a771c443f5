// Package statuscode defines the small integer status codes the directory
// returns and the dispatcher forwards verbatim as the wire's status byte.
package statuscode

// Code is a single-byte status code, wire-compatible since every status
// field on the wire is a single raw byte.
type Code uint8

// Byte returns the wire representation of the code.
func (c Code) Byte() byte {
	return byte(c)
}

// Register codes.
const (
	RegisterOK         Code = 0
	RegisterNameExists Code = 1
	RegisterOther      Code = 2
)

// Unregister codes.
const (
	UnregisterOK       Code = 0
	UnregisterNotFound Code = 1
	UnregisterOther    Code = 2
)

// Connect codes.
const (
	ConnectOK               Code = 0
	ConnectNotFound         Code = 1
	ConnectAlreadyConnected Code = 2
	ConnectOther            Code = 3
)

// Disconnect codes.
const (
	DisconnectOK           Code = 0
	DisconnectNotFound     Code = 1
	DisconnectNotConnected Code = 2
	DisconnectOther        Code = 3
)

// Publish codes.
const (
	PublishOK               Code = 0
	PublishUserNotFound     Code = 1
	PublishUserNotConnected Code = 2
	PublishPathExists       Code = 3
	PublishOther            Code = 4
)

// Delete codes.
const (
	DeleteOK               Code = 0
	DeleteUserNotFound     Code = 1
	DeleteUserNotConnected Code = 2
	DeleteFileNotFound     Code = 3
	DeleteOther            Code = 4
)

// ListConnected (LIST_USERS) codes.
const (
	ListConnectedOK                 Code = 0
	ListConnectedRequesterNotFound  Code = 1
	ListConnectedRequesterNotOnline Code = 2
	ListConnectedOther              Code = 3
)

// ListFiles (LIST_CONTENT) codes.
const (
	ListFilesOK                 Code = 0
	ListFilesTargetNotFound     Code = 1
	ListFilesRequesterNotOnline Code = 2
	ListFilesRequesterNotFound  Code = 3
	ListFilesOther              Code = 4
)

// GetMultifile reuses the ListConnected codes for its preliminary requester
// check, plus its own wire-level "no peers" code.
const (
	MultifileNoPeers Code = 1
)

// MaxMatches is the wire cap on GET_MULTIFILE's match count, a single byte.
const MaxMatches = 255
