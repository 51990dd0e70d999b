// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the game handler.
// These provide more specific reasons for closure than standard codes.
const (
	BadSubprotocolError   = 3000 // Client connected with an unsupported subprotocol.
	InvalidAuthTokenError = 3001 // Session token was missing, invalid or expired.
	InvalidPlayerIDError  = 3002 // The token's player is no longer in the token's room.
	InvalidRoomCodeError  = 3003 // The token's room does not exist anymore.
)
