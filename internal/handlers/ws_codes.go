// internal/handlers/ws_codes.go
package handlers

import "github.com/coder/websocket"

// Application close codes sent on the game and results sockets.
const (
	BadSubprotocolError   websocket.StatusCode = 3000 // client did not offer the expected subprotocol
	InvalidAuthTokenError websocket.StatusCode = 3001 // no usable identity could be established
	InvalidUserIDError    websocket.StatusCode = 3002 // token subject is not a player id
	InvalidGameIDError    websocket.StatusCode = 3003 // game id in the URL is malformed or unknown
	NotGameOwnerError     websocket.StatusCode = 3004 // game belongs to another player
	SlowConsumerError     websocket.StatusCode = 3005 // outbound buffer overflowed
)
