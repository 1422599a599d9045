package server

// Gateway is everything the room logic needs from the transport. Delivery
// is fire-and-forget: implementations must not block the caller on I/O,
// since calls are made while a room lock is held.
type Gateway interface {
	Send(connectionID, event string, payload any)
	BroadcastToRoom(roomID, event string, payload any, exclude ...string)
	JoinRoom(connectionID, roomID string)
	LeaveRoom(connectionID, roomID string)
}
