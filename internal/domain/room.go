package domain

type (
	RoomID string
	// ConnID identifies one transport connection; it is valid only while the
	// connection is open and is never reused.
	ConnID string
)
