package model

// Quiz is generated quiz content together with what it cost.
type Quiz struct {
	Content       string `json:"content"`
	ReservationID string `json:"reservation_id"`
	Cost          int64  `json:"cost"`
	Balance       int64  `json:"balance"`
	Deficit       int64  `json:"deficit,omitempty"`
	Model         string `json:"model,omitempty"`
	// Pending is set when the caller went away before settlement finished
	// and the charge was handed to the background runner.
	Pending bool `json:"pending,omitempty"`
}
