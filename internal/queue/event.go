// Package queue defines message payloads exchanged over the message broker.
package queue

// TemplateSeatReserved is the template key the email collaborator uses
// to render the reserved-seat notification.
const TemplateSeatReserved = "WAIT_QUEUE_RESERVED_SEAT_CREATED"

// SeatReservedEvent is published when a wait-queue cycle offers a freed
// seat to a waiting user. It carries enough information for the email
// worker to render and send the templated notification without querying
// the primary database.
type SeatReservedEvent struct {
	Template    string `json:"template"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	RetreatID   uint64 `json:"retreat_id"`
	RetreatName string `json:"retreat_name"`
	StartTime   string `json:"start_time"`
	ReservedAt  string `json:"reserved_at"`
}
