package models

import "time"

// Ticket is the minimal view of a support ticket this service needs: enough
// to stamp notifications with a human-readable code. Full ticket CRUD lives
// in the ticketing service.
type Ticket struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Code      string    `json:"code" gorm:"uniqueIndex;not null"`
	Subject   string    `json:"subject"`
	Status    string    `json:"status" gorm:"default:open"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
