package model

import "time"

type User struct {
	ID           string
	Email        string
	Phone        string // E.164-ish, e.g. 2547XXXXXXXX; empty if unknown
	RegisteredAt time.Time
}
