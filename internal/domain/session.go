// Package domain contains entity without logic, just meta-data
package domain

import "github.com/google/uuid"

// SessionID identifies one connection. A fresh one is minted per connection
// and never handed out again.
type SessionID string

func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}

func (id SessionID) String() string { return string(id) }
