// Package events publishes authentication events (e.g. to Kafka) for downstream consumers.
package events

import (
	"context"
	"log"
	"time"
)

// AuthEvent is one published authentication outcome.
type AuthEvent struct {
	UserID     string    `json:"user_id,omitempty"`
	Action     string    `json:"action"` // login_success, login_failure, register, logout, refresh_success, refresh_failure
	IP         string    `json:"ip,omitempty"`
	Device     string    `json:"device,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Producer emits auth events. Callers use it best-effort: log and ignore errors.
type Producer interface {
	// Emit sends a single auth event. Implementations may block briefly; use EmitAsync from request paths.
	Emit(ctx context.Context, event *AuthEvent) error
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}

// emitTimeout is the max time allowed for a single async emit.
const emitTimeout = 5 * time.Second

// EmitAsync runs Emit in a goroutine with a short timeout so the caller is not blocked.
// Use from the auth workflow for fire-and-forget, best-effort events; errors are logged.
//
// producer and event may be nil; EmitAsync returns immediately without starting a goroutine.
// The goroutine uses context.Background() with emitTimeout so request cancellation does not abort an in-flight emit.
func EmitAsync(producer Producer, event *AuthEvent) {
	if producer == nil || event == nil {
		return
	}
	go func() {
		emitCtx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := producer.Emit(emitCtx, event); err != nil {
			log.Printf("events: async emit failed: %v", err)
		}
	}()
}
