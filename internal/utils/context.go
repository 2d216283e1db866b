// Package utils provides general-purpose helper utilities used across
// different parts of the application: context keys, HTTP response writing
// and other common operations.
package utils

import (
	"context"
)

// contextKey is a private type for context keys.
// Using a dedicated type instead of a plain string prevents key collisions
// with other packages that may use string-based keys in the context.
type contextKey string

// String returns the string representation of the context key.
// Implements the fmt.Stringer interface.
func (c contextKey) String() string {
	return string(c)
}

// ActorIDCtxKey is the key used to store the acting user identifier in the
// context. The conflict API records this actor in the resolution audit trail.
//
// Example of writing a value to the context:
//
//	ctx := context.WithValue(ctx, utils.ActorIDCtxKey, "inspector-7")
var ActorIDCtxKey = contextKey("actorID")

// GetActorIDFromContext retrieves the acting user identifier from the context.
//
// Returns the actor ID and an ok flag:
//   - ok == true  — value is found and has the correct string type
//   - ok == false — value is missing or has an unexpected type
func GetActorIDFromContext(ctx context.Context) (string, bool) {
	actorID, ok := ctx.Value(ActorIDCtxKey).(string)
	return actorID, ok
}
