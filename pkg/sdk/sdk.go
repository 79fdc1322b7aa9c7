// Package sdk holds the public realtime contract: the event model, the
// Publisher interface collaborators depend on, and a streaming client.
package sdk

// Publisher is the only sanctioned way for mutation handlers to announce a
// domain event. userID is the originator and may be empty.
type Publisher interface {
	Publish(p Payload, userID string)
}
