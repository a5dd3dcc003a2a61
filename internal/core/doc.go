// Package core owns the client-side mirror of a remote object graph.
//
// Ownership boundary:
//   - core owns the object registry, the type catalog, the kind resolver and
//     the current root; nothing else mutates them
//   - every mutation flows through the notification handler table and runs
//     on the goroutine driving Run (or calling HandleMessage directly)
//   - outbound calls only send; the mirror changes when the server echoes
//     the change back as a notification
package core
