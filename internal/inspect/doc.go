// Package inspect serves a read-mostly HTTP view of a running mirror.
//
// Ownership boundary:
// - reads go through Core.Do so they run on the mirror's event loop
// - mutations go through the Core's outbound calls and return once the
//   server's echo has been applied
// - the server never touches mirror objects outside the event loop beyond
//   their immutable handle and type
package inspect
