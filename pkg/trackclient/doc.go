// Package trackclient is the client core of the delivery tracking
// system: the REST snapshot fetcher, the shared real-time location
// channel with ref-counted room membership, the tracking session
// controller that reconciles push and poll updates, the map viewport
// model, and the scan-decode loop.
//
// The package is transport-agnostic at its seams: the session
// controller accepts any SnapshotFetcher and RoomChannel, and the scan
// loop accepts any FrameSource, so every piece is testable without a
// server, a socket, or a camera.
package trackclient
