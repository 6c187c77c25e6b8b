// Package push implements the transports the delivery coordinator pushes
// results through.
//
// The main components are:
//
//   - [Hub]: in-process fan-out to Server-Sent Events subscribers, keyed by
//     destination
//   - [Webhook]: forwards results to an external push gateway over HTTP
//   - [Multi]: treats several transports as one
//
// Every transport is fire-and-forget. A push that nobody receives is lost;
// the relay never retries.
package push
