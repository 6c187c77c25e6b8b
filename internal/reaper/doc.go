// Package reaper evicts abandoned relay state.
//
// A request whose client never connects leaves a buffered result behind; a
// client whose result never arrives leaves a connection marker behind. The
// [Reaper] sweeps both stores on a fixed period and drops entries older than
// a fixed age, so memory stays bounded without any delivery confirmation.
package reaper
