/*
Package session serializes access to per-visitor progress state.

A visitor session owns its NavigationState, but the HTTP adapter can
receive overlapping requests for the same session (double-clicks, retried
fetches). The Manager guarantees that load-mutate-save cycles for one
progress key never interleave, using reference-counted in-process locks
that are garbage collected when idle.
*/
package session
