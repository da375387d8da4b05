/*
Package session implements conversation sessions and their orchestration.

A Session bundles an identity, the current state in the execution graph, a
ContextStore of time-limited variables and free-form session variables. The
Manager serializes turns per session, integrating a local cache with optional
distributed locking and long-term storage adapters.
*/
package session
