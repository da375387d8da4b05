// Package runtime contains the execution engine that drives sessions through a
// bot's execution graph.
package runtime
