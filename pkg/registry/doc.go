// Package registry maps (platform, action) pairs to their implementations and turns
// declared action calls into invocable actions.
package registry
