/*
Package domain contains the core model of the Parley conversation runtime.

It defines the static bot definition (intents, entities, the execution graph and its
guard expressions) and the per-turn values flowing through the engine (recognized
event instances, context instances and action results). The package is kept pure:
no I/O, no persistence, no goroutines.

# Key Entities

  - Graph: arena of States; transitions reference their target by StateID.
  - Guard: sum type of boolean expression nodes (IntentEquals, And, Or, Not, Literal, Condition).
  - EventInstance: the result of recognizing an input against registered definitions.
  - ActionResult: the captured outcome of one action invocation, errors included.
  - SessionSnapshot: the persisted form of a session.
*/
package domain
