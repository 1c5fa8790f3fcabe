/*
Package domain contains the core models shared by every conductor component.

It is kept free of I/O so that the registry, the pipeline stages and the
adapters can all depend on it without depending on each other.

# Key Entities

  - Session: one lot being printed and scanned, with its RUNNING/PAUSED/FINISHED state.
  - Context: the typed execution context threaded through a pipeline run.
  - InputMap: the binding from a physical input line to a pipeline.
  - Run: the observable record of one pipeline execution.
  - Error: the tagged error type; callers branch on Error.Kind.
*/
package domain
