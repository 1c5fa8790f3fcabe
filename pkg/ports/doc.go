/*
Package ports defines the driven ports (interfaces) of conductor.

These interfaces decouple the session registry, the pipeline stages and the
dispatcher from the concrete devices and storage backends they talk to.

# Key Interfaces

  - SessionStore: persists session records and their transition history.
  - LineChannel: scoped text exchanges with printers and scanners.
  - SerialAllocator: the serial-number service.
  - InputReader / InputWatcher / OutputController: the digital I/O board.
  - DistributedLocker: serialises pipeline runs of one input across replicas.
*/
package ports
