/*
Package dispatch turns physical input activations into pipeline runs.

A Dispatcher resolves input N to its input map (cached for the lifetime of
the process), picks the mapped pipeline and runs it with N as the seed. Each
run is tracked from QUEUED to FINISHED or FAILED.

An input with a run still in flight is rejected with an input_busy error, so
one origin input never has two concurrent runs. Runs for different inputs
proceed independently. With WithWorkers the runs execute on a bounded pool
and a full queue is reported as queue_full instead of blocking the monitor.

A Monitor feeds the dispatcher from a board, either by polling for rising
edges or by consuming the event stream of boards that push them.
*/
package dispatch
