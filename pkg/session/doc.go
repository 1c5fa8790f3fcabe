/*
Package session implements the session registry.

A session is one print/scan unit of work identified by its lot. The start
input of a production line registers the session under its input number (the
origin input) and later inputs read it back through the registry, so a run
triggered by one input can continue the work started by another.

State machine per lot:

	(none) --start--> RUNNING --pause--> PAUSED --restart--> RUNNING --finish--> FINISHED
	RUNNING --finish--> FINISHED

Every transition is written to the configured ports.SessionStore, which keeps
the current record of the lot and appends a history row.

GetSession for an input assumes the start pipeline of the related input has
already completed. The registry does not wait for it.
*/
package session
