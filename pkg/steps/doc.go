/*
Package steps provides the concrete pipeline stages.

The standard start pipeline (triggered by the start input) reads the job from
the printer, derives the serial pool and the scanner match string, loads the
scanner and registers a session:

	JobFieldsStep -> GetSerialIdentifierStep -> MatchStringCommandStep ->
	TemplateStep -> TelnetStep -> StartSessionStep -> SetOutputsStep

The print pipeline (triggered by the print input) continues that session:

	GetSessionStep -> PrintLabelStep

Stages that talk to a device raise their Error Output Port from OnFailure
when an output controller is configured.
*/
package steps
