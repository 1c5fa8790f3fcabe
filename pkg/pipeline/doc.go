/*
Package pipeline runs ordered sequences of stages against a shared execution
context.

Pipelines are assembled once at startup: a Factory maps stage class names to
constructors and Build turns a Definition (class names plus string
parameters) into a *Pipeline. Parameters are decoded onto a struct that
already holds the stage defaults, so a missing parameter keeps its default.

Stages of one run execute sequentially on the calling goroutine, which is why
the shared *domain.Context needs no locking.
*/
package pipeline
