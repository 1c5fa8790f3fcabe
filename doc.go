/*
Package conductor runs the input-driven print and scan line of a labelling
station.

Physical inputs on an I/O board are mapped to pipelines. A pipeline is an
ordered list of stages that talk to line devices (label printer, barcode
scanner) over telnet, keep track of the lot being produced in a session
registry, and drive the board outputs to signal the operator.

# Concept

Every input number (1-16) is bound to one pipeline by an InputMap. When an
input rises, the dispatcher resolves its pipeline and runs it, either inline
or on a bounded worker pool. The standard line uses two bindings:

  - an "init" input that reads the printer job, arms the scanner and starts
    a session for the lot;
  - a "print" input that looks up the session of its related input and prints
    a serialised label.

# Usage

Build a Conductor from a configuration and run it until the context is done:

	cfg, err := config.Load("conductor.yaml")
	if err != nil {
		log.Fatal(err)
	}

	c, err := conductor.New(ctx, cfg, conductor.WithLogger(logger))
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	go http.ListenAndServe(cfg.Listen, c.Handler())
	if err := c.Run(ctx); err != nil {
		log.Fatal(err)
	}

Components that the configuration normally builds (board, line channel,
session store) can be replaced with options, which is how the tests drive
the whole line without hardware.
*/
package conductor
