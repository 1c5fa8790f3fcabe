package steps_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aretw0/conductor/pkg/adapters/memory"
	"github.com/aretw0/conductor/pkg/codec"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/pipeline"
	"github.com/aretw0/conductor/pkg/ports"
	"github.com/aretw0/conductor/pkg/session"
	"github.com/aretw0/conductor/pkg/steps"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jobReply = "JDL|GTIN=00012345678905|LOT=W6G|EXPIRY=2211|\r"

// fakeChannel answers exchanges from a queue and records every request.
type fakeChannel struct {
	mu       sync.Mutex
	replies  []string
	err      error
	requests []ports.Request
}

func (f *fakeChannel) Exchange(ctx context.Context, req ports.Request) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(req.Terminator) == 0 {
		return nil, nil
	}
	if len(f.replies) == 0 {
		return nil, domain.DeviceUnreachable(req.Host, req.Port, errors.New("timeout"))
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return []byte(r), nil
}

type fixture struct {
	channel  *fakeChannel
	board    *memory.Board
	serials  *memory.SerialPools
	registry *session.Registry
	inputs   ports.StaticInputMaps
	factory  *pipeline.Factory
}

func newFixture(replies ...string) *fixture {
	return &fixture{
		channel: &fakeChannel{replies: replies},
		board:   memory.NewBoard(),
		serials: memory.NewSerialPools(
			domain.PoolRange{Name: "00012345678905", Start: 1000},
			domain.PoolRange{Name: "DEFAULT", Start: 1, Width: 4},
		),
		registry: session.NewRegistry(memory.NewStore()),
		inputs: ports.StaticInputMaps{
			2: {Input: 2, Pipeline: "init"},
			4: {Input: 4, Pipeline: "print", RelatedSessionInput: 2, RuleData: "line-a"},
			5: {Input: 5, Pipeline: "print"},
		},
		factory: steps.NewFactory(),
	}
}

func (f *fixture) deps() pipeline.Deps {
	return pipeline.Deps{
		Sessions: f.registry,
		Channel:  f.channel,
		Outputs:  f.board,
		Serials:  f.serials,
		Inputs:   f.inputs,
	}
}

func (f *fixture) stage(t *testing.T, class string, params map[string]string) pipeline.Stage {
	t.Helper()
	s, err := f.factory.New(class, params, f.deps())
	require.NoError(t, err)
	return s
}

func TestJobFieldsStep(t *testing.T) {
	f := newFixture(jobReply)
	s := f.stage(t, steps.ClassJobFields, nil)
	run := domain.NewContext()

	out, err := s.Execute(context.Background(), 2, run)
	require.NoError(t, err)
	assert.Equal(t, 2, out)

	assert.Equal(t, map[string]string{"GTIN": "00012345678905", "LOT": "W6G", "EXPIRY": "2211"}, run.JobFields)
	assert.Equal(t, "printer", run.PrinterHost)
	assert.Equal(t, 777, run.PrinterPort)
	assert.Equal(t, 2, run.IOPort)

	require.Len(t, f.channel.requests, 1)
	req := f.channel.requests[0]
	assert.Equal(t, "GJD\r", string(req.Payload))
	assert.Equal(t, "\r", string(req.Terminator))
	assert.Equal(t, "printer", req.Host)
	assert.Equal(t, 777, req.Port)
}

func TestJobFieldsStep_NoMarkerLeavesContext(t *testing.T) {
	f := newFixture("NOPE|\r")
	s := f.stage(t, steps.ClassJobFields, nil)
	run := domain.NewContext()

	_, err := s.Execute(context.Background(), 2, run)
	assert.ErrorIs(t, err, domain.ErrPrinter)
	assert.Equal(t, domain.NewContext(), run, "a failed query must not mutate the context")
	assert.Equal(t, 3, domain.BlinkCode(err))
}

func TestJobFieldsStep_OnFailureRaisesErrorOutput(t *testing.T) {
	f := newFixture()
	f.channel.err = domain.DeviceUnreachable("printer", 777, errors.New("refused"))
	p, err := f.factory.Build(pipeline.Definition{
		Name:   "init",
		Stages: []pipeline.StageConfig{{Class: steps.ClassJobFields, Params: map[string]string{"Error Output Port": "7"}}},
	}, f.deps())
	require.NoError(t, err)

	_, err = p.Run(context.Background(), 2, nil)
	assert.ErrorIs(t, err, domain.ErrDeviceUnreachable)
	assert.True(t, f.board.Output(7), "the error output is raised before the error is reported")
}

func TestGetSerialIdentifierStep(t *testing.T) {
	f := newFixture()
	s := f.stage(t, steps.ClassSerialIdentifier, nil)

	_, err := s.Execute(context.Background(), nil, domain.NewContext())
	assert.ErrorIs(t, err, domain.ErrNoJobFields)
	assert.Equal(t, 2, domain.BlinkCode(err))

	run := domain.NewContext()
	run.JobFields = map[string]string{"LOT": "W6G"}
	_, err = s.Execute(context.Background(), nil, run)
	assert.ErrorIs(t, err, domain.ErrNoJobFields)

	run.JobFields["GTIN"] = "00012345678905"
	_, err = s.Execute(context.Background(), nil, run)
	require.NoError(t, err)
	assert.Equal(t, "00012345678905", run.SerialIdentifier)

	custom := f.stage(t, steps.ClassSerialIdentifier, map[string]string{"Serial Identifier Field": "LOT"})
	_, err = custom.Execute(context.Background(), nil, run)
	require.NoError(t, err)
	assert.Equal(t, "W6G", run.SerialIdentifier)
}

func TestMatchStringCommandStep(t *testing.T) {
	f := newFixture()
	s := f.stage(t, steps.ClassMatchString, nil)

	fields := map[string]string{"EXPIRY": "2211", "LOT": "W6G"}
	assert.Equal(t, "*2211*W6G*", s.(*steps.MatchStringCommandStep).MatchString(fields))

	run := domain.NewContext()
	run.JobFields = fields
	_, err := s.Execute(context.Background(), 2, run)
	require.NoError(t, err)

	decoded, err := codec.DecodeMatchCommand(run.MatchString)
	require.NoError(t, err)
	assert.Equal(t, "*2211*W6G*", decoded)

	padded := f.stage(t, steps.ClassMatchString, map[string]string{"Match String Keys": "LOT, MISSING"})
	run.JobFields = map[string]string{"LOT": " W6G "}
	_, err = padded.Execute(context.Background(), 2, run)
	require.NoError(t, err)
	decoded, _ = codec.DecodeMatchCommand(run.MatchString)
	assert.Equal(t, "*W6G**", decoded)

	_, err = s.Execute(context.Background(), 2, domain.NewContext())
	assert.ErrorIs(t, err, domain.ErrNoJobFields)
}

func TestTemplateAndTelnetSteps(t *testing.T) {
	f := newFixture()
	tmpl := f.stage(t, steps.ClassTemplate, nil)
	telnet := f.stage(t, steps.ClassTelnet, map[string]string{"Port": "2001"})

	run := domain.NewContext()
	run.MatchString = "2a323231312a5736472a"

	out, err := tmpl.Execute(context.Background(), 2, run)
	require.NoError(t, err)
	assert.Equal(t, []byte("<K705,1,0,0><K231h,1,2a323231312a5736472a>"), out)

	_, err = telnet.Execute(context.Background(), out, run)
	require.NoError(t, err)
	require.Len(t, f.channel.requests, 1)
	assert.Equal(t, "scanner.local", f.channel.requests[0].Host)
	assert.Equal(t, 2001, f.channel.requests[0].Port)
	assert.Equal(t, out, f.channel.requests[0].Payload)

	_, err = telnet.Execute(context.Background(), 42, run)
	assert.ErrorIs(t, err, domain.ErrEncoding)

	_, err = f.factory.New(steps.ClassTemplate, map[string]string{"Template": "{{.Nope"}, f.deps())
	assert.Error(t, err)

	bad := f.stage(t, steps.ClassTemplate, map[string]string{"Template": "{{index .JobFields \"LOT\"}}"})
	run.JobFields = map[string]string{"LOT": "lötte"}
	_, err = bad.Execute(context.Background(), 2, run)
	assert.ErrorIs(t, err, domain.ErrEncoding)
}

func TestTelnetStep_ReadUntil(t *testing.T) {
	f := newFixture("OK\r")
	s := f.stage(t, steps.ClassTelnet, map[string]string{"Read Until": "\r"})

	out, err := s.Execute(context.Background(), "PING\r", domain.NewContext())
	require.NoError(t, err)
	assert.Equal(t, "OK\r", out)
}

func TestStartAndGetSessionSteps(t *testing.T) {
	f := newFixture()
	start := f.stage(t, steps.ClassStartSession, nil)
	get := f.stage(t, steps.ClassGetSession, nil)
	ctx := context.Background()

	run := domain.NewContext()
	run.JobFields = map[string]string{"GTIN": "00012345678905", "LOT": "W6G", "EXPIRY": "2211"}
	run.PrinterHost = "printer"
	run.PrinterPort = 777
	run.SerialIdentifier = "00012345678905"
	run.IOPort = 2
	_, err := start.Execute(ctx, 2, run)
	require.NoError(t, err)

	s, err := f.registry.GetSession(2)
	require.NoError(t, err)
	assert.Equal(t, "W6G", s.Lot)
	assert.Equal(t, "2211", s.Expiry)

	printRun := domain.NewContext()
	_, err = get.Execute(ctx, 4, printRun)
	require.NoError(t, err)
	assert.Equal(t, "W6G", printRun.JobFields["LOT"])
	assert.Equal(t, "00012345678905", printRun.SerialIdentifier)
	assert.Equal(t, 4, printRun.InputNumber)
	ruleData, _ := printRun.Get(steps.RuleDataKey)
	assert.Equal(t, "line-a", ruleData)

	_, err = get.Execute(ctx, 17, domain.NewContext())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = get.Execute(ctx, 5, domain.NewContext())
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "input 5 has no related session input")

	_, err = get.Execute(ctx, 9, domain.NewContext())
	assert.ErrorIs(t, err, domain.ErrNoInputMap)

	require.NoError(t, f.registry.PauseSession(ctx, "W6G"))
	_, err = get.Execute(ctx, 4, domain.NewContext())
	assert.ErrorIs(t, err, domain.ErrSessionNotActive)
}

func TestStartSessionStep_MissingData(t *testing.T) {
	f := newFixture()
	start := f.stage(t, steps.ClassStartSession, nil)
	ctx := context.Background()

	_, err := start.Execute(ctx, 2, domain.NewContext())
	assert.ErrorIs(t, err, domain.ErrNoJobFields)

	run := domain.NewContext()
	run.JobFields = map[string]string{"LOT": "W6G"}
	run.IOPort = 2
	_, err = start.Execute(ctx, 2, run)
	assert.ErrorIs(t, err, domain.ErrNoJobFields)

	run.JobFields["EXPIRY"] = "2211"
	run.IOPort = 0
	_, err = start.Execute(ctx, 2, run)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPrintLabelStep(t *testing.T) {
	f := newFixture("ACK\r", "ACK\r", "NAK\r")
	s := f.stage(t, steps.ClassPrintLabel, nil)
	ctx := context.Background()

	run := domain.NewContext()
	run.JobFields = map[string]string{"GTIN": "00012345678905"}
	run.SerialIdentifier = "00012345678905"
	run.PrinterHost = "line-a-printer"
	run.PrinterPort = 7777

	out, err := s.Execute(ctx, 4, run)
	require.NoError(t, err)
	assert.Equal(t, "1000", out)
	req := f.channel.requests[0]
	assert.Equal(t, "JDA|SERIAL_NUMBER=1000|\r", string(req.Payload))
	assert.Equal(t, "line-a-printer", req.Host, "the printer comes from the context")
	assert.Equal(t, 7777, req.Port)

	run.SerialIdentifier = "UNKNOWN"
	out, err = s.Execute(ctx, 4, run)
	require.NoError(t, err)
	assert.Equal(t, "0001", out, "an unknown pool falls back to DEFAULT")

	run.SerialIdentifier = "00012345678905"
	_, err = s.Execute(ctx, 4, run)
	assert.ErrorIs(t, err, domain.ErrPrinter)
}

func TestPrintLabelStep_Params(t *testing.T) {
	f := newFixture("ACK\r")
	s := f.stage(t, steps.ClassPrintLabel, map[string]string{
		"Host":                "10.0.0.9",
		"Port":                "9100",
		"Serial Number Field": "SN",
		"Printer Command":     "JDU|{0}={1}|`JDA|",
		"Use Default Pool":    "false",
	})
	ctx := context.Background()

	run := domain.NewContext()
	run.JobFields = map[string]string{"GTIN": "00012345678905"}
	run.SerialIdentifier = "00012345678905"

	_, err := s.Execute(ctx, 4, run)
	require.NoError(t, err)
	req := f.channel.requests[0]
	assert.Equal(t, "10.0.0.9", req.Host)
	assert.Equal(t, 9100, req.Port)
	assert.Equal(t, "JDU|SN=1000|\rJDA|\r", string(req.Payload))

	run.SerialIdentifier = "UNKNOWN"
	_, err = s.Execute(ctx, 4, run)
	assert.ErrorIs(t, err, domain.ErrPoolNotFound)
}

func TestPrintLabelStep_RequiresContext(t *testing.T) {
	f := newFixture()
	s := f.stage(t, steps.ClassPrintLabel, nil)

	_, err := s.Execute(context.Background(), 4, domain.NewContext())
	assert.ErrorIs(t, err, domain.ErrNoJobFields)

	run := domain.NewContext()
	run.JobFields = map[string]string{"GTIN": "x"}
	_, err = s.Execute(context.Background(), 4, run)
	assert.ErrorIs(t, err, domain.ErrNoJobFields)
	assert.Empty(t, f.channel.requests)
}

func TestSetOutputsStep(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	on := f.stage(t, steps.ClassSetOutputs, map[string]string{"Output List": "6,8", "On": "True"})
	_, err := on.Execute(ctx, 2, domain.NewContext())
	require.NoError(t, err)
	assert.True(t, f.board.Output(6))
	assert.True(t, f.board.Output(8))

	off := f.stage(t, steps.ClassSetOutputs, nil)
	_, err = off.Execute(ctx, 2, domain.NewContext())
	require.NoError(t, err)
	assert.False(t, f.board.Output(6))

	writes := f.board.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, []int{6, 8}, writes[1].Lines, "all lines are written in one batch")
}

func TestDeclaredParameters(t *testing.T) {
	f := newFixture()
	s := f.stage(t, steps.ClassJobFields, nil)

	names := map[string]string{}
	for _, p := range s.DeclaredParameters() {
		names[p.Name] = p.Default
	}
	assert.Equal(t, "printer", names["Host"])
	assert.Equal(t, "777", names["Port"])
	assert.Equal(t, "2", names["Error Output Port"])
}

func TestStandardPipelines(t *testing.T) {
	f := newFixture(jobReply, "ACK\r")
	ctx := context.Background()

	pipes, err := f.factory.BuildAll([]pipeline.Definition{
		{Name: "init", Stages: []pipeline.StageConfig{
			{Class: steps.ClassJobFields},
			{Class: steps.ClassSerialIdentifier},
			{Class: steps.ClassMatchString},
			{Class: steps.ClassTemplate},
			{Class: steps.ClassTelnet, Params: map[string]string{"Port": "2001"}},
			{Class: steps.ClassStartSession},
			{Class: steps.ClassSetOutputs},
		}},
		{Name: "print", Stages: []pipeline.StageConfig{
			{Class: steps.ClassGetSession},
			{Class: steps.ClassPrintLabel},
		}},
	}, f.deps())
	require.NoError(t, err)

	_, err = pipes["init"].Run(ctx, 2, domain.NewContext())
	require.NoError(t, err)

	out, err := pipes["print"].Run(ctx, 4, domain.NewContext())
	require.NoError(t, err)
	assert.Equal(t, "1000", out)

	require.Len(t, f.channel.requests, 3)
	assert.Equal(t, "<K705,1,0,0><K231h,1,2a323231312a5736472a>", string(f.channel.requests[1].Payload))
	assert.Equal(t, "JDA|SERIAL_NUMBER=1000|\r", string(f.channel.requests[2].Payload))
}
