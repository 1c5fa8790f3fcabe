package domain

import "maps"

// ContextKey names one slot of the execution context.
type ContextKey string

const (
	KeyJobFields        ContextKey = "JOB_FIELDS"
	KeyPrinterHost      ContextKey = "PRINTER_HOST"
	KeyPrinterPort      ContextKey = "PRINTER_PORT"
	KeySerialIdentifier ContextKey = "SERIAL_IDENTIFIER"
	KeyMatchString      ContextKey = "MATCH_STRING"
	KeyInputNumber      ContextKey = "INPUT_NUMBER"
	KeyIOPort           ContextKey = "IO_PORT"
)

// ContextKeys lists the keys in their canonical order.
var ContextKeys = []ContextKey{
	KeyJobFields,
	KeyPrinterHost,
	KeyPrinterPort,
	KeySerialIdentifier,
	KeyMatchString,
	KeyInputNumber,
	KeyIOPort,
}

// Context is the bag threaded through one pipeline run. Stages run
// sequentially on one goroutine, so it carries no lock.
//
// A zero value in a field means the key is absent.
type Context struct {
	JobFields        map[string]string `json:"JOB_FIELDS,omitempty"`
	PrinterHost      string            `json:"PRINTER_HOST,omitempty"`
	PrinterPort      int               `json:"PRINTER_PORT,omitempty"`
	SerialIdentifier string            `json:"SERIAL_IDENTIFIER,omitempty"`
	MatchString      string            `json:"MATCH_STRING,omitempty"`
	InputNumber      int               `json:"INPUT_NUMBER,omitempty"`
	IOPort           int               `json:"IO_PORT,omitempty"`

	// Extra holds stage-specific data outside the enumerated keys.
	Extra map[string]any `json:"extra,omitempty"`
}

// NewContext returns an empty context.
func NewContext() *Context {
	return &Context{}
}

// Has reports whether key holds a value.
func (c *Context) Has(key ContextKey) bool {
	if c == nil {
		return false
	}
	switch key {
	case KeyJobFields:
		return c.JobFields != nil
	case KeyPrinterHost:
		return c.PrinterHost != ""
	case KeyPrinterPort:
		return c.PrinterPort != 0
	case KeySerialIdentifier:
		return c.SerialIdentifier != ""
	case KeyMatchString:
		return c.MatchString != ""
	case KeyInputNumber:
		return c.InputNumber != 0
	case KeyIOPort:
		return c.IOPort != 0
	}
	return false
}

// Keys returns the populated keys in canonical order.
func (c *Context) Keys() []ContextKey {
	var keys []ContextKey
	for _, k := range ContextKeys {
		if c.Has(k) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Set stores an arbitrary value under name in Extra.
func (c *Context) Set(name string, v any) {
	if c.Extra == nil {
		c.Extra = make(map[string]any)
	}
	c.Extra[name] = v
}

// Get reads a value from Extra.
func (c *Context) Get(name string) (any, bool) {
	if c == nil || c.Extra == nil {
		return nil, false
	}
	v, ok := c.Extra[name]
	return v, ok
}

// Merge copies every populated key of other into c, overwriting.
func (c *Context) Merge(other *Context) {
	if other == nil {
		return
	}
	if other.JobFields != nil {
		c.JobFields = maps.Clone(other.JobFields)
	}
	if other.PrinterHost != "" {
		c.PrinterHost = other.PrinterHost
	}
	if other.PrinterPort != 0 {
		c.PrinterPort = other.PrinterPort
	}
	if other.SerialIdentifier != "" {
		c.SerialIdentifier = other.SerialIdentifier
	}
	if other.MatchString != "" {
		c.MatchString = other.MatchString
	}
	if other.InputNumber != 0 {
		c.InputNumber = other.InputNumber
	}
	if other.IOPort != 0 {
		c.IOPort = other.IOPort
	}
	for k, v := range other.Extra {
		c.Set(k, v)
	}
}

// Clone returns a deep copy of the enumerated keys and a shallow copy of Extra.
func (c *Context) Clone() *Context {
	if c == nil {
		return nil
	}
	out := *c
	out.JobFields = maps.Clone(c.JobFields)
	out.Extra = maps.Clone(c.Extra)
	return &out
}
