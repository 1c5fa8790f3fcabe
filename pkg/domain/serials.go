package domain

import "fmt"

// PoolRange configures one serial-number pool.
type PoolRange struct {
	Name  string `yaml:"name" json:"name" mapstructure:"name"`
	Start int64  `yaml:"start" json:"start" mapstructure:"start"`
	// End is the last number handed out; 0 means unbounded.
	End int64 `yaml:"end,omitempty" json:"end,omitempty" mapstructure:"end"`
	// Width zero-pads the numbers; 0 disables padding.
	Width int `yaml:"width,omitempty" json:"width,omitempty" mapstructure:"width"`
}

// Format renders n the way the pool hands it out.
func (r PoolRange) Format(n int64) string {
	if r.Width > 0 {
		return fmt.Sprintf("%0*d", r.Width, n)
	}
	return fmt.Sprintf("%d", n)
}

// Exhausted reports whether handing out numbers up to last would overrun the range.
func (r PoolRange) Exhausted(last int64) bool {
	return r.End > 0 && last > r.End
}
