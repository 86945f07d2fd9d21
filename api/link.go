package api

// LinkProperties are the shaping parameters of one interface. A nil field means
// "leave as is". Units are passed straight to the shaper:
// bandwidth in bits/s, delay and jitter in microseconds, loss and duplicate in percent.
type LinkProperties struct {
	Bandwidth *uint64  `yaml:"bandwidth,omitempty"`
	Delay     *uint32  `yaml:"delay,omitempty"`
	Loss      *float32 `yaml:"loss,omitempty"`
	Duplicate *float32 `yaml:"duplicate,omitempty"`
	Jitter    *uint32  `yaml:"jitter,omitempty"`
}

// Empty reports whether no parameter is set.
func (p LinkProperties) Empty() bool {
	return p.Bandwidth == nil && p.Delay == nil && p.Loss == nil && p.Duplicate == nil && p.Jitter == nil
}
