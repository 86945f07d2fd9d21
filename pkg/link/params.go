package link

import "maps"

// Parameter keys recorded in Params.
const (
	ParamBandwidth = "bw"
	ParamDelay     = "delay"
	ParamLoss      = "loss"
	ParamDuplicate = "duplicate"
	ParamJitter    = "jitter"
)

// Params is the shaping state of one device: the last value applied for each
// parameter and which qdiscs are currently installed.
type Params struct {
	values   map[string]float64
	HasTbf   bool
	HasNetem bool
}

// Set records value under key and reports whether it changed. Negative values are ignored.
func (p *Params) Set(key string, value float64) bool {
	if value < 0 {
		return false
	}
	if p.values == nil {
		p.values = make(map[string]float64)
	}
	if current, ok := p.values[key]; ok && current == value {
		return false
	}
	p.values[key] = value
	return true
}

// Get returns the recorded value for key.
func (p *Params) Get(key string) (float64, bool) {
	v, ok := p.values[key]
	return v, ok
}

func (p *Params) clone() Params {
	c := *p
	c.values = maps.Clone(p.values)
	return c
}
