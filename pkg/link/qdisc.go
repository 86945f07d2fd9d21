package link

import (
	"fmt"

	"Pnode/api"

	"github.com/vishvananda/netlink"
)

const (
	// tbfLimit is the max IP payload queued by the token bucket.
	tbfLimit = 0xffff
	// netemLimit matches the tc default queue length.
	netemLimit = 1000
	// jitterCorrelation is applied whenever jitter is set.
	jitterCorrelation = 25
)

var (
	tbfHandle   = netlink.MakeHandle(1, 0)
	tbfClass    = netlink.MakeHandle(1, 1)
	netemHandle = netlink.MakeHandle(10, 0)
)

type step func(linkIndex int) error

// plan records p on state and returns the qdisc changes needed to get there.
// A nil field in p keeps the recorded value.
//
// A token bucket at root handle 1: carries the bandwidth. netem at handle 10:
// carries delay, jitter, loss and duplication; it hangs below 1:1 when the
// token bucket is present and at root otherwise. Removing the token bucket
// removes netem with it.
func (s *Shaper) plan(t Target, state *Params, p api.LinkProperties) []step {
	var steps []step
	changed := false

	if p.Bandwidth != nil && state.Set(ParamBandwidth, float64(*p.Bandwidth)) {
		bw := *p.Bandwidth
		if bw > 0 {
			tbf := tbfQdisc(bw, t.DeviceMTU())
			steps = append(steps, func(index int) error {
				tbf.LinkIndex = index
				if err := s.ops.QdiscReplace(tbf); err != nil {
					return fmt.Errorf("failed to replace tbf qdisc on %s: %w", t.DeviceName(), err)
				}
				return nil
			})
			state.HasTbf = true
			changed = true
		} else if state.HasTbf {
			steps = append(steps, func(index int) error {
				tbf := &netlink.Tbf{QdiscAttrs: netlink.QdiscAttrs{
					LinkIndex: index,
					Handle:    tbfHandle,
					Parent:    netlink.HANDLE_ROOT,
				}}
				if err := s.ops.QdiscDel(tbf); err != nil {
					return fmt.Errorf("failed to delete tbf qdisc on %s: %w", t.DeviceName(), err)
				}
				return nil
			})
			state.HasTbf = false
			state.HasNetem = false
			changed = true
		}
	}

	parent := uint32(netlink.HANDLE_ROOT)
	if state.HasTbf {
		parent = tbfClass
	}

	// every parameter is recorded, so no short-circuit here
	changed = setOptional(state, ParamDelay, p.Delay) || changed
	changed = setOptionalFloat(state, ParamLoss, p.Loss) || changed
	changed = setOptionalFloat(state, ParamDuplicate, p.Duplicate) || changed
	changed = setOptional(state, ParamJitter, p.Jitter) || changed
	if !changed {
		return steps
	}

	netem, active := netemQdisc(state, parent)
	if active {
		steps = append(steps, func(index int) error {
			netem.LinkIndex = index
			if err := s.ops.QdiscReplace(netem); err != nil {
				return fmt.Errorf("failed to replace netem qdisc on %s: %w", t.DeviceName(), err)
			}
			return nil
		})
		state.HasNetem = true
		return steps
	}

	if state.HasNetem {
		steps = append(steps, func(index int) error {
			netem := netlink.NewNetem(netlink.QdiscAttrs{
				LinkIndex: index,
				Handle:    netemHandle,
				Parent:    parent,
			}, netlink.NetemQdiscAttrs{})
			if err := s.ops.QdiscDel(netem); err != nil {
				return fmt.Errorf("failed to delete netem qdisc on %s: %w", t.DeviceName(), err)
			}
			return nil
		})
		state.HasNetem = false
	}
	return steps
}

// tbfQdisc: tc qdisc replace dev X root handle 1: tbf rate <bw> burst <burst> limit 65535
// burst is max(2*mtu, bw/1000) bytes.
func tbfQdisc(bw uint64, mtu int) *netlink.Tbf {
	burst := uint64(2 * mtu)
	if bw/1000 > burst {
		burst = bw / 1000
	}
	rate := bw / 8 // bytes per second
	if rate == 0 {
		rate = 1
	}
	return &netlink.Tbf{
		QdiscAttrs: netlink.QdiscAttrs{
			Handle: tbfHandle,
			Parent: netlink.HANDLE_ROOT,
		},
		Rate:   rate,
		Limit:  tbfLimit,
		Buffer: netlink.Xmittime(rate, uint32(burst)),
	}
}

// netemQdisc: tc qdisc replace dev X <parent> handle 10: netem delay <d>us <j>us 25% loss <l>% duplicate <p>%
// built from the recorded parameters; active is false when all of them are zero.
func netemQdisc(state *Params, parent uint32) (*netlink.Netem, bool) {
	delay, _ := state.Get(ParamDelay)
	jitter, _ := state.Get(ParamJitter)
	loss, _ := state.Get(ParamLoss)
	duplicate, _ := state.Get(ParamDuplicate)
	if delay <= 0 && jitter <= 0 && loss <= 0 && duplicate <= 0 {
		return nil, false
	}

	attrs := netlink.NetemQdiscAttrs{
		Latency:   uint32(delay),
		Limit:     netemLimit,
		Loss:      capPercent(float32(loss)),
		Duplicate: capPercent(float32(duplicate)),
	}
	if jitter > 0 {
		attrs.Jitter = uint32(jitter)
		attrs.DelayCorr = jitterCorrelation
	}
	return netlink.NewNetem(netlink.QdiscAttrs{
		Handle: netemHandle,
		Parent: parent,
	}, attrs), true
}

func setOptional(state *Params, key string, v *uint32) bool {
	if v == nil {
		return false
	}
	return state.Set(key, float64(*v))
}

func setOptionalFloat(state *Params, key string, v *float32) bool {
	if v == nil {
		return false
	}
	return state.Set(key, float64(*v))
}

func capPercent(v float32) float32 {
	if v > 100 {
		return 100
	}
	return v
}
