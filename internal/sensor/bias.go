package sensor

// biasFlags are the control bits common to every EVK4 bias write: buffer
// stage 1, mux enable, buffer enable, idac enable, single. Computed from
// original_source/common/evk4.hpp's bgen_buf_stg(1)|bgen_mux_en|bgen_buf_en|
// bgen_idac_en|bgen_single (shift_bit<16,21,23,24,28>, buf_stg masked to 3
// bits at offset 16).
const biasFlags uint32 = (1 << 16) | (1 << 21) | (1 << 23) | (1 << 24) | (1 << 28)

// bgenIdacCtl masks a signed 8-bit bias value into the register's low byte,
// per bgen_idac_ctl = mask_and_shift(0xff, 0, value).
func bgenIdacCtl(value int8) uint32 {
	return uint32(uint8(value))
}

// Biases holds the thirteen EVK4/IMX636 analog bias parameters. Each field's
// 8-bit pattern is written unchanged as the low byte of its bias register
// (bgenIdacCtl), so a negative int8 such as -1 sends 0xff.
type Biases struct {
	PR         int8
	FO         int8
	HPF        int8
	DiffOn     int8
	Diff       int8
	DiffOff    int8
	Inv        int8
	Refr       int8
	Reqpuy     int8
	Reqpux     int8
	Sendreqpdy int8
	Unknown1   int8
	Unknown2   int8
}

type biasField struct {
	address uint32
	get     func(*Biases) int8
}

var biasFields = []biasField{
	{biasPRAddress, func(b *Biases) int8 { return b.PR }},
	{biasFOAddress, func(b *Biases) int8 { return b.FO }},
	{biasHPFAddress, func(b *Biases) int8 { return b.HPF }},
	{biasDiffOnAddress, func(b *Biases) int8 { return b.DiffOn }},
	{biasDiffAddress, func(b *Biases) int8 { return b.Diff }},
	{biasDiffOffAddress, func(b *Biases) int8 { return b.DiffOff }},
	{biasInvAddress, func(b *Biases) int8 { return b.Inv }},
	{biasRefrAddress, func(b *Biases) int8 { return b.Refr }},
	{biasReqpuyAddress, func(b *Biases) int8 { return b.Reqpuy }},
	{biasReqpuxAddress, func(b *Biases) int8 { return b.Reqpux }},
	{biasSendreqpdyAddress, func(b *Biases) int8 { return b.Sendreqpdy }},
	{biasUnknown1Address, func(b *Biases) int8 { return b.Unknown1 }},
	{biasUnknown2Address, func(b *Biases) int8 { return b.Unknown2 }},
}

// SendParameters writes every EVK4 bias that has changed since the last
// send, or all of them when force is true. This mirrors the
// sepia_evk4_bias macro's per-field shadow-copy diff suppression — it is
// what lets UpdateParameters be called continuously by a GUI without
// flooding the control endpoint, per spec.md §4.E/§5.
func (c *EVK4Controller) SendParameters(biases Biases, force bool) error {
	for _, f := range biasFields {
		value := f.get(&biases)
		if !force && f.get(&c.previous) == value {
			continue
		}
		if err := c.handle.WriteRegister(f.address, biasFlags|bgenIdacCtl(value)); err != nil {
			return err
		}
	}
	c.previous = biases
	return nil
}

// PSEE413Biases holds the ten PSEE413 analog bias parameters. The PSEE413
// register layout is not present in original_source (only the EVK4/IMX636
// header ships a bring-up table), so its addresses and flags are modeled
// directly after the EVK4 bias block's address stride and encoding scheme,
// per spec.md §3's identical per-field 8-bit range and DESIGN.md's note on
// this gap.
type PSEE413Biases struct {
	PR      int8
	FOP     int8
	FON     int8
	HPF     int8
	DiffOn  int8
	Diff    int8
	DiffOff int8
	Refr    int8
	Reqpuy  int8
	Blk     int8
}

const (
	psee413BiasPRAddress      uint32 = 0x1000
	psee413BiasFOPAddress     uint32 = 0x1004
	psee413BiasFONAddress     uint32 = 0x1008
	psee413BiasHPFAddress     uint32 = 0x100C
	psee413BiasDiffOnAddress  uint32 = 0x1010
	psee413BiasDiffAddress    uint32 = 0x1014
	psee413BiasDiffOffAddress uint32 = 0x1018
	psee413BiasRefrAddress    uint32 = 0x1020
	psee413BiasReqpuyAddress  uint32 = 0x1040
	psee413BiasBlkAddress     uint32 = 0x104C
)

type psee413BiasField struct {
	address uint32
	get     func(*PSEE413Biases) int8
}

var psee413BiasFields = []psee413BiasField{
	{psee413BiasPRAddress, func(b *PSEE413Biases) int8 { return b.PR }},
	{psee413BiasFOPAddress, func(b *PSEE413Biases) int8 { return b.FOP }},
	{psee413BiasFONAddress, func(b *PSEE413Biases) int8 { return b.FON }},
	{psee413BiasHPFAddress, func(b *PSEE413Biases) int8 { return b.HPF }},
	{psee413BiasDiffOnAddress, func(b *PSEE413Biases) int8 { return b.DiffOn }},
	{psee413BiasDiffAddress, func(b *PSEE413Biases) int8 { return b.Diff }},
	{psee413BiasDiffOffAddress, func(b *PSEE413Biases) int8 { return b.DiffOff }},
	{psee413BiasRefrAddress, func(b *PSEE413Biases) int8 { return b.Refr }},
	{psee413BiasReqpuyAddress, func(b *PSEE413Biases) int8 { return b.Reqpuy }},
	{psee413BiasBlkAddress, func(b *PSEE413Biases) int8 { return b.Blk }},
}

// PSEE413Controller drives the PSEE413 sensor's bias updates using the same
// shadow-copy diff suppression as EVK4Controller.
type PSEE413Controller struct {
	handle   Handle
	previous PSEE413Biases
}

// NewPSEE413Controller constructs a controller bound to an open device
// handle.
func NewPSEE413Controller(handle Handle) *PSEE413Controller {
	return &PSEE413Controller{handle: handle}
}

// SendParameters writes every changed PSEE413 bias, or all of them when
// force is true.
func (c *PSEE413Controller) SendParameters(biases PSEE413Biases, force bool) error {
	for _, f := range psee413BiasFields {
		value := f.get(&biases)
		if !force && f.get(&c.previous) == value {
			continue
		}
		if err := c.handle.WriteRegister(f.address, biasFlags|bgenIdacCtl(value)); err != nil {
			return err
		}
	}
	c.previous = biases
	return nil
}
