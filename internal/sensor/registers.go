// Package sensor implements the EVK4/IMX636 and PSEE413 register-level
// bring-up, teardown, ROI, and bias protocol.
//
// Grounded on original_source/common/evk4.hpp: the register address table,
// the literal stop/destroy/init/start write sequences, the ROI x-mask/y-mask
// loops, and the bias send macro. A Handle is anything that can perform the
// camera's register read/write primitives (carried as bulk transfers);
// usbtransport.DeviceHandle satisfies it.
package sensor

import "time"

// Handle is the subset of usbtransport.DeviceHandle the bring-up sequences
// need: register-level read/write requests sent over the bulk endpoints,
// plus the bulk-input flush and bulk probe issued before acquisition starts.
type Handle interface {
	WriteRegister(address, value uint32) error
	ReadRegister(address uint32) (uint32, error)
	FlushBulkIn(bufferSize int, timeout time.Duration) error
	BulkProbe(request []byte, timeout time.Duration) error
}

// EVK4 register addresses, transcribed from original_source/common/evk4.hpp.
const (
	resetAddress uint32 = 0x400004

	roiCtrlAddress           uint32 = 0x0004
	lifoCtrlAddress          uint32 = 0x000C
	spare0Address            uint32 = 0x0018
	adcControlAddress        uint32 = 0x004C
	adcMiscCtrlAddress       uint32 = 0x0054
	tempCtrlAddress          uint32 = 0x005C
	iphMirrCtrlAddress       uint32 = 0x0074
	biasPRAddress            uint32 = 0x1000
	biasFOAddress            uint32 = 0x1004
	biasHPFAddress           uint32 = 0x100C
	biasDiffOnAddress        uint32 = 0x1010
	biasDiffAddress          uint32 = 0x1014
	biasDiffOffAddress       uint32 = 0x1018
	biasInvAddress           uint32 = 0x101C
	biasRefrAddress          uint32 = 0x1020
	biasReqpuyAddress        uint32 = 0x1040
	biasReqpuxAddress        uint32 = 0x1044
	biasSendreqpdyAddress    uint32 = 0x1048
	biasUnknown1Address      uint32 = 0x104C
	biasUnknown2Address      uint32 = 0x1050
	tdRoiXBegin              uint32 = 0x2000
	tdRoiXEnd                uint32 = 0x20A0
	tdRoiYBegin              uint32 = 0x4000
	tdRoiYEnd                uint32 = 0x405C
	ercReserved6000Address   uint32 = 0x6000
	inDropRateControlAddress uint32 = 0x6004
	referencePeriodAddress   uint32 = 0x6008
	tdTargetEventRateAddress uint32 = 0x600C
	ercEnableAddress         uint32 = 0x6028
	ercReserved602CAddress   uint32 = 0x602C
	tDroppingControlAddress  uint32 = 0x6050
	hDroppingControlAddress  uint32 = 0x6060
	vDroppingControlAddress  uint32 = 0x6070
	tDropLutBegin            uint32 = 0x6400
	tDropLutEnd              uint32 = 0x6800
	ercReserved6800Begin     uint32 = 0x6800
	ercReserved6B98End       uint32 = 0x6B98
	edfPipelineControlAddr   uint32 = 0x7000
	edfReserved7004Address   uint32 = 0x7004
	readoutCtrlAddress       uint32 = 0x9000
	roFSMCtrlAddress         uint32 = 0x9004
	timeBaseCtrlAddress      uint32 = 0x9008
	roCtrlAddress            uint32 = 0x9028

	mipiControlAddress        uint32 = 0xB000
	mipiPacketSizeAddress     uint32 = 0xB020
	mipiFramePeriodAddress    uint32 = 0xB028
	mipiFrameBlankingAddress  uint32 = 0xB030
)

// xMaskWords and yMaskWords are the bit-mask word counts implied by the
// register ranges above: 40 32-bit x-mask registers pack into 20 uint64
// words (20*64 = 1280 columns), 23 32-bit y-mask registers unpack from 12
// overlapping uint64 words (12*64 = 768 rows, covering the 720-row sensor).
const (
	xMaskWords = (tdRoiXEnd - tdRoiXBegin) / 4 / 2
	yMaskWords = 12
)
