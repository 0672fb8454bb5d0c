// Package companion implements the MeshCore companion protocol: the
// framed command/response scheme used to control a radio node over a
// serial port or TCP socket.
package companion

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Protocol command bytes (host to device).
const (
	CmdAppStart       byte = 1
	CmdSetRadioParams byte = 11
	CmdDeviceQuery    byte = 22
	CmdGetStats       byte = 56
)

// Protocol response codes (device to host).
const (
	RespOK         byte = 0
	RespErr        byte = 1
	RespSelfInfo   byte = 5
	RespDeviceInfo byte = 13
	RespStats      byte = 24
)

// protocolVersion is sent with DEVICE_QUERY and APP_START. Only
// version 7 is supported.
const protocolVersion byte = 7

// Error code the firmware returns for GET_STATS on transports that do
// not expose radio statistics.
const ErrCodeStatsUnsupported byte = 1

// RadioParams is the LoRa parameter tuple applied before sampling a
// frequency. The device keeps no per-frequency memory, so it must be
// re-applied on every retune.
type RadioParams struct {
	FrequencyMHz    float64
	BandwidthKHz    float64
	SpreadingFactor uint8
	CodingRate      uint8
}

func (p RadioParams) String() string {
	return fmt.Sprintf("%.3f MHz BW %.0f kHz SF %d CR %d",
		p.FrequencyMHz, p.BandwidthKHz, p.SpreadingFactor, p.CodingRate)
}

// setRadioParamsLen is the full SET_RADIO_PARAMS payload length:
// command byte, uint32 frequency, uint32 bandwidth, SF, CR.
const setRadioParamsLen = 1 + 4 + 4 + 1 + 1

// EncodeRadioParams builds the SET_RADIO_PARAMS request payload.
// Frequency travels as a little-endian uint32 in kHz and bandwidth as
// a little-endian uint32 in Hz.
func EncodeRadioParams(p RadioParams) []byte {
	buf := make([]byte, setRadioParamsLen)
	buf[0] = CmdSetRadioParams
	binary.LittleEndian.PutUint32(buf[1:5], uint32(math.Round(p.FrequencyMHz*1000)))
	binary.LittleEndian.PutUint32(buf[5:9], uint32(math.Round(p.BandwidthKHz*1000)))
	buf[9] = p.SpreadingFactor
	buf[10] = p.CodingRate
	return buf
}

// DecodeRadioParams parses a SET_RADIO_PARAMS request payload back into
// the parameter tuple. It is the inverse of EncodeRadioParams and is
// used by device mocks.
func DecodeRadioParams(payload []byte) (RadioParams, error) {
	if len(payload) != setRadioParamsLen {
		return RadioParams{}, fmt.Errorf("set radio params payload: expected %d bytes, got %d", setRadioParamsLen, len(payload))
	}
	if payload[0] != CmdSetRadioParams {
		return RadioParams{}, fmt.Errorf("set radio params payload: unexpected command 0x%02X", payload[0])
	}
	return RadioParams{
		FrequencyMHz:    float64(binary.LittleEndian.Uint32(payload[1:5])) / 1000,
		BandwidthKHz:    float64(binary.LittleEndian.Uint32(payload[5:9])) / 1000,
		SpreadingFactor: payload[9],
		CodingRate:      payload[10],
	}, nil
}
