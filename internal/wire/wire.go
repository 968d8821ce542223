// Package wire defines the fixed-size datagram layout shared by the sender
// framer and the receiver reassembler: sample geometry, the super-block
// header, and the block-0 MetaData record.
package wire

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
)

const (
	// DatagramSize is the wire size of every super-block: header + block.
	DatagramSize = 512
	// HeaderSize is the fixed 4-byte super-block header.
	HeaderSize = 4
	// BlockSize is the protected payload carried by every datagram,
	// identical for originals and recovery blocks (required by the
	// erasure code).
	BlockSize = DatagramSize - HeaderSize

	// SampleSize is the wire width of one complex I/Q sample: two signed
	// 16-bit little-endian components.
	SampleSize = 4

	// OriginalBlocks (K) is hard-coded; both endpoints must agree.
	OriginalBlocks = 128
	// MaxRecoveryBlocks (R max) leaves block indices in [K, K+R-1] with
	// R in [0,127] so blockIndex always fits a uint8.
	MaxRecoveryBlocks = OriginalBlocks - 1

	// SamplesPerBlock is how many Samples fit a payload block.
	SamplesPerBlock = BlockSize / SampleSize // 127

	// FramePayloadSamples is the total I/Q sample count carried per frame.
	FramePayloadSamples = (OriginalBlocks - 1) * SamplesPerBlock // 16129

	// MetaDataSize is the fixed size of the block-0 MetaData record.
	MetaDataSize = 24
	// metaCompareSize is how many leading bytes of MetaData participate
	// in change detection (tuning + geometry, excluding timestamp and CRC).
	metaCompareSize = 12
)

// Sample is one complex baseband I/Q sample: 16-bit signed real and
// imaginary components, 4 bytes total, little-endian on the wire.
type Sample struct {
	I int16
	Q int16
}

// PutSample writes s to b[0:4] in wire order.
func PutSample(b []byte, s Sample) {
	binary.LittleEndian.PutUint16(b[0:2], uint16(s.I))
	binary.LittleEndian.PutUint16(b[2:4], uint16(s.Q))
}

// GetSample reads a Sample from b[0:4].
func GetSample(b []byte) Sample {
	return Sample{
		I: int16(binary.LittleEndian.Uint16(b[0:2])),
		Q: int16(binary.LittleEndian.Uint16(b[2:4])),
	}
}

// Header is the 4-byte super-block header preceding every protected block.
type Header struct {
	FrameIndex uint16
	BlockIndex uint8
	Filler     uint8 // reserved, SHOULD be 0
}

// Put encodes h into b[0:4].
func (h Header) Put(b []byte) {
	binary.LittleEndian.PutUint16(b[0:2], h.FrameIndex)
	b[2] = h.BlockIndex
	b[3] = h.Filler
}

// ParseHeader reads a Header from b[0:4].
func ParseHeader(b []byte) Header {
	return Header{
		FrameIndex: binary.LittleEndian.Uint16(b[0:2]),
		BlockIndex: b[2],
		Filler:     b[3],
	}
}

// ErrMalformedDatagram is returned by ParseDatagram when the input isn't
// exactly DatagramSize bytes.
var ErrMalformedDatagram = errors.New("wire: malformed datagram")

// ParseDatagram splits a raw wire datagram into its header and protected
// block. The returned block aliases buf; callers that retain it across the
// next receive must copy.
func ParseDatagram(buf []byte) (Header, []byte, error) {
	if len(buf) != DatagramSize {
		return Header{}, nil, ErrMalformedDatagram
	}
	return ParseHeader(buf[:HeaderSize]), buf[HeaderSize:], nil
}

// PutDatagram writes header and block (exactly BlockSize bytes) into buf
// (exactly DatagramSize bytes).
func PutDatagram(buf []byte, h Header, block []byte) {
	h.Put(buf[:HeaderSize])
	copy(buf[HeaderSize:], block)
}

// MetaData is the tuning + geometry + timestamp record carried in every
// frame's block-0 payload.
type MetaData struct {
	CenterFrequencyHz uint32
	SampleRateHz      uint32
	SampleBytes       uint8 // low nibble: bytes/component; high nibble: flags
	SampleBits        uint8
	OriginalBlocks    uint8 // always K
	FECBlocks         uint8 // current R
	TxTimestampSec    uint32
	TxTimestampUsec   uint32
}

// sampleBytesLZ4Flag marks the high nibble bit reserved by the superseded
// LZ4/CRC64 variant (§9). New senders never set it.
const sampleBytesLZ4Flag = 0x10

// Encode writes m (plus trailing CRC32) into b[0:MetaDataSize]. The
// remainder of the block-0 payload (b[MetaDataSize:BlockSize]) is left to
// the caller to zero.
func (m MetaData) Encode(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], m.CenterFrequencyHz)
	binary.LittleEndian.PutUint32(b[4:8], m.SampleRateHz)
	b[8] = m.SampleBytes
	b[9] = m.SampleBits
	b[10] = m.OriginalBlocks
	b[11] = m.FECBlocks
	binary.LittleEndian.PutUint32(b[12:16], m.TxTimestampSec)
	binary.LittleEndian.PutUint32(b[16:20], m.TxTimestampUsec)
	crc := crc32.ChecksumIEEE(b[0:20])
	binary.LittleEndian.PutUint32(b[20:24], crc)
}

// ErrMetadataCRC indicates the trailing CRC32 did not verify; per §7 the
// block is treated as missing for metadata purposes but its raw bytes
// still participate in erasure decoding.
var ErrMetadataCRC = errors.New("wire: metadata crc mismatch")

// DecodeMetaData parses and CRC-validates a MetaData record from
// b[0:MetaDataSize].
func DecodeMetaData(b []byte) (MetaData, error) {
	var m MetaData
	if len(b) < MetaDataSize {
		return m, ErrMalformedDatagram
	}
	want := crc32.ChecksumIEEE(b[0:20])
	got := binary.LittleEndian.Uint32(b[20:24])
	if want != got {
		return m, ErrMetadataCRC
	}
	m.CenterFrequencyHz = binary.LittleEndian.Uint32(b[0:4])
	m.SampleRateHz = binary.LittleEndian.Uint32(b[4:8])
	m.SampleBytes = b[8]
	m.SampleBits = b[9]
	m.OriginalBlocks = b[10]
	m.FECBlocks = b[11]
	m.TxTimestampSec = binary.LittleEndian.Uint32(b[12:16])
	m.TxTimestampUsec = binary.LittleEndian.Uint32(b[16:20])
	return m, nil
}

// IsLZ4Flagged reports whether the superseded LZ4 high-nibble flag is set.
// This implementation never produces or consumes LZ4 frames (§9); the
// check exists so a receiver can reject/log rather than silently
// misinterpret such a block.
func (m MetaData) IsLZ4Flagged() bool { return m.SampleBytes&sampleBytesLZ4Flag != 0 }

// SameTuning reports whether m and other are equal over the first 12
// bytes of their wire encoding (tuning + geometry), excluding timestamps
// and CRC. This is the comparison used for metadata-change detection.
func (m MetaData) SameTuning(other MetaData) bool {
	return m.CenterFrequencyHz == other.CenterFrequencyHz &&
		m.SampleRateHz == other.SampleRateHz &&
		m.SampleBytes == other.SampleBytes &&
		m.SampleBits == other.SampleBits &&
		m.OriginalBlocks == other.OriginalBlocks &&
		m.FECBlocks == other.FECBlocks
}
