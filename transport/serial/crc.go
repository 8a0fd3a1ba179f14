package serial

// CRC-16 parameters used by the SMP console framing (CRC-16/XMODEM).
const (
	// crc16Polynomial is the CRC-16-CCITT polynomial (0x1021)
	crc16Polynomial = 0x1021

	// crc16InitialValue is the CRC-16 initial value
	crc16InitialValue = 0x0000

	// crc16HighBitMask is the high bit mask for CRC-16 calculations
	crc16HighBitMask = 0x8000
)

// crc16 computes the CRC-16/XMODEM of data.
//
// Parameters:
//   - Polynomial: crc16Polynomial
//   - Initial value: crc16InitialValue
//   - No reflection, no final XOR
func crc16(data []byte) uint16 {
	crc := uint16(crc16InitialValue)

	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&crc16HighBitMask != 0 {
				crc = (crc << 1) ^ crc16Polynomial
			} else {
				crc <<= 1
			}
		}
	}

	return crc
}
