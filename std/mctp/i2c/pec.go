package i2c

import "github.com/sigurn/crc8"

// SMBus PEC is CRC-8 with polynomial x^8+x^2+x+1, zero init, no reflection.
var pecTable = crc8.MakeTable(crc8.CRC8)

// Pec computes the SMBus Packet Error Code over b.
func Pec(b []byte) uint8 {
	return crc8.Checksum(b, pecTable)
}
