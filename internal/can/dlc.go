package can

var dlcToLen = [16]uint8{0, 1, 2, 3, 4, 5, 6, 7, 8, 12, 16, 20, 24, 32, 48, 64}

var lenToDLC = [MaxDataLen + 1]uint8{
	0, 1, 2, 3, 4, 5, 6, 7, 8, // 0 - 8
	9, 9, 9, 9, // 9 - 12
	10, 10, 10, 10, // 13 - 16
	11, 11, 11, 11, // 17 - 20
	12, 12, 12, 12, // 21 - 24
	13, 13, 13, 13, 13, 13, 13, 13, // 25 - 32
	14, 14, 14, 14, 14, 14, 14, 14, // 33 - 40
	14, 14, 14, 14, 14, 14, 14, 14, // 41 - 48
	15, 15, 15, 15, 15, 15, 15, 15, // 49 - 56
	15, 15, 15, 15, 15, 15, 15, 15, // 57 - 64
}

// DLCToLen returns the payload length for a data length code.
// Only the low nibble is significant.
func DLCToLen(dlc uint8) uint8 { return dlcToLen[dlc&0x0F] }

// LenToDLC returns the smallest DLC able to carry n bytes. Lengths above 64 map to 15.
func LenToDLC(n int) uint8 {
	if n > MaxDataLen {
		return 0x0F
	}
	if n < 0 {
		return 0
	}
	return lenToDLC[n]
}

// PaddedLen rounds n up to the next length representable by a DLC.
func PaddedLen(n int) uint8 { return DLCToLen(LenToDLC(n)) }

// ValidLen reports whether n is one of the 16 DLC-representable lengths.
func ValidLen(n int) bool { return n >= 0 && n <= MaxDataLen && int(PaddedLen(n)) == n }
