package watermark

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

const (
	PayloadVersion = 0x0001
	PayloadLength  = 16
)

// BuildPayload constructs the 16-byte trace payload embedded invisibly
// into every stamped copy:
//
//	Bytes 0–1:   format version (0x0001)
//	Bytes 2–9:   grant hash (truncated SHA-256 of the grant ID)
//	Bytes 10–13: asset hash (truncated SHA-256 of the asset ID)
//	Bytes 14–15: CRC-16 of bytes 0–13
//
// The grant hash is the lookup key in the watermark index, which maps it
// back to the viewer whose copy was stamped.
func BuildPayload(grantID, assetID string) []byte {
	p := make([]byte, PayloadLength)

	binary.BigEndian.PutUint16(p[0:2], PayloadVersion)

	gh := sha256.Sum256([]byte(grantID))
	copy(p[2:10], gh[:8])

	ah := sha256.Sum256([]byte(assetID))
	copy(p[10:14], ah[:4])

	binary.BigEndian.PutUint16(p[14:16], crc16(p[0:14]))

	return p
}

// PayloadHex returns the hex-encoded payload string.
func PayloadHex(grantID, assetID string) string {
	return hex.EncodeToString(BuildPayload(grantID, assetID))
}

// GrantHashHex returns the hex form of the 8-byte grant hash, the key
// stored in the watermark index.
func GrantHashHex(grantID string) string {
	gh := sha256.Sum256([]byte(grantID))
	return hex.EncodeToString(gh[:8])
}

// ParsePayload validates a 16-byte payload and extracts the grant and
// asset hashes. valid is false when the CRC does not check out or the
// version field has drifted too far.
func ParsePayload(data []byte) (grantHashHex, assetHashHex string, valid bool) {
	if len(data) != PayloadLength {
		return "", "", false
	}

	version := binary.BigEndian.Uint16(data[0:2])
	if bitDiffU16(version, PayloadVersion) > 2 {
		return "", "", false
	}

	if binary.BigEndian.Uint16(data[14:16]) != crc16(data[0:14]) {
		return "", "", false
	}

	return hex.EncodeToString(data[2:10]), hex.EncodeToString(data[10:14]), true
}

// ParsePayloadFuzzy extracts the hashes without requiring the CRC to
// validate. Fallback for payloads with a few bit errors from JPEG
// re-compression; plausible is false when even the version field is too
// damaged to trust.
func ParsePayloadFuzzy(data []byte) (grantHashHex, assetHashHex string, plausible bool) {
	if len(data) != PayloadLength {
		return "", "", false
	}

	version := binary.BigEndian.Uint16(data[0:2])
	if bitDiffU16(version, PayloadVersion) > 4 {
		return "", "", false
	}

	return hex.EncodeToString(data[2:10]), hex.EncodeToString(data[10:14]), true
}

func bitDiffU16(a, b uint16) int {
	diff := a ^ b
	count := 0
	for diff != 0 {
		count += int(diff & 1)
		diff >>= 1
	}
	return count
}

// crc16 computes CRC-16/CCITT-FALSE.
func crc16(data []byte) uint16 {
	var crc uint16 = 0xFFFF
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
