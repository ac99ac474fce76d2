package protocol

import "fmt"

// HistoryRecordMinLen is the number of leading bytes of a transit history
// block that DecodeHistory reads.
const HistoryRecordMinLen = 12

// History is one decoded transit-card usage record (service code 0x090f).
type History struct {
	Year                int       `json:"year"`
	Month               int       `json:"month"`
	Day                 int       `json:"day"`
	BoardingStationCode ByteArray `json:"boarding_station_code"`
	ExitStationCode     ByteArray `json:"exit_station_code"`
	Balance             int       `json:"balance"`
}

// DecodeHistory decodes a 16-byte history block read with readBlockData.
//
// Byte layout:
//
//	4     year (7 bits, offset from 2000) | month high bit
//	5     month low 3 bits | day (5 bits)
//	6-7   boarding station code
//	8-9   exit station code
//	10-11 balance, little-endian
func DecodeHistory(block []byte) (History, error) {
	if len(block) < HistoryRecordMinLen {
		return History{}, fmt.Errorf("history block too short: got %d bytes, need %d", len(block), HistoryRecordMinLen)
	}

	month := int(block[5] >> 5)
	if block[4]&1 == 1 {
		month += 8
	}

	return History{
		Year:                int(block[4]>>1) + 2000,
		Month:               month,
		Day:                 int(block[5] & 0x1f),
		BoardingStationCode: ByteArray{block[6], block[7]},
		ExitStationCode:     ByteArray{block[8], block[9]},
		Balance:             int(block[10]) + int(block[11])<<8,
	}, nil
}
