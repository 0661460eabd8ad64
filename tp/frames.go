package tp

import "fmt"

// BuildBAM splits data into a TP.CM-BAM announcement plus the ordered
// TP.DT frames that follow it. The sender side needs no session tracking:
// it already holds the whole message and simply paces these frames out.
func BuildBAM(pgn uint32, data []byte) (cm []byte, dataFrames [][]byte, err error) {
	if len(data) == 0 || len(data) > 1785 {
		return nil, nil, fmt.Errorf("tp: BAM payload length %d out of range (1-1785)", len(data))
	}
	total := packetCount(len(data))
	cm = []byte{
		ControlBAM,
		byte(len(data)),
		byte(len(data) >> 8),
		byte(total),
		0xFF,
		byte(pgn),
		byte(pgn >> 8),
		byte(pgn >> 16),
	}
	dataFrames = buildDataFrames(data, total)
	return cm, dataFrames, nil
}

// BuildRTS constructs the TP.CM-RTS announcement for a point-to-point send.
func BuildRTS(pgn uint32, length int) ([]byte, error) {
	if length <= 0 || length > 1785 {
		return nil, fmt.Errorf("tp: RTS payload length %d out of range (1-1785)", length)
	}
	total := packetCount(length)
	return []byte{
		ControlRTS,
		byte(length),
		byte(length >> 8),
		byte(total),
		0xFF,
		byte(pgn),
		byte(pgn >> 8),
		byte(pgn >> 16),
	}, nil
}

// BuildCTS constructs the TP.CM-CTS frame requesting numberOfPackets
// starting at nextPacket.
func BuildCTS(pgn uint32, nextPacket, numberOfPackets uint8) []byte {
	return []byte{
		ControlCTS,
		numberOfPackets,
		nextPacket,
		0xFF,
		0xFF,
		byte(pgn),
		byte(pgn >> 8),
		byte(pgn >> 16),
	}
}

// BuildEOM constructs the TP.CM-EOM (end of message ack) frame.
func BuildEOM(pgn uint32, length int, totalPackets int) []byte {
	return []byte{
		ControlEOM,
		byte(length),
		byte(length >> 8),
		byte(totalPackets),
		0xFF,
		byte(pgn),
		byte(pgn >> 8),
		byte(pgn >> 16),
	}
}

// BuildAbort constructs the TP.CM-ABORT frame.
func BuildAbort(pgn uint32, reason byte) []byte {
	return []byte{
		ControlAbort,
		reason,
		0xFF,
		0xFF,
		0xFF,
		byte(pgn),
		byte(pgn >> 8),
		byte(pgn >> 16),
	}
}

// buildDataFrames splits data into 7-byte TP.DT payloads, each prefixed
// with its 1-based sequence number and padded with 0xFF.
func buildDataFrames(data []byte, total int) [][]byte {
	frames := make([][]byte, total)
	for i := 0; i < total; i++ {
		frame := make([]byte, 8)
		frame[0] = byte(i + 1)
		for j := range frame[1:] {
			frame[1+j] = 0xFF
		}
		offset := i * DataBytesPerPacket
		end := offset + DataBytesPerPacket
		if end > len(data) {
			end = len(data)
		}
		copy(frame[1:], data[offset:end])
		frames[i] = frame
	}
	return frames
}

// ParseDT splits a TP.DT wire frame into its sequence number and 7 data
// bytes.
func ParseDT(frame []byte) (seq uint8, data []byte, err error) {
	if len(frame) != 8 {
		return 0, nil, fmt.Errorf("tp: TP.DT frame must be 8 bytes, got %d", len(frame))
	}
	return frame[0], frame[1:], nil
}

// ControlByte reports byte 0 of a TP.CM payload, the discriminator used to
// route it to StartBAMReceive/StartRTSReceive/ProcessCTS/etc.
func ControlByte(cm []byte) (byte, error) {
	if len(cm) == 0 {
		return 0, fmt.Errorf("tp: empty TP.CM payload")
	}
	return cm[0], nil
}

// ParseCM decodes the common fields (length, total packets, pgn) shared by
// RTS, BAM, and EOM control frames.
func ParseCM(cm []byte) (length int, totalPackets int, pgn uint32, err error) {
	if len(cm) < 8 {
		return 0, 0, 0, fmt.Errorf("tp: TP.CM payload must be 8 bytes, got %d", len(cm))
	}
	length = int(cm[1]) | int(cm[2])<<8
	totalPackets = int(cm[3])
	pgn = uint32(cm[5]) | uint32(cm[6])<<8 | uint32(cm[7])<<16
	return length, totalPackets, pgn, nil
}

// ParseCTS decodes a TP.CM-CTS payload into its requested window.
func ParseCTS(cm []byte) (nextPacket, numberOfPackets uint8, pgn uint32, err error) {
	if len(cm) < 8 {
		return 0, 0, 0, fmt.Errorf("tp: TP.CM-CTS payload must be 8 bytes, got %d", len(cm))
	}
	numberOfPackets = cm[1]
	nextPacket = cm[2]
	pgn = uint32(cm[5]) | uint32(cm[6])<<8 | uint32(cm[7])<<16
	return nextPacket, numberOfPackets, pgn, nil
}
