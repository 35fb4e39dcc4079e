package keys

// Source names the interrupt endpoint a report came from.
type Source uint8

const (
	// DisplaySource is endpoint 0x81: the keys around the LCD.
	DisplaySource Source = iota
	// GKeySource is endpoint 0x83: G-keys, mode keys and the light switch.
	GKeySource
)

func (s Source) String() string {
	switch s {
	case DisplaySource:
		return "display"
	case GKeySource:
		return "gkeys"
	}
	return "unknown"
}

// Report is one raw interrupt transfer.
type Report struct {
	Source Source
	Data   []byte
}

const (
	displayMask uint32 = 0x000000ff
	gkeyMask    uint32 = 0x01ffff00

	displayTrailer byte = 0x80
	gkeyReportID   byte = 0x02
	lightFlag      byte = 0x08
)

// Decode converts a report into the state bits it carries and the mask of
// bits its source owns. ok is false for malformed reports.
func Decode(r Report) (bits, mask uint32, ok bool) {
	switch r.Source {
	case DisplaySource:
		if len(r.Data) != 2 || r.Data[1] != displayTrailer {
			return 0, 0, false
		}
		return uint32(r.Data[0]), displayMask, true
	case GKeySource:
		if len(r.Data) != 4 || r.Data[0] != gkeyReportID {
			return 0, 0, false
		}
		bits = uint32(r.Data[1])<<8 | uint32(r.Data[2])<<16
		if r.Data[3]&lightFlag != 0 {
			bits |= Light.Bit()
		}
		return bits, gkeyMask, true
	}
	return 0, 0, false
}
