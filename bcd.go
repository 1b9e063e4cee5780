package zealfs

import (
	"time"

	"github.com/dsoprea/go-logging"
)

// DateParts is the decoded form of an 8-byte BCD-encoded timestamp. Century
// and year are kept apart, mirroring how the on-disk bytes are split,
// rather than collapsed into a single four-digit year.
type DateParts struct {
	CenturyYear uint8 // century, i.e. year / 100 (20 for 2026, stored as BCD 0x20)
	Year        uint8 // 0-99
	Month       uint8 // 1-12
	Day         uint8 // 1-31
	Weekday     uint8 // 0-6
	Hour        uint8 // 0-23
	Minute      uint8 // 0-59
	Second      uint8 // 0-59
}

// bcdDate is the packed on-disk representation: year_hi, year_lo, month,
// day, weekday, hour, minute, second, one byte each.
type bcdDate [8]byte

func toBCDByte(v uint8) byte {
	if v > 99 {
		log.Panicf("value out of BCD range: (%d)", v)
	}

	return byte((v/10)<<4 | (v % 10))
}

func fromBCDByte(b byte) uint8 {
	hi := (b >> 4) & 0x0f
	lo := b & 0x0f

	return hi*10 + lo
}

// encodeBCD packs DateParts into the 8-byte on-disk form.
func encodeBCD(d DateParts) (out bcdDate, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			var ok bool
			if err, ok = errRaw.(error); ok != true {
				err = log.Errorf("bcd encode panic: %v", errRaw)
			} else {
				err = log.Wrap(err)
			}
		}
	}()

	out[0] = toBCDByte(d.CenturyYear)
	out[1] = toBCDByte(d.Year)
	out[2] = toBCDByte(d.Month)
	out[3] = toBCDByte(d.Day)
	out[4] = toBCDByte(d.Weekday)
	out[5] = toBCDByte(d.Hour)
	out[6] = toBCDByte(d.Minute)
	out[7] = toBCDByte(d.Second)

	return out, nil
}

// decodeBCD unpacks the 8-byte on-disk form into DateParts.
func decodeBCD(raw bcdDate) DateParts {
	return DateParts{
		CenturyYear: fromBCDByte(raw[0]),
		Year:        fromBCDByte(raw[1]),
		Month:       fromBCDByte(raw[2]),
		Day:         fromBCDByte(raw[3]),
		Weekday:     fromBCDByte(raw[4]),
		Hour:        fromBCDByte(raw[5]),
		Minute:      fromBCDByte(raw[6]),
		Second:      fromBCDByte(raw[7]),
	}
}

// nowBCD reads the wall clock once and encodes it as BCD.
func nowBCD(clock func() time.Time) bcdDate {
	t := clock()

	year := t.Year()

	d := DateParts{
		CenturyYear: uint8(year / 100),
		Year:        uint8(year % 100),
		Month:       uint8(t.Month()),
		Day:         uint8(t.Day()),
		Weekday:     uint8(t.Weekday()),
		Hour:        uint8(t.Hour()),
		Minute:      uint8(t.Minute()),
		Second:      uint8(t.Second()),
	}

	out, err := encodeBCD(d)
	log.PanicIf(err)

	return out
}

// Time reconstructs a time.Time from decoded DateParts. The timezone is
// always UTC; ZealFS stores no timezone information on disk.
func (d DateParts) Time() time.Time {
	year := int(d.CenturyYear)*100 + int(d.Year)

	return time.Date(year, time.Month(d.Month), int(d.Day), int(d.Hour), int(d.Minute), int(d.Second), 0, time.UTC)
}
