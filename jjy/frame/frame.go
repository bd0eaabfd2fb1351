// Package frame encodes a point in time as the JJY minute frame: 60
// symbols, one per second, carrying BCD time fields, parity and
// position markers.
//
// Bit positions follow the NICT timecode tables
// (https://jjy.nict.go.jp/jjy/trans/timecode1.html and timecode2.html).
package frame

import (
	"math/bits"
	"strings"
	"time"
)

// SecondsPerMinute is the length of a JJY frame in symbols.
const SecondsPerMinute = 60

// TimePoint is a decoded wall-clock instant in the target local zone
// (JST for JJY). The encoder never applies zone offsets itself.
type TimePoint struct {
	Year    int // full year, e.g. 2024
	YearDay int // 1..366
	Hour    int // 0..23
	Minute  int // 0..59
	Second  int // 0..59
	Weekday time.Weekday
}

// TimePointOf extracts a TimePoint from t. The caller is responsible
// for converting t to the broadcast zone first.
func TimePointOf(t time.Time) TimePoint {
	return TimePoint{
		Year:    t.Year(),
		YearDay: t.YearDay(),
		Hour:    t.Hour(),
		Minute:  t.Minute(),
		Second:  t.Second(),
		Weekday: t.Weekday(),
	}
}

// Frame is one minute of JJY symbols, indexed by second-of-minute.
type Frame [SecondsPerMinute]Symbol

// Marker positions within a frame: M, P1..P5 and P0.
var markerSeconds = [...]int{0, 9, 19, 29, 39, 49, 59}

// IsMarkerSecond reports whether second carries a position marker.
func IsMarkerSecond(second int) bool {
	for _, m := range markerSeconds {
		if second == m {
			return true
		}
	}
	return false
}

// Encode builds the frame for the minute containing tp. It is pure:
// the same TimePoint always yields an identical frame.
//
// Minutes 15 and 45 use the timecode 2 layout, where the year and
// weekday fields give way to the call-sign announcement and service
// status bits. Those slots are morse/status content this transmitter
// does not announce, so they are emitted as zero bits.
func Encode(tp TimePoint) Frame {
	var f Frame

	for _, m := range markerSeconds {
		f[m] = Mark
	}

	// 1..8: minute, BCD 40 20 10 - 8 4 2 1
	putBCD(&f, 1, tp.Minute/10, 3)
	putBCD(&f, 5, tp.Minute%10, 4)

	// 12..18: hour, BCD 20 10 - 8 4 2 1
	putBCD(&f, 12, tp.Hour/10, 2)
	putBCD(&f, 15, tp.Hour%10, 4)

	// 22..33: day of year, BCD 200 100 - 80 40 20 10 - 8 4 2 1
	putBCD(&f, 22, tp.YearDay/100, 2)
	putBCD(&f, 25, tp.YearDay/10%10, 4)
	putBCD(&f, 30, tp.YearDay%10, 4)

	// 36: PA1 over the hour bits, 37: PA2 over the minute bits.
	// Even parity: the parity bit makes the total count of ones even.
	f[36] = paritySymbol(tp.Hour)
	f[37] = paritySymbol(tp.Minute)

	if callSignMinute(tp.Minute) {
		// Timecode 2: 40..48 call sign, 50..55 ST1..ST6, all idle here.
		return f
	}

	// 38 SU1, 40 SU2: summer-time announcement, never set in Japan.
	// 41..48: year within century, BCD 80 40 20 10 - 8 4 2 1
	putBCD(&f, 41, tp.Year/10%10, 4)
	putBCD(&f, 45, tp.Year%10, 4)

	// 50..52: weekday, BCD 4 2 1, Sunday = 0
	putBCD(&f, 50, int(tp.Weekday), 3)

	// 53 LS1, 54 LS2: leap second announcement. No announcement source
	// is wired in, so these always read "no leap second pending".
	return f
}

func callSignMinute(minute int) bool {
	return minute == 15 || minute == 45
}

// putBCD writes the low nbits of digit MSB-first starting at index
// start. BCD digits are 0..9, so binary placement is exact.
func putBCD(f *Frame, start, digit, nbits int) {
	for i := 0; i < nbits; i++ {
		if digit>>(nbits-1-i)&1 == 1 {
			f[start+i] = Bit1
		}
	}
}

// paritySymbol returns the even-parity bit over the BCD encoding of a
// two-digit value.
func paritySymbol(value int) Symbol {
	ones := bits.OnesCount(uint(value/10)) + bits.OnesCount(uint(value%10))
	if ones%2 == 1 {
		return Bit1
	}
	return Bit0
}

// String renders the frame in groups of ten seconds, for logs and the
// terminal monitor.
func (f Frame) String() string {
	var b strings.Builder
	for i, s := range f {
		if i > 0 && (i%10 == 0) {
			b.WriteByte(' ')
		}
		b.WriteString(s.String())
	}
	return b.String()
}
