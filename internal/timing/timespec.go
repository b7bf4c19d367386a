// Package timing provides the monotonic timestamp arithmetic shared by the
// collector and the prober.
package timing

import (
	"strconv"
	"time"
)

const nanosPerSecond = int64(time.Second)

// Timespec is a seconds/nanoseconds pair. A normalized value keeps Nsec in
// [0, 1e9); negative spans carry the sign in Sec.
type Timespec struct {
	Sec  int64
	Nsec int64
}

// FromDuration splits d into a normalized Timespec.
func FromDuration(d time.Duration) Timespec {
	ns := int64(d)
	sec := ns / nanosPerSecond
	nsec := ns % nanosPerSecond
	if nsec < 0 {
		sec--
		nsec += nanosPerSecond
	}
	return Timespec{Sec: sec, Nsec: nsec}
}

// Diff returns end - start, borrowing one second when the nanosecond field
// would go negative.
func Diff(start, end Timespec) Timespec {
	if end.Nsec-start.Nsec < 0 {
		return Timespec{
			Sec:  end.Sec - start.Sec - 1,
			Nsec: nanosPerSecond + end.Nsec - start.Nsec,
		}
	}
	return Timespec{
		Sec:  end.Sec - start.Sec,
		Nsec: end.Nsec - start.Nsec,
	}
}

// Duration converts t back to a time.Duration.
func (t Timespec) Duration() time.Duration {
	return time.Duration(t.Sec*nanosPerSecond + t.Nsec)
}

// Before reports whether t is earlier than u.
func (t Timespec) Before(u Timespec) bool {
	return t.Sec < u.Sec || (t.Sec == u.Sec && t.Nsec < u.Nsec)
}

// AppendFormat appends "<sec>.<nsec>" with the nanoseconds zero-padded to
// nine digits.
func (t Timespec) AppendFormat(dst []byte) []byte {
	dst = strconv.AppendInt(dst, t.Sec, 10)
	dst = append(dst, '.')
	var digits [9]byte
	n := t.Nsec
	for i := len(digits) - 1; i >= 0; i-- {
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return append(dst, digits[:]...)
}

func (t Timespec) String() string {
	return string(t.AppendFormat(make([]byte, 0, 24)))
}

// ParseTimespec parses the "<sec>.<nsec>" form written by AppendFormat.
func ParseTimespec(s string) (Timespec, error) {
	dot := -1
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			dot = i
			break
		}
	}
	if dot < 0 || len(s)-dot-1 != 9 {
		return Timespec{}, &strconv.NumError{Func: "ParseTimespec", Num: s, Err: strconv.ErrSyntax}
	}
	sec, err := strconv.ParseInt(s[:dot], 10, 64)
	if err != nil {
		return Timespec{}, err
	}
	nsec, err := strconv.ParseInt(s[dot+1:], 10, 64)
	if err != nil || nsec < 0 {
		return Timespec{}, &strconv.NumError{Func: "ParseTimespec", Num: s, Err: strconv.ErrSyntax}
	}
	return Timespec{Sec: sec, Nsec: nsec}, nil
}
