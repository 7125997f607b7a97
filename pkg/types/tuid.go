package types

import (
	"encoding/binary"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Tuid is a 128-bit Time-based Unique IDentifier.
// Format: 64-bit wall-clock nanoseconds + 64-bit monotonic counter.
// Tuids order by time first, then counter, which is also their big-endian byte order.
type Tuid struct {
	timeNs uint64
	inc    uint64
}

// Crockford's Base32 alphabet (excludes I, L, O, U to avoid confusion)
const crockfordBase32 = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// MaxTuid is the largest representable Tuid.
var MaxTuid = Tuid{timeNs: math.MaxUint64, inc: math.MaxUint64}

// TuidGenerator generates strictly increasing Tuids, even when the wall clock
// stalls or goes backwards.
type TuidGenerator struct {
	mu   sync.Mutex
	last Tuid
	now  func() time.Time
}

// NewTuidGenerator creates a new Tuid generator backed by the wall clock.
func NewTuidGenerator() *TuidGenerator {
	return &TuidGenerator{now: time.Now}
}

// NewTuidGeneratorWithClock creates a generator reading time from now.
// This is useful for testing.
func NewTuidGeneratorWithClock(now func() time.Time) *TuidGenerator {
	return &TuidGenerator{now: now}
}

var defaultGenerator = NewTuidGenerator()

// NewTuid returns a new Tuid from the process-wide generator.
func NewTuid() Tuid {
	return defaultGenerator.New()
}

// New creates a new Tuid strictly greater than every Tuid previously
// returned by this generator.
func (g *TuidGenerator) New() Tuid {
	g.mu.Lock()
	defer g.mu.Unlock()

	ns := uint64(g.now().UnixNano())

	var next Tuid
	if ns > g.last.timeNs {
		// New nanosecond: start from a random counter with the top bit cleared
		// so that plenty of increments remain before overflowing into the time part.
		next = Tuid{timeNs: ns, inc: rand.Uint64() &^ (1 << 63)}
	} else {
		// Same (or regressed) clock: keep the last time and bump the counter
		next = g.last.Next()
	}
	g.last = next
	return next
}

// TuidFromParts creates a Tuid from its time and counter halves.
func TuidFromParts(timeNs, inc uint64) Tuid {
	return Tuid{timeNs: timeNs, inc: inc}
}

// TuidFromU128 is an alias of TuidFromParts for callers holding a (hi, lo) pair.
func TuidFromU128(hi, lo uint64) Tuid {
	return Tuid{timeNs: hi, inc: lo}
}

// AsU128 returns the (hi, lo) halves of the 128-bit value.
func (u Tuid) AsU128() (hi, lo uint64) {
	return u.timeNs, u.inc
}

// TimeNs returns the time half of the Tuid as nanoseconds since the Unix epoch.
func (u Tuid) TimeNs() uint64 {
	return u.timeNs
}

// Inc returns the counter half of the Tuid.
func (u Tuid) Inc() uint64 {
	return u.inc
}

// Time returns the time half as a time.Time.
func (u Tuid) Time() time.Time {
	return time.Unix(0, int64(u.timeNs))
}

// IsZero reports whether u is the all-zero Tuid.
func (u Tuid) IsZero() bool {
	return u.timeNs == 0 && u.inc == 0
}

// Next returns the successor of u.
// A counter overflow carries into the time half. The maximum Tuid saturates:
// MaxTuid.Next() == MaxTuid.
func (u Tuid) Next() Tuid {
	return u.IncrementN(1)
}

// IncrementN returns u advanced by n, saturating at MaxTuid.
func (u Tuid) IncrementN(n uint64) Tuid {
	inc := u.inc + n
	if inc >= u.inc {
		return Tuid{timeNs: u.timeNs, inc: inc}
	}
	// Counter wrapped: carry one into the time half
	if u.timeNs == math.MaxUint64 {
		return MaxTuid
	}
	return Tuid{timeNs: u.timeNs + 1, inc: inc}
}

// Compare compares two Tuids.
// Returns -1 if u < other, 0 if u == other, 1 if u > other.
func (u Tuid) Compare(other Tuid) int {
	switch {
	case u.timeNs < other.timeNs:
		return -1
	case u.timeNs > other.timeNs:
		return 1
	case u.inc < other.inc:
		return -1
	case u.inc > other.inc:
		return 1
	}
	return 0
}

// Less reports whether u sorts before other.
func (u Tuid) Less(other Tuid) bool {
	return u.Compare(other) < 0
}

// Bytes returns the Tuid as 16 big-endian bytes.
func (u Tuid) Bytes() []byte {
	var b [16]byte
	binary.BigEndian.PutUint64(b[0:8], u.timeNs)
	binary.BigEndian.PutUint64(b[8:16], u.inc)
	return b[:]
}

// TuidFromBytes creates a Tuid from 16 big-endian bytes.
func TuidFromBytes(b []byte) (Tuid, error) {
	if len(b) != 16 {
		return Tuid{}, ErrInvalidTuidLength
	}
	return Tuid{
		timeNs: binary.BigEndian.Uint64(b[0:8]),
		inc:    binary.BigEndian.Uint64(b[8:16]),
	}, nil
}

// String returns the Tuid as a 26-character Crockford Base32 string.
// The encoding preserves ordering: lexicographic string order equals Tuid order.
func (u Tuid) String() string {
	var b [16]byte
	copy(b[:], u.Bytes())

	// 128 bits are encoded as 26 characters; the first carries the top 3 bits only.
	var buf [26]byte
	buf[0] = crockfordBase32[(b[0]&224)>>5]
	buf[1] = crockfordBase32[b[0]&31]
	buf[2] = crockfordBase32[(b[1]&248)>>3]
	buf[3] = crockfordBase32[((b[1]&7)<<2)|((b[2]&192)>>6)]
	buf[4] = crockfordBase32[(b[2]&62)>>1]
	buf[5] = crockfordBase32[((b[2]&1)<<4)|((b[3]&240)>>4)]
	buf[6] = crockfordBase32[((b[3]&15)<<1)|((b[4]&128)>>7)]
	buf[7] = crockfordBase32[(b[4]&124)>>2]
	buf[8] = crockfordBase32[((b[4]&3)<<3)|((b[5]&224)>>5)]
	buf[9] = crockfordBase32[b[5]&31]
	buf[10] = crockfordBase32[(b[6]&248)>>3]
	buf[11] = crockfordBase32[((b[6]&7)<<2)|((b[7]&192)>>6)]
	buf[12] = crockfordBase32[(b[7]&62)>>1]
	buf[13] = crockfordBase32[((b[7]&1)<<4)|((b[8]&240)>>4)]
	buf[14] = crockfordBase32[((b[8]&15)<<1)|((b[9]&128)>>7)]
	buf[15] = crockfordBase32[(b[9]&124)>>2]
	buf[16] = crockfordBase32[((b[9]&3)<<3)|((b[10]&224)>>5)]
	buf[17] = crockfordBase32[b[10]&31]
	buf[18] = crockfordBase32[(b[11]&248)>>3]
	buf[19] = crockfordBase32[((b[11]&7)<<2)|((b[12]&192)>>6)]
	buf[20] = crockfordBase32[(b[12]&62)>>1]
	buf[21] = crockfordBase32[((b[12]&1)<<4)|((b[13]&240)>>4)]
	buf[22] = crockfordBase32[((b[13]&15)<<1)|((b[14]&128)>>7)]
	buf[23] = crockfordBase32[(b[14]&124)>>2]
	buf[24] = crockfordBase32[((b[14]&3)<<3)|((b[15]&224)>>5)]
	buf[25] = crockfordBase32[b[15]&31]

	return string(buf[:])
}

// ParseTuid parses a 26-character Crockford Base32 string into a Tuid.
func ParseTuid(s string) (Tuid, error) {
	if len(s) != 26 {
		return Tuid{}, ErrInvalidTuidLength
	}

	var dec [26]byte
	for i := 0; i < len(s); i++ {
		idx := decodeBase32(s[i])
		if idx == 0xFF {
			return Tuid{}, ErrInvalidTuidCharacter
		}
		dec[i] = idx
	}
	// The leading character only holds 3 bits.
	if dec[0] > 7 {
		return Tuid{}, ErrInvalidTuidCharacter
	}

	var b [16]byte
	b[0] = (dec[0] << 5) | dec[1]
	b[1] = (dec[2] << 3) | (dec[3] >> 2)
	b[2] = (dec[3] << 6) | (dec[4] << 1) | (dec[5] >> 4)
	b[3] = (dec[5] << 4) | (dec[6] >> 1)
	b[4] = (dec[6] << 7) | (dec[7] << 2) | (dec[8] >> 3)
	b[5] = (dec[8] << 5) | dec[9]
	b[6] = (dec[10] << 3) | (dec[11] >> 2)
	b[7] = (dec[11] << 6) | (dec[12] << 1) | (dec[13] >> 4)
	b[8] = (dec[13] << 4) | (dec[14] >> 1)
	b[9] = (dec[14] << 7) | (dec[15] << 2) | (dec[16] >> 3)
	b[10] = (dec[16] << 5) | dec[17]
	b[11] = (dec[18] << 3) | (dec[19] >> 2)
	b[12] = (dec[19] << 6) | (dec[20] << 1) | (dec[21] >> 4)
	b[13] = (dec[21] << 4) | (dec[22] >> 1)
	b[14] = (dec[22] << 7) | (dec[23] << 2) | (dec[24] >> 3)
	b[15] = (dec[24] << 5) | dec[25]

	return TuidFromBytes(b[:])
}

// decodeBase32 decodes a single Crockford Base32 character.
// Returns 0xFF for invalid characters.
func decodeBase32(c byte) byte {
	if c >= 'a' && c <= 'z' {
		c -= 'a' - 'A'
	}
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'H':
		return c - 'A' + 10
	case c >= 'J' && c <= 'K':
		return c - 'J' + 18
	case c >= 'M' && c <= 'N':
		return c - 'M' + 20
	case c >= 'P' && c <= 'T':
		return c - 'P' + 22
	case c >= 'V' && c <= 'Z':
		return c - 'V' + 27
	default:
		return 0xFF
	}
}
