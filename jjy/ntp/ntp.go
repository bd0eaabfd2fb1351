// Package ntp is the time-fetch collaborator: a minimal SNTP client
// (RFC 4330 subset) that resolves one server and returns a single UTC
// instant. Server selection, polling discipline and kernel clock
// adjustment are out of scope; the timesource package owns what
// happens to the result.
package ntp

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"
)

const packetSize = 48

// NTP timestamps count seconds since 1900-01-01 UTC (era 0).
var ntpEpoch = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

var (
	ErrShortPacket = errors.New("ntp: short packet")
	ErrBadMode     = errors.New("ntp: response is not from a server")
	ErrBadStratum  = errors.New("ntp: server unsynchronized")
	ErrZeroTime    = errors.New("ntp: zero transmit timestamp")
)

// packet is the RFC 5905 wire layout, big-endian.
type packet struct {
	LiVnMode       uint8
	Stratum        uint8
	Poll           int8
	Precision      int8
	RootDelay      uint32
	RootDispersion uint32
	ReferenceID    uint32
	RefTime        uint64
	OriginTime     uint64
	ReceiveTime    uint64
	TransmitTime   uint64
}

const (
	modeClient = 3
	modeServer = 4
	version    = 4
)

func (p *packet) mode() uint8 { return p.LiVnMode & 0x07 }

func (p *packet) marshal() []byte {
	buf := make([]byte, packetSize)
	buf[0] = p.LiVnMode
	buf[1] = p.Stratum
	buf[2] = byte(p.Poll)
	buf[3] = byte(p.Precision)
	binary.BigEndian.PutUint32(buf[4:], p.RootDelay)
	binary.BigEndian.PutUint32(buf[8:], p.RootDispersion)
	binary.BigEndian.PutUint32(buf[12:], p.ReferenceID)
	binary.BigEndian.PutUint64(buf[16:], p.RefTime)
	binary.BigEndian.PutUint64(buf[24:], p.OriginTime)
	binary.BigEndian.PutUint64(buf[32:], p.ReceiveTime)
	binary.BigEndian.PutUint64(buf[40:], p.TransmitTime)
	return buf
}

func parsePacket(buf []byte) (packet, error) {
	if len(buf) < packetSize {
		return packet{}, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(buf))
	}
	return packet{
		LiVnMode:       buf[0],
		Stratum:        buf[1],
		Poll:           int8(buf[2]),
		Precision:      int8(buf[3]),
		RootDelay:      binary.BigEndian.Uint32(buf[4:]),
		RootDispersion: binary.BigEndian.Uint32(buf[8:]),
		ReferenceID:    binary.BigEndian.Uint32(buf[12:]),
		RefTime:        binary.BigEndian.Uint64(buf[16:]),
		OriginTime:     binary.BigEndian.Uint64(buf[24:]),
		ReceiveTime:    binary.BigEndian.Uint64(buf[32:]),
		TransmitTime:   binary.BigEndian.Uint64(buf[40:]),
	}, nil
}

// toTimestamp converts a Go time to the 64-bit NTP fixed-point form:
// 32 bits of seconds, 32 bits of 1/2^32 second fractions.
func toTimestamp(t time.Time) uint64 {
	d := t.Sub(ntpEpoch)
	secs := uint64(d / time.Second)
	frac := uint64(d%time.Second) << 32 / uint64(time.Second)
	return secs<<32 | frac
}

// fromTimestamp converts back. Era 0 only, which holds until 2036;
// the plausibility check in timesource rejects anything that wraps.
func fromTimestamp(ts uint64) time.Time {
	secs := time.Duration(ts>>32) * time.Second
	frac := time.Duration((ts & 0xFFFFFFFF) * uint64(time.Second) >> 32)
	return ntpEpoch.Add(secs + frac)
}

// validate applies the RFC 4330 sanity checks to a server reply.
func validate(p packet) error {
	if p.mode() != modeServer {
		return fmt.Errorf("%w: mode %d", ErrBadMode, p.mode())
	}
	if p.Stratum == 0 || p.Stratum > 15 {
		return fmt.Errorf("%w: stratum %d", ErrBadStratum, p.Stratum)
	}
	if p.TransmitTime == 0 {
		return ErrZeroTime
	}
	return nil
}

// Fetch queries host (host:port) once and returns the current UTC
// instant, corrected for round-trip delay. The context deadline
// bounds the whole exchange.
func Fetch(ctx context.Context, host string) (time.Time, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", host)
	if err != nil {
		return time.Time{}, fmt.Errorf("ntp: dial %s: %w", host, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return time.Time{}, fmt.Errorf("ntp: set deadline: %w", err)
		}
	}

	t1 := time.Now()
	req := packet{
		LiVnMode:     version<<3 | modeClient,
		TransmitTime: toTimestamp(t1),
	}
	if _, err := conn.Write(req.marshal()); err != nil {
		return time.Time{}, fmt.Errorf("ntp: send: %w", err)
	}

	buf := make([]byte, packetSize)
	n, err := conn.Read(buf)
	if err != nil {
		return time.Time{}, fmt.Errorf("ntp: receive: %w", err)
	}
	t4 := time.Now()

	resp, err := parsePacket(buf[:n])
	if err != nil {
		return time.Time{}, err
	}
	if err := validate(resp); err != nil {
		return time.Time{}, err
	}

	// Standard SNTP offset: ((t2-t1) + (t3-t4)) / 2.
	t2 := fromTimestamp(resp.ReceiveTime)
	t3 := fromTimestamp(resp.TransmitTime)
	offset := (t2.Sub(t1) + t3.Sub(t4)) / 2

	return t4.Add(offset).UTC(), nil
}
