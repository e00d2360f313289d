package mtr

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/hyqhyq3/wmtr/internal/i18n"
)

const (
	protoICMP   = 1
	protoICMPv6 = 58

	ipv6HeaderLen = 40
	readBufSize   = 1 << 16
)

// Source quench is deprecated and gone from the x/net IANA table, but old
// routers still send it.
const icmpTypeSourceQuench = ipv4.ICMPType(4)

// ICMPTransport sends ICMP echo requests over a single raw socket shared by
// all workers. Sends are serialized because the TTL is a socket option; a
// reader goroutine matches answers to outstanding probes by sequence number.
type ICMPTransport struct {
	ipVersion int
	proto     int
	conn      *icmp.PacketConn
	id        int
	log       *logrus.Entry

	sendMu sync.Mutex
	seq    atomic.Uint32

	mu      sync.Mutex
	pending map[int]chan inbound

	done      chan struct{}
	closeOnce sync.Once

	// dead is closed when the receiver stops on a read error; readErr
	// holds that error.
	dead     chan struct{}
	deadOnce sync.Once
	readErr  error
}

type inbound struct {
	status Status
	from   netip.Addr
	at     time.Time
}

func NewICMPTransport(ipVersion int) (*ICMPTransport, error) {
	network, addr, proto := "ip4:icmp", "0.0.0.0", protoICMP
	if ipVersion == 6 {
		network, addr, proto = "ip6:ipv6-icmp", "::", protoICMPv6
	}

	conn, err := icmp.ListenPacket(network, addr)
	if err != nil {
		if looksLikePermission(err) {
			return nil, fmt.Errorf("%s: %w", i18n.T("err.rawSocketPermission"), err)
		}
		return nil, fmt.Errorf("%s: %w", i18n.T("err.transportUnavailable"), err)
	}

	t := newICMPTransport(ipVersion, proto, os.Getpid()&0xffff)
	t.conn = conn
	go t.readLoop()
	return t, nil
}

func newICMPTransport(ipVersion, proto, id int) *ICMPTransport {
	return &ICMPTransport{
		ipVersion: ipVersion,
		proto:     proto,
		id:        id,
		log:       logrus.WithField("component", "icmp"),
		pending:   make(map[int]chan inbound),
		done:      make(chan struct{}),
		dead:      make(chan struct{}),
	}
}

func (t *ICMPTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		if t.conn != nil {
			err = t.conn.Close()
		}
	})
	return err
}

func (t *ICMPTransport) Probe(ctx context.Context, target netip.Addr, ttl, size int, timeout time.Duration) (EchoReply, error) {
	if !target.IsValid() {
		return EchoReply{}, errors.New(i18n.T("err.targetEmpty"))
	}
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-t.dead:
		return EchoReply{}, t.receiverErr()
	default:
	}

	seq := int(t.seq.Add(1) & 0xffff)
	ch := t.register(seq)
	defer t.unregister(seq)

	b, err := t.echoMessage(seq, size).Marshal(nil)
	if err != nil {
		return EchoReply{}, err
	}
	start, err := t.send(ttl, target, b)
	if err != nil {
		return EchoReply{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case in := <-ch:
		return EchoReply{Status: in.status, RTT: in.at.Sub(start), Responder: in.from}, nil
	case <-timer.C:
		return EchoReply{Status: StatusNoReply}, nil
	case <-ctx.Done():
		return EchoReply{Status: StatusNoReply}, nil
	case <-t.done:
		return EchoReply{}, net.ErrClosed
	case <-t.dead:
		return EchoReply{}, t.receiverErr()
	}
}

// fail records why the receiver stopped and wakes every waiting Probe.
func (t *ICMPTransport) fail(err error) {
	t.deadOnce.Do(func() {
		t.mu.Lock()
		t.readErr = err
		t.mu.Unlock()
		close(t.dead)
	})
}

func (t *ICMPTransport) receiverErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fmt.Errorf("icmp receiver stopped: %w", t.readErr)
}

func (t *ICMPTransport) register(seq int) chan inbound {
	ch := make(chan inbound, 1)
	t.mu.Lock()
	t.pending[seq] = ch
	t.mu.Unlock()
	return ch
}

func (t *ICMPTransport) unregister(seq int) {
	t.mu.Lock()
	delete(t.pending, seq)
	t.mu.Unlock()
}

func (t *ICMPTransport) deliver(seq int, in inbound) bool {
	t.mu.Lock()
	ch, ok := t.pending[seq]
	t.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- in:
		return true
	default:
		// duplicate answer for the same probe
		return false
	}
}

func (t *ICMPTransport) send(ttl int, target netip.Addr, b []byte) (time.Time, error) {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	if err := t.setTTL(ttl); err != nil {
		return time.Time{}, err
	}
	start := time.Now()
	if _, err := t.conn.WriteTo(b, &net.IPAddr{IP: target.AsSlice()}); err != nil {
		return time.Time{}, err
	}
	return start, nil
}

func (t *ICMPTransport) readLoop() {
	buf := make([]byte, readBufSize)
	for {
		n, peer, err := t.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-t.done:
				return
			default:
			}
			if isTimeout(err) {
				continue
			}
			t.log.WithError(err).Warn("icmp read failed, stopping receiver")
			t.fail(err)
			return
		}
		at := time.Now()

		rm, err := icmp.ParseMessage(t.proto, buf[:n])
		if err != nil {
			continue
		}
		seq, status, ok := t.classify(rm)
		if !ok {
			continue
		}
		if !t.deliver(seq, inbound{status: status, from: peerAddr(peer), at: at}) {
			t.log.WithFields(logrus.Fields{"seq": seq, "status": status}).Debug("unmatched icmp answer")
		}
	}
}

func (t *ICMPTransport) setTTL(ttl int) error {
	if ttl <= 0 {
		ttl = 1
	}
	if t.ipVersion == 6 {
		return t.conn.IPv6PacketConn().SetHopLimit(ttl)
	}
	return t.conn.IPv4PacketConn().SetTTL(ttl)
}

func (t *ICMPTransport) echoMessage(seq, size int) *icmp.Message {
	body := &icmp.Echo{ID: t.id, Seq: seq, Data: bytes.Repeat([]byte{' '}, size)}
	if t.ipVersion == 6 {
		return &icmp.Message{Type: ipv6.ICMPTypeEchoRequest, Body: body}
	}
	return &icmp.Message{Type: ipv4.ICMPTypeEcho, Body: body}
}

// classify maps an incoming ICMP message to the sequence number of the probe
// it answers and the resulting status. ok is false for foreign traffic.
func (t *ICMPTransport) classify(rm *icmp.Message) (seq int, status Status, ok bool) {
	if rm == nil {
		return 0, StatusNoReply, false
	}

	var quoted []byte
	switch rm.Type {
	case ipv4.ICMPTypeEchoReply, ipv6.ICMPTypeEchoReply:
		echo, isEcho := rm.Body.(*icmp.Echo)
		if !isEcho || echo.ID != t.id {
			return 0, StatusNoReply, false
		}
		return echo.Seq, StatusSuccess, true
	case ipv4.ICMPTypeTimeExceeded, ipv6.ICMPTypeTimeExceeded:
		b, isTE := rm.Body.(*icmp.TimeExceeded)
		if !isTE {
			return 0, StatusNoReply, false
		}
		quoted = b.Data
		status = StatusTransitExpired
		if rm.Code == 1 {
			status = StatusReassemblyExpired
		}
	case ipv4.ICMPTypeDestinationUnreachable, ipv6.ICMPTypeDestinationUnreachable:
		b, isDU := rm.Body.(*icmp.DstUnreach)
		if !isDU {
			return 0, StatusNoReply, false
		}
		quoted = b.Data
		status = t.unreachableStatus(rm.Code)
	case ipv4.ICMPTypeParameterProblem, ipv6.ICMPTypeParameterProblem:
		b, isPP := rm.Body.(*icmp.ParamProb)
		if !isPP {
			return 0, StatusNoReply, false
		}
		quoted = b.Data
		status = StatusParamProblem
	case ipv6.ICMPTypePacketTooBig:
		b, isPTB := rm.Body.(*icmp.PacketTooBig)
		if !isPTB {
			return 0, StatusNoReply, false
		}
		quoted = b.Data
		status = StatusPacketTooBig
	case icmpTypeSourceQuench:
		b, isRaw := rm.Body.(*icmp.RawBody)
		if !isRaw || len(b.Data) < 4 {
			return 0, StatusNoReply, false
		}
		// 4 unused bytes precede the quoted datagram
		quoted = b.Data[4:]
		status = StatusSourceQuench
	default:
		return 0, StatusNoReply, false
	}

	seq, ok = t.quotedSeq(quoted)
	return seq, status, ok
}

func (t *ICMPTransport) unreachableStatus(code int) Status {
	if t.ipVersion == 6 {
		switch code {
		case 0:
			return StatusNetUnreachable
		case 1, 2:
			return StatusBadDestination
		case 3:
			return StatusHostUnreachable
		case 4:
			return StatusPortUnreachable
		case 5, 6:
			return StatusBadRoute
		}
		return StatusGeneralFailure
	}
	switch code {
	case 0, 6, 11:
		return StatusNetUnreachable
	case 1, 7, 12:
		return StatusHostUnreachable
	case 2:
		return StatusProtoUnreachable
	case 3:
		return StatusPortUnreachable
	case 4:
		return StatusPacketTooBig
	case 5:
		return StatusBadRoute
	case 9, 10, 13:
		return StatusBadDestination
	}
	return StatusGeneralFailure
}

// quotedSeq extracts the echo sequence number from the original datagram
// quoted inside an ICMP error, if that datagram is one of our requests.
func (t *ICMPTransport) quotedSeq(data []byte) (int, bool) {
	var inner []byte
	var echoType byte
	if t.ipVersion == 6 {
		if _, err := ipv6.ParseHeader(data); err != nil || len(data) < ipv6HeaderLen+8 {
			return 0, false
		}
		inner = data[ipv6HeaderLen:]
		echoType = byte(ipv6.ICMPTypeEchoRequest)
	} else {
		h, err := ipv4.ParseHeader(data)
		if err != nil || h.Len <= 0 || len(data) < h.Len+8 {
			return 0, false
		}
		inner = data[h.Len:]
		echoType = byte(ipv4.ICMPTypeEcho)
	}

	if inner[0] != echoType {
		return 0, false
	}
	if int(binary.BigEndian.Uint16(inner[4:6])) != t.id {
		return 0, false
	}
	return int(binary.BigEndian.Uint16(inner[6:8])), true
}
