//go:build linux

package transport

import (
	"net"
	"time"

	"github.com/mikioh/tcp"
	"github.com/mikioh/tcpinfo"
)

// TCPDiag is a point-in-time sample of kernel TCP_INFO state for I/O-error
// diagnostics (spec.md §7), enough to distinguish a congested network from
// a hung partner. SampleTCPDiag returns it to its caller; no code path in
// this module attaches a sample to a log line or error.
type TCPDiag struct {
	State            string
	RTT              time.Duration
	RTTVar           time.Duration
	Retransmits      int
	CongestionWindow int
	SendMSS          int
}

// SampleTCPDiag reads TCP_INFO off conn's socket via the mikioh/tcp
// control-message path, mirroring the open/close syscall sampling pattern
// used by the pack's connection-stats wrappers (gatherAndReport +
// SyscallConn). Returns (nil, false) for non-TCP connections or when the
// kernel doesn't support the option.
func SampleTCPDiag(conn net.Conn) (*TCPDiag, bool) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil, false
	}
	c, err := tcp.NewConn(tcpConn)
	if err != nil {
		return nil, false
	}
	var o tcpinfo.Info
	var b [256]byte
	i, err := c.Option(o.Level(), o.Name(), b[:])
	if err != nil {
		return nil, false
	}
	info, ok := i.(*tcpinfo.Info)
	if !ok {
		return nil, false
	}

	diag := &TCPDiag{State: info.State.String()}
	for _, opt := range info.Options {
		sys, ok := opt.(*tcpinfo.SysInfo)
		if !ok {
			continue
		}
		diag.RTT = sys.RTT
		diag.RTTVar = sys.RTTVar
		diag.Retransmits = sys.Retransmits
		diag.CongestionWindow = sys.SendCWND
		diag.SendMSS = sys.SendMSS
		break
	}
	return diag, true
}
