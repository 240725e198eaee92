package trace

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/matoous/eccentric/mail"
	"github.com/signalsciences/tlstext"
)

// Info holds everything the Received header says about one accepted message
type Info struct {
	ClientDomain string   // name the client greeted with
	RemoteAddr   net.Addr // client address
	ReverseName  string   // PTR name of the client, empty when unknown
	Hostname     string   // our own name
	TLS          *tls.ConnectionState
	ID           string // session id
	Recipients   []string
	Time         time.Time
}

// TLSInfo describes the negotiated TLS parameters, e.g. "(using TLS1.3 with cipher TLS_AES_128_GCM_SHA256)"
func TLSInfo(state *tls.ConnectionState) string {
	return fmt.Sprintf("(using %s with cipher %s)", tlstext.VersionFromConnection(state), tlstext.CipherSuiteFromConnection(state))
}

/*
Received builds the trace header prepended to every accepted message, folded
and terminated by CRLF:

	Received: from client.example (mx.client.example [192.0.2.1])
		by mx.example.com (Eccentric) with ESMTP id V1StGXR8_Z5jdHi6B-myT
		for <user@example.com>; Mon, 02 Jan 2006 15:04:05 -0700
*/
func Received(info Info) string {
	var h bytes.Buffer
	h.WriteString("Received: from ")
	if info.ClientDomain != "" {
		h.WriteString(info.ClientDomain)
	} else {
		h.WriteString("unknown")
	}

	// host and IP
	h.WriteString(" (")
	if info.ReverseName != "" {
		h.WriteString(info.ReverseName)
	} else {
		h.WriteString("no reverse")
	}
	if ip := RemoteIP(info.RemoteAddr); ip != nil {
		h.WriteString(" [")
		h.WriteString(ip.String())
		h.WriteByte(']')
	}
	h.WriteString(") ")

	// TLS
	if info.TLS != nil {
		h.WriteString(TLSInfo(info.TLS))
		h.WriteByte(' ')
	}

	// local
	h.WriteString("by ")
	h.WriteString(info.Hostname)
	h.WriteString(" (Eccentric)")

	// proto
	if info.TLS != nil {
		h.WriteString(" with ESMTPS")
	} else {
		h.WriteString(" with ESMTP")
	}
	if info.ID != "" {
		h.WriteString(" id ")
		h.WriteString(info.ID)
	}

	// only a single recipient is disclosed
	if len(info.Recipients) == 1 {
		h.WriteString(" for ")
		h.WriteString(info.Recipients[0])
	}

	// timestamp
	ts := info.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	h.WriteString("; ")
	h.WriteString(ts.Format(time.RFC1123Z))

	return string(mail.FoldHeader(h.Bytes())) + "\r\n"
}
