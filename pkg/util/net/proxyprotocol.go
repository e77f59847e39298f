package net

import (
	"bytes"
	"fmt"
	"net"
	"time"

	pp "github.com/pires/go-proxyproto"
)

const defaultProxyHeaderTimeout = 5 * time.Second

// NewProxyListener makes Accept strip a PROXY protocol v1/v2 header and report the
// original client as RemoteAddr. Connections without a header pass through unchanged.
func NewProxyListener(ln net.Listener, headerTimeout time.Duration) net.Listener {
	if headerTimeout <= 0 {
		headerTimeout = defaultProxyHeaderTimeout
	}
	return &pp.Listener{Listener: ln, ReadHeaderTimeout: headerTimeout}
}

func BuildProxyProtocolHeaderStruct(srcAddr, dstAddr net.Addr, version string) *pp.Header {
	var versionByte byte
	if version == "v1" {
		versionByte = 1
	} else {
		versionByte = 2 // default to v2
	}
	return pp.HeaderProxyFromAddrs(versionByte, srcAddr, dstAddr)
}

func BuildProxyProtocolHeader(srcAddr, dstAddr net.Addr, version string) ([]byte, error) {
	h := BuildProxyProtocolHeaderStruct(srcAddr, dstAddr, version)

	var buf bytes.Buffer
	_, err := h.WriteTo(&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to write proxy protocol header: %v", err)
	}
	return buf.Bytes(), nil
}
