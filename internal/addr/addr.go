// Package addr provides the node address type used across STRATOS: a bare
// uint32, matching the wire encoding of origin/responder/sender/destination
// fields (§6 of the specification).
package addr

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Address identifies a node. It is compared and ordered numerically, as
// required by SelectBest's responder_address tie-break.
type Address uint32

// String renders the address as a dotted-quad, since in practice addresses
// are assigned from the simulation's IPv4-shaped address space.
func (a Address) String() string {
	return FromIP(a.IP()).ipString()
}

// IP converts the address to its dotted-quad net.IP form.
func (a Address) IP() net.IP {
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, uint32(a))
	return ip
}

func (a Address) ipString() string {
	return a.IP().String()
}

// FromIP converts a 4-byte (or 4-in-16) IP address into an Address.
func FromIP(ip net.IP) Address {
	ip4 := ip.To4()
	if ip4 == nil {
		return 0
	}
	return Address(binary.BigEndian.Uint32(ip4))
}

// Parse converts a dotted-quad string into an Address, returning an error if
// it does not parse as IPv4.
func Parse(s string) (Address, error) {
	ip := net.ParseIP(s)
	if ip == nil || ip.To4() == nil {
		return 0, fmt.Errorf("addr: %q is not a valid IPv4 address", s)
	}
	return FromIP(ip), nil
}
