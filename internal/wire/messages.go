package wire

import (
	"github.com/blunan/Stratos/internal/addr"
	"github.com/blunan/Stratos/internal/position"
)

// Hello carries no body beyond the type octet (§6).
type Hello struct{}

// Bytes encodes a Hello datagram.
func (Hello) Bytes() []byte {
	return []byte{TypeHello}
}

// OfferedService is the (service_name, semantic_distance) pair an ontology
// reports (§3).
type OfferedService struct {
	Name             string
	SemanticDistance int32
}

// SearchRequest is the discovery-port request body (§3).
type SearchRequest struct {
	OriginAddress      addr.Address
	OriginTimestamp    float64
	OriginPosition     position.Position
	RequestedService   string
	MaxHopsAllowed     byte
	CurrentHops        byte
	MaxDistanceAllowed float64
}

// Bytes encodes a SearchRequest datagram.
func (m SearchRequest) Bytes() []byte {
	w := &writer{}
	w.writeByte(TypeSearchRequest)
	w.writeAddr(m.OriginAddress)
	w.writeFloat64(m.OriginTimestamp)
	w.writePosition(m.OriginPosition)
	w.writeString(m.RequestedService)
	w.writeByte(m.MaxHopsAllowed)
	w.writeByte(m.CurrentHops)
	w.writeFloat64(m.MaxDistanceAllowed)
	return w.bytes()
}

func decodeSearchRequest(body []byte) (SearchRequest, error) {
	r := newReader(body)
	m := SearchRequest{
		OriginAddress:   r.addr(),
		OriginTimestamp: r.float64(),
		OriginPosition:  r.position(),
	}
	m.RequestedService = r.string()
	m.MaxHopsAllowed = r.byte()
	m.CurrentHops = r.byte()
	m.MaxDistanceAllowed = r.float64()
	return m, r.err
}

// SearchResponse flows back toward the request's origin (§3).
type SearchResponse struct {
	OriginAddress    addr.Address
	OriginTimestamp  float64
	ResponderAddress addr.Address
	HopDistance      byte
	PlanarDistance   float64
	OfferedService   OfferedService
}

// Bytes encodes a SearchResponse datagram.
func (m SearchResponse) Bytes() []byte {
	w := &writer{}
	w.writeByte(TypeSearchResponse)
	w.writeAddr(m.OriginAddress)
	w.writeFloat64(m.OriginTimestamp)
	w.writeAddr(m.ResponderAddress)
	w.writeByte(m.HopDistance)
	w.writeFloat64(m.PlanarDistance)
	w.writeString(m.OfferedService.Name)
	w.writeInt32(m.OfferedService.SemanticDistance)
	return w.bytes()
}

func decodeSearchResponse(body []byte) (SearchResponse, error) {
	r := newReader(body)
	m := SearchResponse{
		OriginAddress:    r.addr(),
		OriginTimestamp:  r.float64(),
		ResponderAddress: r.addr(),
		HopDistance:      r.byte(),
		PlanarDistance:   r.float64(),
	}
	m.OfferedService.Name = r.string()
	m.OfferedService.SemanticDistance = r.int32()
	return m, r.err
}

// SearchError revokes a spurious parent claim (§3).
type SearchError struct {
	OriginAddress   addr.Address
	OriginTimestamp float64
}

// Bytes encodes a SearchError datagram.
func (m SearchError) Bytes() []byte {
	w := &writer{}
	w.writeByte(TypeSearchError)
	w.writeAddr(m.OriginAddress)
	w.writeFloat64(m.OriginTimestamp)
	return w.bytes()
}

func decodeSearchError(body []byte) (SearchError, error) {
	r := newReader(body)
	m := SearchError{
		OriginAddress:   r.addr(),
		OriginTimestamp: r.float64(),
	}
	return m, r.err
}

// ServiceRequestResponse is the dialogue body shared by ServiceRequest and
// ServiceResponse datagrams (§3); padded to PacketLength on the wire.
type ServiceRequestResponse struct {
	SenderAddress      addr.Address
	DestinationAddress addr.Address
	Service            string
	Flag               Flag
}

// BytesAs encodes the dialogue body as the given type (TypeServiceRequest
// or TypeServiceResponse), padded to PacketLength per §6.
func (m ServiceRequestResponse) BytesAs(t byte) []byte {
	w := &writer{}
	w.writeByte(t)
	w.writeAddr(m.SenderAddress)
	w.writeAddr(m.DestinationAddress)
	w.writeString(m.Service)
	w.writeByte(byte(m.Flag))
	return pad(w.bytes())
}

func decodeServiceRequestResponse(body []byte) (ServiceRequestResponse, error) {
	r := newReader(body)
	m := ServiceRequestResponse{
		SenderAddress:      r.addr(),
		DestinationAddress: r.addr(),
	}
	m.Service = r.string()
	m.Flag = Flag(r.byte())
	return m, r.err
}

// ServiceError signals a dialogue abort (§3).
type ServiceError struct {
	SenderAddress      addr.Address
	DestinationAddress addr.Address
	Service            string
}

// Bytes encodes a ServiceError datagram.
func (m ServiceError) Bytes() []byte {
	w := &writer{}
	w.writeByte(TypeServiceError)
	w.writeAddr(m.SenderAddress)
	w.writeAddr(m.DestinationAddress)
	w.writeString(m.Service)
	return w.bytes()
}

func decodeServiceError(body []byte) (ServiceError, error) {
	r := newReader(body)
	m := ServiceError{
		SenderAddress:      r.addr(),
		DestinationAddress: r.addr(),
	}
	m.Service = r.string()
	return m, r.err
}
