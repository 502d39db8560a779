package eventstream

import (
	"encoding/binary"
	"io"
)

// Header is the parsed preamble of an Event Stream file.
type Header struct {
	Version       [3]byte
	EventType     Type
	Width, Height uint16
}

// ReadHeader validates the signature and version and parses the type byte
// and, for every non-generic type, the width/height pair, per
// sepia::read_header.
func ReadHeader(r io.Reader) (Header, error) {
	sig := make([]byte, len(Signature))
	if _, err := io.ReadFull(r, sig); err != nil {
		return Header{}, &WrongSignature{}
	}
	if string(sig) != Signature {
		return Header{}, &WrongSignature{}
	}

	var header Header
	version := make([]byte, 3)
	if _, err := io.ReadFull(r, version); err != nil {
		return Header{}, &IncompleteHeader{}
	}
	copy(header.Version[:], version)
	if header.Version[0] != Version[0] || header.Version[1] < Version[1] {
		return Header{}, &UnsupportedVersion{}
	}

	typeByte := make([]byte, 1)
	if _, err := io.ReadFull(r, typeByte); err != nil {
		return Header{}, &IncompleteHeader{}
	}
	switch Type(typeByte[0]) {
	case TypeGeneric, TypeDVS, TypeATIS, TypeColor:
		header.EventType = Type(typeByte[0])
	default:
		return Header{}, &UnsupportedEventType{}
	}

	if header.EventType != TypeGeneric {
		size := make([]byte, 4)
		if _, err := io.ReadFull(r, size); err != nil {
			return Header{}, &IncompleteHeader{}
		}
		header.Width = binary.LittleEndian.Uint16(size[0:2])
		header.Height = binary.LittleEndian.Uint16(size[2:4])
	}
	return header, nil
}

// WriteHeader writes the signature, version, type byte, and (for
// non-generic types) the little-endian width/height pair.
func WriteHeader(w io.Writer, eventType Type, width, height uint16) error {
	if _, err := io.WriteString(w, Signature); err != nil {
		return err
	}
	if _, err := w.Write(Version[:]); err != nil {
		return err
	}
	if eventType == TypeGeneric {
		_, err := w.Write([]byte{byte(eventType)})
		return err
	}
	buf := make([]byte, 5)
	buf[0] = byte(eventType)
	binary.LittleEndian.PutUint16(buf[1:3], width)
	binary.LittleEndian.PutUint16(buf[3:5], height)
	_, err := w.Write(buf)
	return err
}
