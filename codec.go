package canopy

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// MarshalRecord encodes a record as a field count followed by
// length-prefixed name, type byte and length-prefixed value text for each
// field.
func MarshalRecord(r Record) []byte {
	buf := make([]byte, 0, 16*len(r.names))
	buf = appendUvarint(buf, uint64(len(r.names)))
	for i, name := range r.names {
		buf = appendUvarint(buf, uint64(len(name)))
		buf = append(buf, name...)
		buf = append(buf, byte(r.values[i].Type()))
		val := r.values[i].String()
		buf = appendUvarint(buf, uint64(len(val)))
		buf = append(buf, val...)
	}
	return buf
}

// UnmarshalRecord decodes the output of MarshalRecord.
func UnmarshalRecord(data []byte) (Record, error) {
	n, data, err := readUvarint(data)
	if err != nil {
		return Record{}, errors.Wrap(err, "reading field count")
	}
	r := Record{
		names:  make([]string, 0, n),
		values: make([]Value, 0, n),
	}
	for i := uint64(0); i < n; i++ {
		var name, val []byte
		name, data, err = readBytes(data)
		if err != nil {
			return Record{}, errors.Wrapf(err, "reading name of field %d", i)
		}
		if len(data) == 0 {
			return Record{}, errors.Errorf("truncated record at type of field %d", i)
		}
		typ := Type(data[0])
		val, data, err = readBytes(data[1:])
		if err != nil {
			return Record{}, errors.Wrapf(err, "reading value of %s", name)
		}
		v, err := ParseValue(typ, string(val))
		if err != nil {
			return Record{}, errors.Wrapf(err, "parsing value of %s", name)
		}
		r.names = append(r.names, string(name))
		r.values = append(r.values, v)
	}
	return r, nil
}

func appendUvarint(buf []byte, x uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], x)
	return append(buf, tmp[:n]...)
}

func readUvarint(data []byte) (uint64, []byte, error) {
	x, n := binary.Uvarint(data)
	if n <= 0 {
		return 0, nil, errors.New("bad uvarint")
	}
	return x, data[n:], nil
}

func readBytes(data []byte) ([]byte, []byte, error) {
	l, data, err := readUvarint(data)
	if err != nil {
		return nil, nil, err
	}
	if uint64(len(data)) < l {
		return nil, nil, errors.Errorf("need %d bytes, have %d", l, len(data))
	}
	return data[:l], data[l:], nil
}
