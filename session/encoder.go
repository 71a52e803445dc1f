package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const (
	sessionFormatVersionCurrent = 1
)

// Encode serializes a session into the compact versioned binary layout used
// for Redis values.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionFormatVersionCurrent)

	if len(s.AccountID) > 255 {
		return nil, errors.New("accountID too long")
	}
	buf.WriteByte(byte(len(s.AccountID)))
	buf.WriteString(s.AccountID)

	if len(s.Role) > 255 {
		return nil, errors.New("role too long")
	}
	buf.WriteByte(byte(len(s.Role)))
	buf.WriteString(s.Role)

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses an encoded session. SessionID is not part of the value; the
// store fills it from the key.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionFormatVersionCurrent {
		return nil, errors.New("unknown session format version")
	}

	s := &Session{}

	for _, field := range []*string{&s.AccountID, &s.Role} {
		length, err := reader.ReadByte()
		if err != nil {
			return nil, err
		}
		raw := make([]byte, length)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, err
		}
		*field = string(raw)
	}

	if err := binary.Read(reader, binary.BigEndian, &s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.ExpiresAt); err != nil {
		return nil, err
	}

	return s, nil
}
