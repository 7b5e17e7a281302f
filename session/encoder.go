package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const sessionFormatVersionCurrent = 1

const (
	flagRevoked byte = 1 << iota
	flagTwoFactorUsed
	flagRememberMe
)

// ErrSessionCorrupt is returned when a stored session record cannot be decoded.
var ErrSessionCorrupt = errors.New("session record corrupt")

func writeShortString(buf *bytes.Buffer, field, value string) error {
	if len(value) > 255 {
		return errors.New(field + " too long")
	}
	buf.WriteByte(byte(len(value)))
	buf.WriteString(value)
	return nil
}

func readShortString(reader *bytes.Reader) (string, error) {
	n, err := reader.ReadByte()
	if err != nil {
		return "", err
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}

// Encode serializes s into the current binary session format. The session ID
// is not part of the record; it is the Redis key.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionFormatVersionCurrent)

	if err := writeShortString(&buf, "userID", s.UserID); err != nil {
		return nil, err
	}
	if err := writeShortString(&buf, "ip", s.IP); err != nil {
		return nil, err
	}
	userAgent := s.UserAgent
	if len(userAgent) > 255 {
		userAgent = userAgent[:255]
	}
	if err := writeShortString(&buf, "userAgent", userAgent); err != nil {
		return nil, err
	}
	if err := writeShortString(&buf, "revokeReason", s.RevokeReason); err != nil {
		return nil, err
	}

	var flags byte
	if s.Revoked {
		flags |= flagRevoked
	}
	if s.TwoFactorUsed {
		flags |= flagTwoFactorUsed
	}
	if s.RememberMe {
		flags |= flagRememberMe
	}
	buf.WriteByte(flags)

	for _, v := range []int64{s.CreatedAt, s.ExpiresAt, s.RevokedAt} {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// Decode parses a record produced by [Encode].
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, ErrSessionCorrupt
	}
	if version != sessionFormatVersionCurrent {
		return nil, fmt.Errorf("%w: invalid session version %d", ErrSessionCorrupt, version)
	}

	s := &Session{}
	fields := []*string{&s.UserID, &s.IP, &s.UserAgent, &s.RevokeReason}
	for _, field := range fields {
		v, err := readShortString(reader)
		if err != nil {
			return nil, ErrSessionCorrupt
		}
		*field = v
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, ErrSessionCorrupt
	}
	s.Revoked = flags&flagRevoked != 0
	s.TwoFactorUsed = flags&flagTwoFactorUsed != 0
	s.RememberMe = flags&flagRememberMe != 0

	for _, field := range []*int64{&s.CreatedAt, &s.ExpiresAt, &s.RevokedAt} {
		if err := binary.Read(reader, binary.BigEndian, field); err != nil {
			return nil, ErrSessionCorrupt
		}
	}

	return s, nil
}
