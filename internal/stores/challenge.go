package stores

import (
	"bytes"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"time"
)

const (
	challengeRecordVersionV1 = 1
	challengeRecordSizeV1    = 1 + 2 + 8 + 8 + 32
)

var ErrChallengeRedisUnavailable = errors.New("challenge redis unavailable")

// ChallengeStatus is the outcome of checking a candidate hash.
type ChallengeStatus uint8

const (
	StatusMatched ChallengeStatus = iota
	StatusNotFound
	StatusExpired
	StatusAttemptsExceeded
	StatusMismatch
)

// ChallengeRecord is the stored form of a pending code. Instants are unix
// milliseconds.
type ChallengeRecord struct {
	SecretHash [32]byte
	Attempts   uint16
	ExpiresAt  int64
	CreatedAt  int64
}

// EvaluateChallenge applies the check order shared by every backend:
// expiry, then attempt budget, then the hash. On mismatch it increments
// record.Attempts and returns the attempts left before the increment
// exhausts the budget.
func EvaluateChallenge(record *ChallengeRecord, providedHash [32]byte, maxAttempts int, now time.Time) (ChallengeStatus, int) {
	if now.UnixMilli() > record.ExpiresAt {
		return StatusExpired, 0
	}
	if int(record.Attempts) >= maxAttempts {
		return StatusAttemptsExceeded, 0
	}
	if subtle.ConstantTimeCompare(record.SecretHash[:], providedHash[:]) != 1 {
		left := maxAttempts - 1 - int(record.Attempts)
		if left < 0 {
			left = 0
		}
		record.Attempts++
		return StatusMismatch, left
	}
	return StatusMatched, 0
}

func encodeChallengeRecord(record *ChallengeRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(challengeRecordSizeV1)

	buf.WriteByte(challengeRecordVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}
	buf.Write(record.SecretHash[:])

	return buf.Bytes(), nil
}

func decodeChallengeRecord(data []byte) (*ChallengeRecord, error) {
	if len(data) != challengeRecordSizeV1 {
		return nil, errors.New("invalid challenge record size")
	}

	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != challengeRecordVersionV1 {
		return nil, errors.New("invalid challenge record version")
	}

	record := &ChallengeRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, err
	}
	if _, err := reader.Read(record.SecretHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
