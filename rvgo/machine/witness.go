package machine

import (
	"bytes"
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	VMStatusValid      = 0
	VMStatusInvalid    = 1
	VMStatusPanic      = 2
	VMStatusUnfinished = 3
)

// VMStatus classifies the outcome of the program: unfinished while any hart
// may still run, otherwise by exit code (0 valid, 1 invalid, other panic).
func (s *Snapshot) VMStatus() uint8 {
	code, exited := uint32(0), true
	if s.GroupExit != nil {
		code = *s.GroupExit
	} else {
		for i, st := range s.Status {
			if !st.Exited {
				exited = false
				break
			}
			if i == 0 {
				code = st.ExitCode
			}
		}
	}
	if !exited {
		return VMStatusUnfinished
	}
	switch code {
	case 0:
		return VMStatusValid
	case 1:
		return VMStatusInvalid
	default:
		return VMStatusPanic
	}
}

// EncodeWitness concatenates the witness encoding of every hart, the hart
// statuses and the serialized memory.
func (s *Snapshot) EncodeWitness() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(s.VMStatus())
	for i := range s.Harts {
		enc, err := s.Harts[i].EncodeWitness()
		if err != nil {
			return nil, err
		}
		buf.Write(enc)
		var exited byte
		if s.Status[i].Exited {
			exited = 1
		}
		buf.WriteByte(exited)
		_ = binary.Write(&buf, binary.BigEndian, s.Status[i].ExitCode)
	}
	if err := s.Memory.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// StateHash is the Keccak-256 hash of the witness, with the first byte
// replaced by the VM status.
func (s *Snapshot) StateHash() (common.Hash, error) {
	wit, err := s.EncodeWitness()
	if err != nil {
		return common.Hash{}, err
	}
	out := crypto.Keccak256Hash(wit)
	out[0] = s.VMStatus()
	return out, nil
}
