package protocol

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
)

// ledgerBlock is one entry of a tamper-evident, hash-chained audit trail.
// It adapts the teacher's mined blockchain block to the protocol's needs:
// the chain still links by hash, but entries are appended immediately
// instead of batched behind proof-of-work, since the audit trail has no
// adversarial-mining threat model to defend against.
type ledgerBlock struct {
	Index     uint64 `json:"index"`
	Timestamp int64  `json:"timestamp"`
	Data      []byte `json:"data"`
	PrevHash  []byte `json:"prev_hash"`
	Hash      []byte `json:"hash"`
}

func newLedgerBlock(index uint64, timestamp int64, data, prevHash []byte) ledgerBlock {
	b := ledgerBlock{Index: index, Timestamp: timestamp, Data: data, PrevHash: prevHash}
	b.Hash = b.calculateHash()
	return b
}

func (b ledgerBlock) calculateHash() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, b.Index)
	binary.Write(buf, binary.BigEndian, b.Timestamp)
	buf.Write(b.Data)
	buf.Write(b.PrevHash)
	sum := sha256.Sum256(buf.Bytes())
	return sum[:]
}

func (b ledgerBlock) valid() bool {
	return bytes.Equal(b.calculateHash(), b.Hash)
}

// auditLedger is the hash-chained append-only log embedded by every
// aggregate to store its AuditEntry history with tamper evidence, one
// ledgerBlock per entry.
type auditLedger struct {
	blocks []ledgerBlock
}

func (l *auditLedger) append(timestamp int64, entry AuditEntry) {
	data, _ := json.Marshal(entry)
	var prevHash []byte
	if n := len(l.blocks); n > 0 {
		prevHash = l.blocks[n-1].Hash
	} else {
		prevHash = make([]byte, 32)
	}
	l.blocks = append(l.blocks, newLedgerBlock(uint64(len(l.blocks)), timestamp, data, prevHash))
}

// entries decodes every ledger block back into its AuditEntry, in append
// order.
func (l *auditLedger) entries() []AuditEntry {
	out := make([]AuditEntry, 0, len(l.blocks))
	for _, b := range l.blocks {
		var e AuditEntry
		if err := json.Unmarshal(b.Data, &e); err == nil {
			out = append(out, e)
		}
	}
	return out
}

// Valid reports whether every block in the ledger still hashes to its
// stored value and links correctly to its predecessor.
func (l *auditLedger) Valid() bool {
	for i, b := range l.blocks {
		if !b.valid() {
			return false
		}
		if i == 0 {
			continue
		}
		if !bytes.Equal(b.PrevHash, l.blocks[i-1].Hash) {
			return false
		}
	}
	return true
}
