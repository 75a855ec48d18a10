// Copyright 2026 The Blockexec Authors
// This file is part of Blockexec.
//
// Blockexec is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Blockexec is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Blockexec. If not, see <http://www.gnu.org/licenses/>.

// Package types holds the wire-level data model shared by every executor
// component: addresses, hashes, write sets, transactions and their VM
// outputs, and the event/pivot vocabulary the PoS state machine interprets.
package types

import (
	"crypto/sha256"
	"encoding/binary"
)

// AddressLength is the fixed width of an AccountAddress, in bytes.
const AddressLength = 32

// HashLength is the fixed width of a Hash, in bytes.
const HashLength = 32

// AccountAddress is a fixed-width account identifier.
type AccountAddress [AddressLength]byte

func (a AccountAddress) Bytes() []byte { return a[:] }

func (a AccountAddress) String() string {
	return hexString(a[:])
}

// Hash is a 256-bit digest used throughout the accumulator and state tree.
type Hash [HashLength]byte

func (h Hash) Bytes() []byte { return h[:] }

func (h Hash) IsZero() bool { return h == Hash{} }

func (h Hash) String() string { return hexString(h[:]) }

func hexString(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, 2+len(b)*2)
	out[0], out[1] = '0', 'x'
	for i, v := range b {
		out[2+i*2] = hextable[v>>4]
		out[3+i*2] = hextable[v&0x0f]
	}
	return string(out)
}

// HashBytes returns the canonical digest used for account keys, leaf
// hashes, and transaction info hashes across the executor.
func HashBytes(b []byte) Hash {
	return sha256.Sum256(b)
}

// HashAddress derives the 256-bit sparse-Merkle key for an account address.
func HashAddress(addr AccountAddress) Hash {
	return HashBytes(addr[:])
}

// AccessPath names the (address, resource path) pair a WriteOp targets.
type AccessPath struct {
	Address AccountAddress
	Path    []byte
}

// WriteOpKind distinguishes a value write from a deletion.
type WriteOpKind uint8

const (
	WriteOpValue WriteOpKind = iota
	WriteOpDeletion
)

// WriteOp is either Value(bytes) or Deletion.
type WriteOp struct {
	Kind  WriteOpKind
	Value []byte
}

// WriteSetEntry pairs an access path with the operation applied to it.
type WriteSetEntry struct {
	Path AccessPath
	Op   WriteOp
}

// WriteSet is an ordered sequence of write-set entries, in the order the VM
// produced them. Order matters: C2's tie-break rule applies updates within
// one transaction's batch in this order.
type WriteSet []WriteSetEntry

// TransactionKind tags the three transaction variants the executor knows
// about. The VM's richer transaction types (scripts, user-defined payload
// kinds) are opaque to the executor beyond this coarse discriminant.
type TransactionKind uint8

const (
	TxGenesis TransactionKind = iota
	TxBlockMetadata
	TxUser
)

// UserPayloadKind distinguishes the payload shapes of a TxUser transaction
// that the executor must recognize explicitly (it must know whether a read
// miss is tolerated, per C1).
type UserPayloadKind uint8

const (
	// PayloadWriteSet transactions may blind-write to accounts the read
	// set never touched (e.g. the genesis faucet distribution).
	PayloadWriteSet UserPayloadKind = iota
	PayloadUpdateVotingPower
	PayloadScript
)

// Transaction is the executor's view of one ledger transaction.
type Transaction struct {
	Kind    TransactionKind
	Payload UserPayloadKind // meaningful only when Kind == TxUser
	Hash    Hash
}

// AllowsBlindWrite reports whether a read-set miss during C1's apply pass
// is tolerated for this transaction (I-readset in spec §4.1).
func (t Transaction) AllowsBlindWrite() bool {
	switch t.Kind {
	case TxGenesis, TxBlockMetadata:
		return true
	case TxUser:
		return t.Payload == PayloadWriteSet
	default:
		return false
	}
}

// StatusKind is the VM's disposition for one transaction.
type StatusKind uint8

const (
	StatusKeep StatusKind = iota
	StatusDiscard
	StatusRetry
)

// Status carries the VM's disposition plus, for Keep, the status code the
// VM wants recorded in the TransactionInfo.
type Status struct {
	Kind StatusKind
	Code uint64 // meaningful only when Kind == StatusKeep
}

// ContractEvent is one event a transaction emitted. Key is an opaque
// 256-bit tag; the PoS state machine only recognizes a handful of them
// (see EventKey* below), everything else is inert as far as this executor
// is concerned.
type ContractEvent struct {
	Key      Hash
	Sequence uint64
	Data     []byte
	TypeTag  string
}

// TransactionOutput is what the VM hands back for one transaction.
type TransactionOutput struct {
	WriteSet WriteSet
	Events   []ContractEvent
	GasUsed  uint64
	Status   Status
}

// TransactionInfo is the accumulator leaf payload: a commitment to a
// transaction's effects.
type TransactionInfo struct {
	TxnHash    Hash
	StateRoot  Hash
	EventRoot  Hash
	GasUsed    uint64
	StatusCode uint64
}

// Hash implements P9 (round trip): hash(reconstruct(...)) must equal the
// hash originally stored alongside the transaction.
func (ti TransactionInfo) Hash() Hash {
	buf := make([]byte, 0, HashLength*3+16)
	buf = append(buf, ti.TxnHash[:]...)
	buf = append(buf, ti.StateRoot[:]...)
	buf = append(buf, ti.EventRoot[:]...)
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], ti.GasUsed)
	buf = append(buf, tmp[:]...)
	binary.BigEndian.PutUint64(tmp[:], ti.StatusCode)
	buf = append(buf, tmp[:]...)
	return HashBytes(buf)
}

// Reserved event-key tags. Bit-exact with the VM's schema (spec §6); values
// are the sha256 of the event's canonical name, matching the "opaque
// 256-bit tag compared for equality" design recommended in spec §9.
var (
	EventKeyNewEpoch           = HashBytes([]byte("new_epoch"))
	EventKeyPivotSelect        = HashBytes([]byte("pivot_select"))
	EventKeyElection           = HashBytes([]byte("election"))
	EventKeyRetire             = HashBytes([]byte("retire"))
	EventKeyRegister           = HashBytes([]byte("register"))
	EventKeyUpdateVotingPower  = HashBytes([]byte("update_voting_power"))
)

// ConfigAddress is the well-known address holding the genesis ValidatorSet
// and Configuration resources (spec §6).
var ConfigAddress = AccountAddress{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01}

// PreGenesisBlockID is the synthetic parent of the first real block.
var PreGenesisBlockID = Hash{}

// PivotBlockDecision names a PoW block chosen as an anchor by a PoS block;
// it defines the window of staking events consumed (spec §3).
type PivotBlockDecision struct {
	BlockHash Hash
	Height    uint64
}

// IsZero reports whether d is the unset (genesis) pivot decision.
func (d PivotBlockDecision) IsZero() bool {
	return d.BlockHash.IsZero() && d.Height == 0
}
