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

package smt

import "github.com/chainbft/blockexec/core/types"

// BlobProofReader supplies AccountStateBlobs (not bare leaf hashes) for
// keys BatchUpdate hasn't materialized; it is the shape the store
// contract (spec §6, get_state_with_proof) naturally exposes.
type BlobProofReader interface {
	Proof(key types.Hash) (types.AccountStateBlob, bool, error)
}

// blobAttester adapts a BlobProofReader to ProofAttester by hashing
// whatever blob the reader returns.
type blobAttester struct {
	reader BlobProofReader
}

// NewBlobAttester wraps a blob-shaped proof reader as a ProofAttester.
func NewBlobAttester(reader BlobProofReader) ProofAttester {
	return &blobAttester{reader: reader}
}

func (a *blobAttester) Attest(key types.Hash) (types.Hash, bool, error) {
	blob, ok, err := a.reader.Proof(key)
	if err != nil || !ok {
		return types.Hash{}, false, err
	}
	return types.HashBlob(blob), true, nil
}
