package types

import (
	"sort"

	"github.com/objectledger/valcore/crypto"
	"github.com/objectledger/valcore/wire"
)

// Proposal is a DAG node.
type Proposal struct {
	Round        Round
	Epoch        Epoch
	Author       Address
	Transactions []*Transaction
	Parents      map[ProposalDigest]struct{}
	Signature    []byte
}

// sortedParents returns Parents as a lexicographically sorted slice, the
// order the digest and commit-rule tie-breaks both rely on.
func (p *Proposal) sortedParents() []ProposalDigest {
	out := make([]ProposalDigest, 0, len(p.Parents))
	for d := range p.Parents {
		out = append(out, d)
	}
	return sortedDigests(out)
}

// encodeUnsigned writes every field the author's signature covers.
func (p *Proposal) encodeUnsigned(e *wire.Encoder) {
	e.WriteUint64(uint64(p.Round))
	e.WriteUint64(uint64(p.Epoch))
	e.WriteFixed(p.Author.Bytes())

	parents := p.sortedParents()
	e.WriteUint64(uint64(len(parents)))
	for _, parent := range parents {
		e.WriteFixed(parent.Bytes())
	}

	e.WriteUint64(uint64(len(p.Transactions)))
	for _, tx := range p.Transactions {
		digest := tx.Digest()
		e.WriteFixed(digest.Bytes())
	}
}

func (p *Proposal) EncodeCanonical(e *wire.Encoder) {
	p.encodeUnsigned(e)
	e.WriteBytes(p.Signature)
	e.WriteUint64(uint64(len(p.Transactions)))
	for _, tx := range p.Transactions {
		tx.EncodeCanonical(e)
	}
}

func (p *Proposal) DecodeCanonical(d *wire.Decoder) error {
	round, err := d.ReadUint64()
	if err != nil {
		return err
	}
	p.Round = Round(round)

	epoch, err := d.ReadUint64()
	if err != nil {
		return err
	}
	p.Epoch = Epoch(epoch)

	authorRaw, err := d.ReadFixed(addressLength)
	if err != nil {
		return err
	}
	author, err := addressFromRaw(authorRaw)
	if err != nil {
		return err
	}
	p.Author = author

	parentCount, err := d.ReadUint64()
	if err != nil {
		return err
	}
	parents := make(map[ProposalDigest]struct{}, parentCount)
	for i := uint64(0); i < parentCount; i++ {
		raw, err := d.ReadFixed(DigestSize)
		if err != nil {
			return err
		}
		dig, _ := DigestFromBytes(raw)
		parents[dig] = struct{}{}
	}
	p.Parents = parents

	txDigestCount, err := d.ReadUint64()
	if err != nil {
		return err
	}
	// Skip the digest-only pass written by encodeUnsigned; the real
	// transactions follow after the signature.
	for i := uint64(0); i < txDigestCount; i++ {
		if _, err := d.ReadFixed(DigestSize); err != nil {
			return err
		}
	}

	sig, err := d.ReadBytes()
	if err != nil {
		return err
	}
	p.Signature = sig

	txCount, err := d.ReadUint64()
	if err != nil {
		return err
	}
	txs := make([]*Transaction, 0, txCount)
	for i := uint64(0); i < txCount; i++ {
		tx := &Transaction{}
		if err := tx.DecodeCanonical(d); err != nil {
			return err
		}
		txs = append(txs, tx)
	}
	p.Transactions = txs
	return nil
}

// SigningDigest is the digest the author's signature is over.
func (p *Proposal) SigningDigest() Digest {
	e := wire.NewEncoder()
	p.encodeUnsigned(e)
	return SHA256(e.Bytes())
}

// Digest is the proposal's identity: SHA-256 of (round, epoch,
// author, sorted parents, hashed transactions) — i.e. the same bytes the
// signature covers.
func (p *Proposal) Digest() ProposalDigest {
	return p.SigningDigest()
}

func (p *Proposal) Sign(priv *crypto.PrivateKey) {
	digest := p.SigningDigest()
	p.Signature = priv.Sign(digest.Bytes())
}

// VerifyAuthorSignatureWithKey verifies the author's signature using an
// externally supplied public key (the DAG has no key registry of its
// own; callers resolve Author -> PublicKey via the committee).
func (p *Proposal) VerifyAuthorSignatureWithKey(pub *crypto.PublicKey) bool {
	digest := p.SigningDigest()
	return crypto.Verify(digest.Bytes(), p.Signature, pub, p.Author)
}

// HasParent reports whether digest is among Parents.
func (p *Proposal) HasParent(digest ProposalDigest) bool {
	_, ok := p.Parents[digest]
	return ok
}

// SortedParentsForDisplay exposes the deterministic parent ordering for
// callers outside the package (e.g. the DAG's ancestor walk).
func (p *Proposal) SortedParentsForDisplay() []ProposalDigest {
	return p.sortedParents()
}

// SignerEntry is one (PublicKey, Signature) pair in a Certificate.
type SignerEntry struct {
	PublicKey []byte
	Signature []byte
}

// Certificate is a proposal plus a stake-quorum of signatures on its
// digest.
type Certificate struct {
	Proposal   *Proposal
	Signatures []SignerEntry
}

func (c *Certificate) EncodeCanonical(e *wire.Encoder) {
	c.Proposal.EncodeCanonical(e)
	// Signers are sorted by public key for a canonical encoding.
	signers := append([]SignerEntry(nil), c.Signatures...)
	sort.Slice(signers, func(i, j int) bool {
		return lessBytes(signers[i].PublicKey, signers[j].PublicKey)
	})
	e.WriteUint64(uint64(len(signers)))
	for _, s := range signers {
		e.WriteBytes(s.PublicKey)
		e.WriteBytes(s.Signature)
	}
}

func (c *Certificate) DecodeCanonical(d *wire.Decoder) error {
	proposal := &Proposal{}
	if err := proposal.DecodeCanonical(d); err != nil {
		return err
	}
	c.Proposal = proposal

	count, err := d.ReadUint64()
	if err != nil {
		return err
	}
	signers := make([]SignerEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		pub, err := d.ReadBytes()
		if err != nil {
			return err
		}
		sig, err := d.ReadBytes()
		if err != nil {
			return err
		}
		signers = append(signers, SignerEntry{PublicKey: pub, Signature: sig})
	}
	c.Signatures = signers
	return nil
}

// Digest delegates to the underlying proposal's digest.
func (c *Certificate) Digest() ProposalDigest {
	return c.Proposal.Digest()
}

// HasDuplicateSigners reports whether any public key appears twice.
func (c *Certificate) HasDuplicateSigners() bool {
	seen := make(map[string]struct{}, len(c.Signatures))
	for _, s := range c.Signatures {
		key := string(s.PublicKey)
		if _, ok := seen[key]; ok {
			return true
		}
		seen[key] = struct{}{}
	}
	return false
}
