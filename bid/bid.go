// Package bid holds the bid handed to the exchange at the end of a round and
// the submitters that deliver it.
package bid

import (
	"bytes"
	"fmt"
	"io"
	"time"

	xdr "github.com/nullstyle/go-xdr/xdr3"

	"github.com/spacemeshos/bitecoin/shared"
	"github.com/spacemeshos/bitecoin/wideint"
)

// Bid is the solution of one round as the exchange receives it.
type Bid struct {
	RoundID uint64

	// Indices are strictly increasing.
	Indices []uint32

	// Proof is the combined value of Indices, big-endian.
	Proof [wideint.Size]byte

	// TimeSent is the submission time in nanoseconds since the Unix epoch.
	TimeSent uint64
}

// New builds the bid for candidate. The indices are sorted; a candidate with
// duplicate or no indices is rejected.
func New(roundID uint64, candidate *shared.Candidate, sent time.Time) (*Bid, error) {
	if candidate == nil {
		return nil, shared.ErrEmptyCandidate
	}
	indices, err := shared.SortedIndices(candidate.Indices)
	if err != nil {
		return nil, err
	}
	return &Bid{
		RoundID:  roundID,
		Indices:  indices,
		Proof:    candidate.Value.Bytes(),
		TimeSent: uint64(sent.UnixNano()),
	}, nil
}

// Value returns the claimed combined value.
func (b *Bid) Value() wideint.Int {
	v, _ := wideint.FromBytes(b.Proof[:])
	return v
}

// Sent returns TimeSent as a time.
func (b *Bid) Sent() time.Time {
	return time.Unix(0, int64(b.TimeSent))
}

func (b *Bid) String() string {
	return fmt.Sprintf("round %d: %v %v", b.RoundID, b.Indices, b.Value())
}

// Encode writes the XDR encoding of b to w.
func (b *Bid) Encode(w io.Writer) (int, error) {
	n, err := xdr.Marshal(w, b)
	if err != nil {
		return n, fmt.Errorf("serialization failure: %w", err)
	}
	return n, nil
}

// Bytes returns the XDR encoding of b.
func (b *Bid) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := b.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads one XDR encoded bid from r.
func Decode(r io.Reader) (*Bid, error) {
	b := &Bid{}
	if _, err := xdr.Unmarshal(r, b); err != nil {
		return nil, fmt.Errorf("deserialization failure: %w", err)
	}
	return b, nil
}
