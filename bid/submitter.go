package bid

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"
	"go.uber.org/zap"
)

const (
	OwnerReadWrite     = os.FileMode(0o600)
	OwnerReadWriteExec = os.FileMode(0o700)
)

// Submitter delivers the bid of a round to the exchange. The scheduler calls
// Submit exactly once per round.
type Submitter interface {
	Submit(ctx context.Context, b *Bid) error
}

// WriterSubmitter writes XDR encoded bids to an io.Writer, e.g. a connection
// to the exchange.
type WriterSubmitter struct {
	mtx    sync.Mutex
	w      io.Writer
	logger *zap.Logger
}

func NewWriterSubmitter(w io.Writer, logger *zap.Logger) *WriterSubmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WriterSubmitter{w: w, logger: logger}
}

func (s *WriterSubmitter) Submit(ctx context.Context, b *Bid) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	n, err := b.Encode(s.w)
	if err != nil {
		return err
	}
	s.logger.Info("bid: submitted",
		zap.Uint64("round", b.RoundID),
		zap.Int("indices", len(b.Indices)),
		zap.Int("bytes", n),
	)
	return nil
}

// FileSubmitter stores the bid of every round in its own file under a
// directory. Files are replaced atomically so a reader never sees a partial bid.
type FileSubmitter struct {
	dir    string
	logger *zap.Logger
}

func NewFileSubmitter(dir string, logger *zap.Logger) *FileSubmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSubmitter{dir: dir, logger: logger}
}

// Filename returns the path of the bid file of a round.
func (s *FileSubmitter) Filename(roundID uint64) string {
	return filepath.Join(s.dir, fmt.Sprintf("bid-%d.bin", roundID))
}

func (s *FileSubmitter) Submit(ctx context.Context, b *Bid) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := b.Bytes()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, OwnerReadWriteExec); err != nil {
		return fmt.Errorf("dir creation failure: %w", err)
	}

	filename := s.Filename(b.RoundID)
	if err := atomic.WriteFile(filename, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write to disk failure: %w", err)
	}
	if err := os.Chmod(filename, OwnerReadWrite); err != nil {
		return fmt.Errorf("chmod %s: %w", filename, err)
	}

	s.logger.Info("bid: stored", zap.Uint64("round", b.RoundID), zap.String("file", filename))
	return nil
}

// ReadFile loads a bid stored by a FileSubmitter.
func ReadFile(filename string) (*Bid, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("read file failure: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// RecordingSubmitter keeps every submitted bid in memory.
type RecordingSubmitter struct {
	mtx  sync.Mutex
	bids []*Bid
	err  error
}

// NewRecordingSubmitter returns a submitter that records bids. When err is not
// nil every Submit fails with it after recording the bid.
func NewRecordingSubmitter(err error) *RecordingSubmitter {
	return &RecordingSubmitter{err: err}
}

func (s *RecordingSubmitter) Submit(_ context.Context, b *Bid) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.bids = append(s.bids, b)
	return s.err
}

// Bids returns the recorded bids in submission order.
func (s *RecordingSubmitter) Bids() []*Bid {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return append([]*Bid(nil), s.bids...)
}

// Calls returns the number of Submit calls.
func (s *RecordingSubmitter) Calls() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return len(s.bids)
}
