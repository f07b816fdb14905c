// Package device runs batches of proof computations on a compute provider.
//
// A provider is anything that can turn a batch of indices into proofs: the
// built-in CPU provider, or an accelerator registered by the process. Batches
// run asynchronously; callers submit a batch and poll the returned Job.
package device

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/spacemeshos/bitecoin/shared"
)

// locks prevents concurrent batches on the same provider.
var locks providerLocks

// DeviceClass is an enum for the type of device.
type DeviceClass int

const (
	ClassUnspecified DeviceClass = iota
	ClassCPU
	ClassGPU
)

func (c DeviceClass) String() string {
	switch c {
	case ClassCPU:
		return "CPU"
	case ClassGPU:
		return "GPU"
	default:
		return "Unspecified"
	}
}

// Provider describes a compute provider.
type Provider struct {
	ID         uint32
	Model      string
	DeviceType DeviceClass
}

var (
	ErrInvalidProviderID = errors.New("invalid provider ID")
	ErrProviderExists    = errors.New("provider already registered")
	ErrJobCanceled       = errors.New("job canceled")
)

// Backend computes the proofs of a batch of indices. out has the same length as
// indices and must be filled in order.
type Backend interface {
	ComputeBatch(ctx context.Context, round *shared.RoundContext, indices []uint32, out []shared.ProofEntry) error
}

type registration struct {
	provider Provider
	backend  Backend
}

var (
	registryMtx sync.RWMutex
	registry    = map[uint32]registration{
		cpuProviderID: {
			provider: Provider{ID: cpuProviderID, Model: "Go CPU", DeviceType: ClassCPU},
			backend:  cpuBackend{},
		},
	}
)

const cpuProviderID = 0

// CPUProviderID returns the ID of the built-in CPU provider.
func CPUProviderID() uint32 {
	return cpuProviderID
}

// Register adds a provider. The ID must not be in use.
func Register(p Provider, backend Backend) error {
	registryMtx.Lock()
	defer registryMtx.Unlock()

	if _, ok := registry[p.ID]; ok {
		return fmt.Errorf("%w: %d", ErrProviderExists, p.ID)
	}
	registry[p.ID] = registration{provider: p, backend: backend}
	return nil
}

// Unregister removes a provider. The CPU provider cannot be removed.
func Unregister(id uint32) {
	if id == cpuProviderID {
		return
	}
	registryMtx.Lock()
	defer registryMtx.Unlock()
	delete(registry, id)
}

// Providers returns the registered providers ordered by ID.
func Providers() []Provider {
	registryMtx.RLock()
	defer registryMtx.RUnlock()

	providers := make([]Provider, 0, len(registry))
	for _, r := range registry {
		providers = append(providers, r.provider)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i].ID < providers[j].ID })
	return providers
}

type option struct {
	logger *zap.Logger
}

// OptionFunc is a function that sets an option for a Device.
type OptionFunc func(*option)

// WithLogger sets the logger of the device.
func WithLogger(logger *zap.Logger) OptionFunc {
	return func(o *option) {
		o.logger = logger
	}
}

// Device is an opened provider.
type Device struct {
	provider Provider
	backend  Backend
	logger   *zap.Logger
}

// Open returns the device of the provider with the given ID.
func Open(id uint32, opts ...OptionFunc) (*Device, error) {
	options := &option{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(options)
	}

	registryMtx.RLock()
	r, ok := registry[id]
	registryMtx.RUnlock()
	if !ok {
		return nil, shared.ResourceError{
			Resource: fmt.Sprintf("provider %d", id),
			Err:      ErrInvalidProviderID,
		}
	}

	return &Device{
		provider: r.provider,
		backend:  r.backend,
		logger:   options.logger.With(zap.Uint32("provider", id), zap.Stringer("class", r.provider.DeviceType)),
	}, nil
}

// Provider returns the provider the device runs on.
func (d *Device) Provider() Provider {
	return d.provider
}

// Submit starts computing the proofs of indices and returns immediately. Batches
// on the same provider run one at a time.
func (d *Device) Submit(ctx context.Context, round *shared.RoundContext, indices []uint32) *Job {
	ctx, cancel := context.WithCancel(ctx)
	job := &Job{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	indices = append([]uint32(nil), indices...)

	go func() {
		defer close(job.done)
		defer cancel()

		var out []shared.ProofEntry
		release, err := locks.acquire(ctx, d.provider.ID)
		if err == nil {
			d.logger.Debug("device: batch started", zap.Int("indices", len(indices)))
			out = make([]shared.ProofEntry, len(indices))
			err = d.backend.ComputeBatch(ctx, round, indices, out)
			release()
		}
		if err == nil && ctx.Err() != nil {
			err = ErrJobCanceled
		}

		job.mtx.Lock()
		defer job.mtx.Unlock()
		if err != nil {
			d.logger.Warn("device: batch failed", zap.Error(err))
			job.err = shared.ResourceError{Resource: fmt.Sprintf("provider %d", d.provider.ID), Err: err}
			return
		}
		d.logger.Debug("device: batch completed", zap.Int("indices", len(indices)))
		job.entries = out
	}()

	return job
}

// Job is a batch running on a device.
type Job struct {
	cancel context.CancelFunc
	done   chan struct{}

	mtx     sync.Mutex
	entries []shared.ProofEntry
	err     error
}

// Poll returns the job's result without blocking. done is false while the batch
// is still running.
func (j *Job) Poll() (entries []shared.ProofEntry, done bool, err error) {
	select {
	case <-j.done:
	default:
		return nil, false, nil
	}

	j.mtx.Lock()
	defer j.mtx.Unlock()
	return j.entries, true, j.err
}

// Done is closed when the job has finished.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Cancel stops the job. Poll reports an error once the backend has returned.
func (j *Job) Cancel() {
	j.cancel()
}
