// Package mock provides an in-memory implementation of [audio.Source] for use
// in unit tests.
//
// The mock plays back a script of read outcomes so tests can interleave
// successful periods, underruns, and fatal faults deterministically:
//
//	src := &mock.Source{
//	    SourceFormat: audio.Format{SampleRate: 44100, Channels: 1},
//	    Period:       2048,
//	    Script: []mock.Read{
//	        {Samples: period(1)},
//	        {Err: audio.ErrUnderrun},
//	        {Samples: period(2)},
//	    },
//	}
package mock

import (
	"context"
	"io"

	"github.com/meddje/silenttrace/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Source = (*Source)(nil)

// Read is a single scripted outcome of [Source.Read]. Exactly one of Samples
// or Err should be set.
type Read struct {
	// Samples is copied into the caller's destination on success.
	Samples []int16

	// Err is returned instead, leaving the destination untouched.
	Err error
}

// Source is a mock implementation of [audio.Source].
// Set the exported fields before use; inspect the Call* fields after.
type Source struct {
	// SourceFormat is returned by [Source.Format].
	SourceFormat audio.Format

	// Period is returned by [Source.PeriodFrames].
	Period int

	// Script holds the outcomes returned by successive Read calls. When the
	// script is exhausted, Read returns io.EOF (fatal to the capture loop).
	Script []Read

	// PrepareError is returned by [Source.Prepare].
	PrepareError error

	// CloseError is returned by the first call to [Source.Close].
	CloseError error

	// CallCountRead records how many times Read was called.
	CallCountRead int

	// CallCountPrepare records how many times Prepare was called.
	CallCountPrepare int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	next int
}

// Read returns the next scripted outcome. Context cancellation takes priority
// over the script, mirroring the boundary check real backends perform.
func (s *Source) Read(ctx context.Context, dst []int16) (int, error) {
	s.CallCountRead++
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.next >= len(s.Script) {
		return 0, io.EOF
	}
	r := s.Script[s.next]
	s.next++
	if r.Err != nil {
		return 0, r.Err
	}
	n := copy(dst, r.Samples)
	return n / max(s.SourceFormat.Channels, 1), nil
}

// Prepare records the call and returns PrepareError.
func (s *Source) Prepare() error {
	s.CallCountPrepare++
	return s.PrepareError
}

// Format returns the configured SourceFormat.
func (s *Source) Format() audio.Format { return s.SourceFormat }

// PeriodFrames returns the configured Period.
func (s *Source) PeriodFrames() int { return s.Period }

// Close records the call. Only the first call reports CloseError; subsequent
// calls are no-ops, matching the idempotency contract.
func (s *Source) Close() error {
	s.CallCountClose++
	if s.CallCountClose == 1 {
		return s.CloseError
	}
	return nil
}
