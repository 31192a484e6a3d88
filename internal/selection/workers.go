package selection

import (
	"context"
	"sync"
	"time"

	"kinefit/internal/fit"
	"kinefit/internal/lattice"
)

// fitLevel fans the level's candidates out over the worker pool and waits
// for all of them. Results land at the index of their code so the output
// order matches the enumeration order regardless of worker scheduling.
func (s *Selector) fitLevel(ctx context.Context, codes []lattice.Code) []candidate {
	out := make([]candidate, len(codes))
	workers := s.opts.Workers
	if workers > len(codes) {
		workers = len(codes)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i] = s.fitOne(ctx, codes[i])
			}
		}()
	}

dispatch:
	for i := range codes {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()
	return out
}

// fitOne builds the candidate's parameter substitution and runs the
// multi-start fit. A candidate that cannot be fit is returned with its error
// attached; the level barrier decides how failures propagate.
func (s *Selector) fitOne(ctx context.Context, code lattice.Code) candidate {
	start := time.Now()
	c := candidate{code: code}

	sub, err := fit.NewSubstitution(s.eq, s.space, code)
	if err != nil {
		c.err = err
		s.opts.Metrics.Observe(ctx, opFitCandidate, false, time.Since(start))
		return c
	}

	cfg := s.opts.Fitter
	cfg.Seed = s.candidateSeed(code)
	c.res, c.err = fit.NewFitter(cfg).Fit(ctx, sub, s.train)
	s.opts.Metrics.Observe(ctx, opFitCandidate, c.err == nil, time.Since(start))
	return c
}
