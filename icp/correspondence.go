package icp

import (
	"math"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Matcher finds, for every query point, the nearest candidate point.
// Result i must describe queries[i].
type Matcher interface {
	Match(queries, candidates []Point) ([]Correspondence, error)
}

// BruteForceMatcher compares every query against every candidate.
// Ties go to the first candidate with the minimum distance.
type BruteForceMatcher struct {
	// Workers splits the queries across goroutines when greater than 1.
	Workers int
}

// minQueriesPerWorker keeps small problems on a single goroutine.
const minQueriesPerWorker = 64

// Match implements Matcher.
func (m BruteForceMatcher) Match(queries, candidates []Point) ([]Correspondence, error) {
	if err := checkMatchInput(queries, candidates); err != nil {
		return nil, err
	}

	result := make([]Correspondence, len(queries))
	workers := m.Workers
	if limit := len(queries) / minQueriesPerWorker; workers > limit {
		workers = limit
	}
	if workers <= 1 {
		matchRange(queries, candidates, result, 0, len(queries))
		return result, nil
	}

	var g errgroup.Group
	g.SetLimit(workers)
	chunk := (len(queries) + workers - 1) / workers
	for start := 0; start < len(queries); start += chunk {
		end := start + chunk
		if end > len(queries) {
			end = len(queries)
		}
		g.Go(func() error {
			matchRange(queries, candidates, result, start, end)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// FindCorrespondences runs a sequential brute-force search.
func FindCorrespondences(queries, candidates []Point) ([]Correspondence, error) {
	return BruteForceMatcher{}.Match(queries, candidates)
}

// matchRange fills result[start:end]; each slot is written by exactly one caller.
func matchRange(queries, candidates []Point, result []Correspondence, start, end int) {
	for qi := start; qi < end; qi++ {
		ci, dist := nearest(queries[qi], candidates)
		result[qi] = Correspondence{Query: qi, Candidate: ci, Distance: dist}
	}
}

// nearest returns the index of and distance to the candidate closest to q.
func nearest(q Point, candidates []Point) (int, float64) {
	minDist := math.Inf(1)
	minIdx := -1
	for ci, c := range candidates {
		d := squaredDistance(q, c)
		if d < minDist {
			minDist = d
			minIdx = ci
		}
	}
	return minIdx, math.Sqrt(minDist)
}

func checkMatchInput(queries, candidates []Point) error {
	if len(candidates) == 0 {
		return errors.Wrap(ErrInvalidInput, "no candidate points")
	}
	dims := candidates[0].Size()
	for i, c := range candidates {
		if c.Size() != dims {
			return errors.Wrapf(ErrInvalidInput, "candidate %d has dimension %d, want %d", i, c.Size(), dims)
		}
	}
	for i, q := range queries {
		if q.Size() != dims {
			return errors.Wrapf(ErrInvalidInput, "query %d has dimension %d, want %d", i, q.Size(), dims)
		}
	}
	return nil
}
