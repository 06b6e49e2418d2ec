// Package probe checks that two geometric targets answer the same ray
// queries the same way, such as a directly transformed mesh and an instance
// of the untransformed mesh.
package probe

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"strings"

	"github.com/df07/go-instancing/pkg/core"
	"github.com/golang/glog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultTolerance = 2e-2
	DefaultTMin      = 1e-4
)

// Target is anything that answers closest-hit and any-hit ray queries
type Target interface {
	Hit(ray core.Ray, tMin, tMax float64) (*core.SurfaceInteraction, bool)
	Test(ray core.Ray, tMin, tMax float64) bool
}

// Options control a comparison. Zero values select the defaults.
type Options struct {
	Workers   int     // Maximum rays in flight, defaults to runtime.NumCPU()
	Tolerance float64 // Absolute tolerance on T, Time, Point and Wi
	TMin      float64
	TMax      float64 // Defaults to +Inf

	// CheckInstance requires reference hits to carry no instance and
	// candidate hits to carry one
	CheckInstance bool
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.TMin <= 0 {
		o.TMin = DefaultTMin
	}
	if o.TMax <= 0 {
		o.TMax = math.Inf(1)
	}
	return o
}

// Kind classifies a mismatch
type Kind int

const (
	HitMismatch Kind = iota
	TestMismatch
	PrimIndexMismatch
	GeometryMismatch
	InstanceMismatch
)

func (k Kind) String() string {
	switch k {
	case HitMismatch:
		return "hit"
	case TestMismatch:
		return "test"
	case PrimIndexMismatch:
		return "prim-index"
	case GeometryMismatch:
		return "geometry"
	case InstanceMismatch:
		return "instance"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Mismatch is one disagreement on one ray
type Mismatch struct {
	Ray    int // Index into the compared rays
	Kind   Kind
	Detail string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("ray %d: %s: %s", m.Ray, m.Kind, m.Detail)
}

// Report is the outcome of a comparison. Mismatches are ordered by ray
// index, and by check order within a ray.
type Report struct {
	Rays          int
	ReferenceHits int
	CandidateHits int
	Mismatches    []Mismatch
}

// OK reports whether the targets agreed on every ray
func (r *Report) OK() bool {
	return len(r.Mismatches) == 0
}

func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d rays, %d reference hits, %d candidate hits, %d mismatches",
		r.Rays, r.ReferenceHits, r.CandidateHits, len(r.Mismatches))
	for _, m := range r.Mismatches {
		b.WriteString("\n  ")
		b.WriteString(m.String())
	}
	return b.String()
}

type rayResult struct {
	referenceHit bool
	candidateHit bool
	mismatches   []Mismatch
}

// Compare runs every ray against both targets with at most opts.Workers
// rays in flight. It returns the context error if ctx is cancelled before
// all rays have been compared.
func Compare(ctx context.Context, reference, candidate Target, rays []core.Ray, opts Options) (*Report, error) {
	opts = opts.withDefaults()

	tracer := otel.Tracer("go-instancing/probe")
	var span trace.Span
	ctx, span = tracer.Start(ctx, "probe.Compare")
	defer span.End()
	span.SetAttributes(attribute.Int("rays", len(rays)), attribute.Int("workers", opts.Workers))

	results := make([]rayResult, len(rays))

	eg, egCtx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(opts.Workers))

	var err error
	for i := range rays {
		i := i
		if err = egCtx.Err(); err != nil {
			break
		}
		if err = sem.Acquire(egCtx, 1); err != nil {
			break
		}
		eg.Go(func() error {
			defer sem.Release(1)
			if err := egCtx.Err(); err != nil {
				return err
			}
			results[i] = compareRay(reference, candidate, i, rays[i], opts)
			return nil
		})
	}
	if waitErr := eg.Wait(); err == nil {
		err = waitErr
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		err = fmt.Errorf("while comparing %d rays: %w", len(rays), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	report := &Report{Rays: len(rays)}
	for _, res := range results {
		if res.referenceHit {
			report.ReferenceHits++
		}
		if res.candidateHit {
			report.CandidateHits++
		}
		report.Mismatches = append(report.Mismatches, res.mismatches...)
	}

	span.SetAttributes(attribute.Int("mismatches", len(report.Mismatches)))
	if !report.OK() {
		span.SetStatus(codes.Error, fmt.Sprintf("%d mismatches", len(report.Mismatches)))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	glog.V(1).Infof("Probe compared %d rays: %d reference hits, %d candidate hits, %d mismatches",
		report.Rays, report.ReferenceHits, report.CandidateHits, len(report.Mismatches))
	return report, nil
}

func compareRay(reference, candidate Target, index int, ray core.Ray, opts Options) rayResult {
	var res rayResult
	mismatch := func(kind Kind, format string, args ...interface{}) {
		res.mismatches = append(res.mismatches, Mismatch{Ray: index, Kind: kind, Detail: fmt.Sprintf(format, args...)})
	}

	refHit, refOK := reference.Hit(ray, opts.TMin, opts.TMax)
	candHit, candOK := candidate.Hit(ray, opts.TMin, opts.TMax)
	res.referenceHit, res.candidateHit = refOK, candOK

	if refTest := reference.Test(ray, opts.TMin, opts.TMax); refTest != refOK {
		mismatch(TestMismatch, "reference Test=%v but Hit=%v", refTest, refOK)
	}
	if candTest := candidate.Test(ray, opts.TMin, opts.TMax); candTest != candOK {
		mismatch(TestMismatch, "candidate Test=%v but Hit=%v", candTest, candOK)
	}
	if refOK != candOK {
		mismatch(HitMismatch, "reference hit=%v, candidate hit=%v", refOK, candOK)
		return res
	}
	if !refOK {
		return res
	}

	if refHit.PrimIndex != candHit.PrimIndex {
		mismatch(PrimIndexMismatch, "reference %d, candidate %d", refHit.PrimIndex, candHit.PrimIndex)
	}
	if opts.CheckInstance {
		if refHit.Instance != nil {
			mismatch(InstanceMismatch, "reference hit carries an instance")
		}
		if candHit.Instance == nil {
			mismatch(InstanceMismatch, "candidate hit carries no instance")
		}
	}

	tol := opts.Tolerance
	if !floatNear(refHit.T, candHit.T, tol) {
		mismatch(GeometryMismatch, "T: reference %g, candidate %g", refHit.T, candHit.T)
	}
	if !floatNear(refHit.Time, candHit.Time, tol) {
		mismatch(GeometryMismatch, "Time: reference %g, candidate %g", refHit.Time, candHit.Time)
	}
	if !vecNear(refHit.Point, candHit.Point, tol) {
		mismatch(GeometryMismatch, "Point: reference %v, candidate %v", refHit.Point, candHit.Point)
	}
	if !vecNear(refHit.Wi, candHit.Wi, tol) {
		mismatch(GeometryMismatch, "Wi: reference %v, candidate %v", refHit.Wi, candHit.Wi)
	}
	return res
}

func floatNear(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func vecNear(a, b core.Vec3, tol float64) bool {
	return floatNear(a.X, b.X, tol) && floatNear(a.Y, b.Y, tol) && floatNear(a.Z, b.Z, tol)
}
