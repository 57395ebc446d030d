// schedule.go - Rauschplan (Noise Schedule) fuer DDPM
//
// Dieses Modul enthaelt:
// - Kind: lineare, quadratische, sigmoide und Kosinus-Beta-Plaene
// - BuildSchedule: linearer Plan aus (betaStart, betaEnd, T)
// - BuildScheduleKind: Plan beliebiger Art
// - NoiseSchedule: unveraenderliche, abgeleitete Arrays pro Zeitschritt

package diffusion

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// ErrInvalidArgument is returned for schedule parameters or timesteps
// outside their valid range.
var ErrInvalidArgument = errors.New("invalid argument")

// varianceFloor keeps log() finite at t = 0 where the posterior variance is 0.
const varianceFloor = 1e-20

// Kind selects how betas are spaced between betaStart and betaEnd.
type Kind string

const (
	KindLinear    Kind = "linear"
	KindQuadratic Kind = "quadratic"
	KindSigmoid   Kind = "sigmoid"
	KindCosine    Kind = "cosine"
)

// Kinds lists all supported schedule kinds.
func Kinds() []Kind {
	return []Kind{KindLinear, KindQuadratic, KindSigmoid, KindCosine}
}

// ParseKind parses a schedule kind; the empty string means linear.
func ParseKind(s string) (Kind, error) {
	if s == "" {
		return KindLinear, nil
	}

	k := Kind(s)
	if !slices.Contains(Kinds(), k) {
		return "", fmt.Errorf("%w: unknown schedule %q", ErrInvalidArgument, s)
	}
	return k, nil
}

// NoiseSchedule holds the per-timestep arrays derived from the beta
// schedule. It is built once and never modified; accessors return copies.
type NoiseSchedule struct {
	kind      Kind
	betaStart float64
	betaEnd   float64

	beta                     []float64
	alpha                    []float64
	alphaCumprod             []float64
	alphaCumprodPrev         []float64
	sqrtOneMinusAlphaCumprod []float64
	stddev                   []float64

	sqrtAlphaCumprod  []float64
	sqrtRecipAlpha    []float64
	posteriorVariance []float64
}

// BuildSchedule builds the linear DDPM schedule of length timesteps with
// betas evenly spaced from betaStart to betaEnd inclusive.
func BuildSchedule(betaStart, betaEnd float64, timesteps int) (*NoiseSchedule, error) {
	return BuildScheduleKind(KindLinear, betaStart, betaEnd, timesteps)
}

// BuildScheduleKind builds a schedule of the given kind. The cosine schedule
// derives its betas from timesteps alone and ignores betaStart and betaEnd.
func BuildScheduleKind(kind Kind, betaStart, betaEnd float64, timesteps int) (*NoiseSchedule, error) {
	if timesteps < 1 {
		return nil, fmt.Errorf("%w: timesteps must be >= 1, got %d", ErrInvalidArgument, timesteps)
	}

	if kind != KindCosine {
		// written so that NaN fails too
		if !(betaStart > 0 && betaStart < betaEnd && betaEnd < 1) {
			return nil, fmt.Errorf("%w: need 0 < beta_start < beta_end < 1, got %v and %v", ErrInvalidArgument, betaStart, betaEnd)
		}
	}

	beta := make([]float64, timesteps)
	switch kind {
	case KindLinear:
		linspace(beta, betaStart, betaEnd)
	case KindQuadratic:
		linspace(beta, math.Sqrt(betaStart), math.Sqrt(betaEnd))
		for i, b := range beta {
			beta[i] = b * b
		}
	case KindSigmoid:
		linspace(beta, -6, 6)
		for i, x := range beta {
			beta[i] = 1/(1+math.Exp(-x))*(betaEnd-betaStart) + betaStart
		}
	case KindCosine:
		cosineBetas(beta, 0.008)
	default:
		return nil, fmt.Errorf("%w: unknown schedule %q", ErrInvalidArgument, kind)
	}

	return derive(kind, betaStart, betaEnd, beta), nil
}

// linspace fills dst with l + i*(u-l)/(n-1). The last value may differ
// from u by one ulp.
func linspace(dst []float64, l, u float64) {
	if len(dst) == 1 {
		dst[0] = l
		return
	}

	n := float64(len(dst) - 1)
	for i := range dst {
		dst[i] = l + float64(i)*(u-l)/n
	}
}

// cosineBetas implements the improved-DDPM cosine schedule with offset s.
func cosineBetas(dst []float64, s float64) {
	n := len(dst)
	x := make([]float64, n+1)
	linspace(x, 0, float64(n))

	cum := make([]float64, n+1)
	for i, v := range x {
		c := math.Cos((v/float64(n) + s) / (1 + s) * math.Pi * 0.5)
		cum[i] = c * c
	}
	floats.Scale(1/cum[0], cum)

	for i := range dst {
		dst[i] = min(max(1-cum[i+1]/cum[i], 0.0001), 0.9999)
	}
}

// derive runs the single forward pass over the betas.
func derive(kind Kind, betaStart, betaEnd float64, beta []float64) *NoiseSchedule {
	n := len(beta)
	s := &NoiseSchedule{
		kind:                     kind,
		betaStart:                betaStart,
		betaEnd:                  betaEnd,
		beta:                     beta,
		alpha:                    make([]float64, n),
		alphaCumprod:             make([]float64, n),
		alphaCumprodPrev:         make([]float64, n),
		sqrtOneMinusAlphaCumprod: make([]float64, n),
		stddev:                   make([]float64, n),
		sqrtAlphaCumprod:         make([]float64, n),
		sqrtRecipAlpha:           make([]float64, n),
		posteriorVariance:        make([]float64, n),
	}

	for t, b := range beta {
		s.alpha[t] = 1 - b
	}
	floats.CumProd(s.alphaCumprod, s.alpha)

	prev := 1.0
	for t := range n {
		cum := s.alphaCumprod[t]

		s.alphaCumprodPrev[t] = prev
		s.sqrtOneMinusAlphaCumprod[t] = math.Sqrt(1 - cum)
		s.sqrtAlphaCumprod[t] = math.Sqrt(cum)
		s.sqrtRecipAlpha[t] = math.Sqrt(1 / s.alpha[t])

		variance := beta[t] * (1 - prev) / (1 - cum)
		s.posteriorVariance[t] = variance
		s.stddev[t] = math.Exp(0.5 * math.Log(max(variance, varianceFloor)))

		prev = cum
	}

	return s
}

func (s *NoiseSchedule) Kind() Kind         { return s.kind }
func (s *NoiseSchedule) BetaStart() float64 { return s.betaStart }
func (s *NoiseSchedule) BetaEnd() float64   { return s.betaEnd }

// Timesteps returns the schedule length T.
func (s *NoiseSchedule) Timesteps() int { return len(s.beta) }

func (s *NoiseSchedule) Beta(t int) float64                     { return s.beta[t] }
func (s *NoiseSchedule) Alpha(t int) float64                    { return s.alpha[t] }
func (s *NoiseSchedule) AlphaCumprod(t int) float64             { return s.alphaCumprod[t] }
func (s *NoiseSchedule) AlphaCumprodPrev(t int) float64         { return s.alphaCumprodPrev[t] }
func (s *NoiseSchedule) SqrtOneMinusAlphaCumprod(t int) float64 { return s.sqrtOneMinusAlphaCumprod[t] }
func (s *NoiseSchedule) Stddev(t int) float64                   { return s.stddev[t] }
func (s *NoiseSchedule) SqrtAlphaCumprod(t int) float64         { return s.sqrtAlphaCumprod[t] }

func (s *NoiseSchedule) Betas() []float64             { return slices.Clone(s.beta) }
func (s *NoiseSchedule) Alphas() []float64            { return slices.Clone(s.alpha) }
func (s *NoiseSchedule) AlphaCumprods() []float64     { return slices.Clone(s.alphaCumprod) }
func (s *NoiseSchedule) AlphaCumprodPrevs() []float64 { return slices.Clone(s.alphaCumprodPrev) }
func (s *NoiseSchedule) Stddevs() []float64           { return slices.Clone(s.stddev) }
func (s *NoiseSchedule) SqrtOneMinusAlphaCumprods() []float64 {
	return slices.Clone(s.sqrtOneMinusAlphaCumprod)
}
func (s *NoiseSchedule) SqrtAlphaCumprods() []float64  { return slices.Clone(s.sqrtAlphaCumprod) }
func (s *NoiseSchedule) SqrtRecipAlphas() []float64    { return slices.Clone(s.sqrtRecipAlpha) }
func (s *NoiseSchedule) PosteriorVariances() []float64 { return slices.Clone(s.posteriorVariance) }

// Percent is the fraction of the reverse process completed once step has
// been produced: (T - step) / T.
func (s *NoiseSchedule) Percent(step int) float64 {
	return float64(s.Timesteps()-step) / float64(s.Timesteps())
}
