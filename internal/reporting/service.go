package reporting

import (
	"context"
	"errors"
	"math"

	"call-automation/internal/calls"
)

// Repository is satisfied by calls.Repository.
type Repository interface {
	ListOutcomes(ctx context.Context) ([]calls.Outcome, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) Analytics(ctx context.Context) (Analytics, error) {
	if s.repo == nil {
		return Analytics{}, errors.New("reporting: repository not configured")
	}
	rows, err := s.repo.ListOutcomes(ctx)
	if err != nil {
		return Analytics{}, err
	}
	return Summarize(rows), nil
}

// Summarize computes funnel counts and rates. Divisions by zero yield 0.
func Summarize(rows []calls.Outcome) Analytics {
	var (
		out      Analytics
		total    float64
		measured int
	)
	out.TotalCalls = len(rows)
	out.Funnel.Called = len(rows)
	for _, o := range rows {
		if o.Disposition != nil {
			if o.Disposition.Talked() {
				out.Funnel.Talked++
			}
			if *o.Disposition == calls.DispositionInterested {
				out.Funnel.Interested++
			}
		}
		if o.CRMStatus == calls.CRMStatusAdded {
			out.Funnel.Lead++
		}
		if o.Duration != nil {
			total += *o.Duration
			measured++
		}
	}

	out.TalkRate = percent(out.Funnel.Talked, out.Funnel.Called)
	out.InterestRate = percent(out.Funnel.Interested, out.Funnel.Talked)
	if measured > 0 {
		out.AvgDuration = round2(total / float64(measured))
	}
	return out
}

func percent(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return round2(float64(n) / float64(d) * 100)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
