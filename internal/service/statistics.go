package service

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-scheduling/internal/clock"
	"github.com/iliyamo/cinema-scheduling/internal/model"
)

// MoviePopularity is the top earning movie of a period.
type MoviePopularity struct {
	MovieID uint64  `json:"movie_id"`
	Title   string  `json:"title"`
	Revenue float64 `json:"revenue"`
}

// CategoryPopularity is the category with the most seats sold.
type CategoryPopularity struct {
	Category string `json:"category"`
	Seats    uint64 `json:"seats"`
}

// Summary bundles every metric computed over one window.
type Summary struct {
	Period            Period              `json:"period"`
	From              time.Time           `json:"from"`
	To                time.Time           `json:"to"`
	Revenue           float64             `json:"revenue"`
	MostPopularMovie  *MoviePopularity    `json:"most_popular_movie"`
	MostPopularCat    *CategoryPopularity `json:"most_popular_category"`
	AverageAttendance float64             `json:"average_attendance"`
}

// StatisticsService aggregates PAID sales.  Each call reads the clock
// once, so every metric of a call sees the same window.
type StatisticsService struct {
	sales SalesReader
	clock clock.Clock
	loc   *time.Location
	log   *zap.Logger
}

// NewStatisticsService builds the aggregator.  loc decides where
// calendar periods begin; nil means UTC.
func NewStatisticsService(sales SalesReader, clk clock.Clock, loc *time.Location, log *zap.Logger) *StatisticsService {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &StatisticsService{sales: sales, clock: clk, loc: loc, log: log.Named("statistics")}
}

// Window resolves p against the current time.
func (s *StatisticsService) Window(p Period) (Window, error) {
	return ResolvePeriod(p, s.clock.Now(), s.loc)
}

// RevenueForPeriod sums price times seats over PAID purchases whose
// screening starts in the period, rounded to cents.
func (s *StatisticsService) RevenueForPeriod(ctx context.Context, p Period) (float64, error) {
	sales, _, err := s.load(ctx, p)
	if err != nil {
		return 0, err
	}
	return totalRevenue(sales), nil
}

// MostPopularMovie returns nil when nothing was sold in the period.
func (s *StatisticsService) MostPopularMovie(ctx context.Context, p Period) (*MoviePopularity, error) {
	sales, _, err := s.load(ctx, p)
	if err != nil {
		return nil, err
	}
	return topMovie(sales), nil
}

// MostPopularCategory returns nil when nothing was sold in the period.
func (s *StatisticsService) MostPopularCategory(ctx context.Context, p Period) (*CategoryPopularity, error) {
	sales, _, err := s.load(ctx, p)
	if err != nil {
		return nil, err
	}
	return topCategory(sales), nil
}

// AverageAttendance is seats sold per screening that sold at least
// one seat.
func (s *StatisticsService) AverageAttendance(ctx context.Context, p Period) (float64, error) {
	sales, _, err := s.load(ctx, p)
	if err != nil {
		return 0, err
	}
	return averageAttendance(sales), nil
}

// Summary computes every metric against one resolved window.
func (s *StatisticsService) Summary(ctx context.Context, p Period) (*Summary, error) {
	sales, w, err := s.load(ctx, p)
	if err != nil {
		return nil, err
	}
	return &Summary{
		Period:            p,
		From:              w.From,
		To:                w.To,
		Revenue:           totalRevenue(sales),
		MostPopularMovie:  topMovie(sales),
		MostPopularCat:    topCategory(sales),
		AverageAttendance: averageAttendance(sales),
	}, nil
}

func (s *StatisticsService) load(ctx context.Context, p Period) ([]model.Sale, Window, error) {
	w, err := s.Window(p)
	if err != nil {
		return nil, Window{}, err
	}
	rows, err := s.sales.ListSales(ctx, w.From, w.To)
	if err != nil {
		return nil, Window{}, wrap(err, "list sales")
	}
	out := rows[:0]
	for _, r := range rows {
		if w.Contains(r.StartsAt) {
			out = append(out, r)
		}
	}
	s.log.Debug("sales loaded",
		zap.String("period", string(p)),
		zap.Time("from", w.From),
		zap.Time("to", w.To),
		zap.Int("sales", len(out)))
	return out, w, nil
}

func totalRevenue(sales []model.Sale) float64 {
	var sum float64
	for _, s := range sales {
		sum += s.Amount()
	}
	return roundCents(sum)
}

func topMovie(sales []model.Sale) *MoviePopularity {
	byMovie := map[uint64]*MoviePopularity{}
	for _, s := range sales {
		m, ok := byMovie[s.MovieID]
		if !ok {
			m = &MoviePopularity{MovieID: s.MovieID, Title: s.MovieTitle}
			byMovie[s.MovieID] = m
		}
		m.Revenue += s.Amount()
	}
	var best *MoviePopularity
	for _, m := range byMovie {
		m.Revenue = roundCents(m.Revenue)
		if best == nil || m.Revenue > best.Revenue ||
			(m.Revenue == best.Revenue && m.MovieID < best.MovieID) {
			best = m
		}
	}
	return best
}

func topCategory(sales []model.Sale) *CategoryPopularity {
	byCat := map[string]uint64{}
	for _, s := range sales {
		seen := make(map[string]struct{}, len(s.Categories))
		for _, c := range s.Categories {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			byCat[c] += uint64(s.Seats)
		}
	}
	var best *CategoryPopularity
	for name, seats := range byCat {
		if best == nil || seats > best.Seats || (seats == best.Seats && name < best.Category) {
			best = &CategoryPopularity{Category: name, Seats: seats}
		}
	}
	return best
}

func averageAttendance(sales []model.Sale) float64 {
	screenings := map[uint64]struct{}{}
	var seats uint64
	for _, s := range sales {
		screenings[s.ScreeningID] = struct{}{}
		seats += uint64(s.Seats)
	}
	if len(screenings) == 0 {
		return 0
	}
	return float64(seats) / float64(len(screenings))
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
