package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ukydev/iotfleet/internal/models"
)

// Page sizes for reading history queries.
const (
	DefaultVehiclePageSize = 50
	DefaultFleetPageSize   = 100
	MaxPageSize            = 1000
)

// ErrInvalidQuery wraps every rejected history query.
var ErrInvalidQuery = errors.New("invalid query")

// HistoryQuery selects a page of readings. Zero Page and PageSize take the
// defaults; From and To are inclusive.
type HistoryQuery struct {
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

func (q HistoryQuery) normalize(defaultSize int) (HistoryQuery, error) {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PageSize == 0 {
		q.PageSize = defaultSize
	}
	if q.Page < 1 {
		return q, fmt.Errorf("%w: page must be greater than 0", ErrInvalidQuery)
	}
	if q.PageSize < 1 || q.PageSize > MaxPageSize {
		return q, fmt.Errorf("%w: page_size must be between 1 and %d", ErrInvalidQuery, MaxPageSize)
	}
	if q.From != nil && q.To != nil && !q.From.Before(*q.To) {
		return q, fmt.Errorf("%w: from must be before to", ErrInvalidQuery)
	}
	return q, nil
}

func (q HistoryQuery) contains(t time.Time) bool {
	if q.From != nil && t.Before(*q.From) {
		return false
	}
	if q.To != nil && t.After(*q.To) {
		return false
	}
	return true
}

// page cuts one page out of readings already ordered newest first.
func (q HistoryQuery) page(readings []models.SensorReading) models.ReadingPage {
	matched := make([]models.SensorReading, 0, len(readings))
	for _, r := range readings {
		if q.contains(r.Timestamp) {
			matched = append(matched, r)
		}
	}

	total := len(matched)
	start := (q.Page - 1) * q.PageSize
	if start > total {
		start = total
	}
	end := start + q.PageSize
	if end > total {
		end = total
	}

	totalPages := (total + q.PageSize - 1) / q.PageSize
	return models.ReadingPage{
		Items:           matched[start:end],
		Page:            q.Page,
		PageSize:        q.PageSize,
		TotalCount:      total,
		TotalPages:      totalPages,
		HasNextPage:     q.Page < totalPages,
		HasPreviousPage: q.Page > 1,
	}
}

// ReadingsByVehicle returns one page of a vehicle's readings, newest first.
func (s *Service) ReadingsByVehicle(ctx context.Context, vehicleID string, q HistoryQuery) (models.ReadingPage, error) {
	q, err := q.normalize(DefaultVehiclePageSize)
	if err != nil {
		return models.ReadingPage{}, err
	}
	if _, err := s.store.FindVehicleByID(ctx, vehicleID); err != nil {
		return models.ReadingPage{}, err
	}

	readings, err := s.store.ListReadingsForVehicle(ctx, vehicleID, true)
	if err != nil {
		return models.ReadingPage{}, err
	}
	return q.page(readings), nil
}

// ReadingsByFleet returns one page of readings across every vehicle of a
// fleet, newest first. An unknown fleet yields an empty page.
func (s *Service) ReadingsByFleet(ctx context.Context, fleetID string, q HistoryQuery) (models.ReadingPage, error) {
	q, err := q.normalize(DefaultFleetPageSize)
	if err != nil {
		return models.ReadingPage{}, err
	}

	vehicles, err := s.store.ListVehicles(ctx)
	if err != nil {
		return models.ReadingPage{}, err
	}

	var readings []models.SensorReading
	for _, v := range vehicles {
		if !v.InFleet(fleetID) {
			continue
		}
		rs, err := s.store.ListReadingsForVehicle(ctx, v.ID, true)
		if err != nil {
			return models.ReadingPage{}, err
		}
		readings = append(readings, rs...)
	}

	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].Timestamp.After(readings[j].Timestamp)
	})
	return q.page(readings), nil
}
