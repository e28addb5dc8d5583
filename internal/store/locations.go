package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Location is one Grand Prix event of a season
type Location struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	Year        int       `gorm:"column:year;not null;index" json:"year"`
	MeetingKey  int       `gorm:"column:meeting_key;not null;uniqueIndex" json:"meeting_key"`
	MeetingName string    `gorm:"column:meeting_name" json:"meeting_name"`
	Location    string    `gorm:"column:location" json:"location"`
	DateStart   time.Time `gorm:"column:date_start" json:"date_start"`
}

func (Location) TableName() string {
	return "locations"
}

// LocationFilter selects locations by equality on every non-zero field
type LocationFilter struct {
	Year       int
	MeetingKey int
	Location   string
}

// LocationRepository accesses the locations collection
type LocationRepository struct {
	db *gorm.DB
}

func NewLocationRepository(db *gorm.DB) *LocationRepository {
	return &LocationRepository{db: db}
}

// Find returns the matching locations ordered by start date
func (r *LocationRepository) Find(ctx context.Context, filter LocationFilter) ([]Location, error) {
	var locations []Location
	err := r.db.WithContext(ctx).
		Where(&Location{
			Year:       filter.Year,
			MeetingKey: filter.MeetingKey,
			Location:   filter.Location,
		}).
		Order("date_start ASC").
		Find(&locations).Error
	if err != nil {
		return nil, &Error{Op: "find locations", Err: err}
	}
	return locations, nil
}

// Insert appends a location. The meeting key is unique, so a duplicate fails.
func (r *LocationRepository) Insert(ctx context.Context, location *Location) error {
	if err := r.db.WithContext(ctx).Create(location).Error; err != nil {
		return &Error{Op: "insert location", Err: err}
	}
	return nil
}

var upsertOnMeetingKey = clause.OnConflict{
	Columns:   []clause.Column{{Name: "meeting_key"}},
	DoUpdates: clause.AssignmentColumns([]string{"year", "meeting_name", "location", "date_start"}),
}

// Upsert inserts the location or replaces the row with the same meeting key
func (r *LocationRepository) Upsert(ctx context.Context, location *Location) error {
	if err := r.db.WithContext(ctx).Clauses(upsertOnMeetingKey).Create(location).Error; err != nil {
		return &Error{Op: "upsert location", Err: err}
	}
	return nil
}

// UpsertAll upserts a season listing in one transaction
func (r *LocationRepository) UpsertAll(ctx context.Context, locations []Location) error {
	if len(locations) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(upsertOnMeetingKey).CreateInBatches(&locations, insertBatchSize).Error
	})
	if err != nil {
		return &Error{Op: "upsert locations", Err: err}
	}
	return nil
}
