package store

import (
	"context"

	"gorm.io/gorm"
)

// Driver is one resolved roster entry. Rows are written once and never updated.
type Driver struct {
	ID           uint   `gorm:"primaryKey" json:"-"`
	SessionKey   int    `gorm:"column:session_key;not null" json:"session_key"`
	Year         int    `gorm:"column:year;not null;index:idx_drivers_lookup" json:"year"`
	Location     string `gorm:"column:location;not null;index:idx_drivers_lookup" json:"location"`
	SessionName  string `gorm:"column:session_name;not null;index:idx_drivers_lookup" json:"session_name"`
	DriverNumber int    `gorm:"column:driver_number;not null" json:"driver_number"`
	NameAcronym  string `gorm:"column:name_acronym" json:"name_acronym"`
	TeamColour   string `gorm:"column:team_colour" json:"team_colour"`
	TeamName     string `gorm:"column:team_name" json:"team_name"`
}

func (Driver) TableName() string {
	return "drivers"
}

// DriverFilter selects drivers by equality on every non-zero field
type DriverFilter struct {
	Year         int
	Location     string
	SessionName  string
	DriverNumber int
}

// DriverRepository accesses the drivers collection
type DriverRepository struct {
	db *gorm.DB
}

func NewDriverRepository(db *gorm.DB) *DriverRepository {
	return &DriverRepository{db: db}
}

// Find returns the matching drivers in insertion order; no match is an empty slice, not an error.
func (r *DriverRepository) Find(ctx context.Context, filter DriverFilter) ([]Driver, error) {
	var drivers []Driver
	err := r.db.WithContext(ctx).
		Where(&Driver{
			Year:         filter.Year,
			Location:     filter.Location,
			SessionName:  filter.SessionName,
			DriverNumber: filter.DriverNumber,
		}).
		Order("id").
		Find(&drivers).Error
	if err != nil {
		return nil, &Error{Op: "find drivers", Err: err}
	}
	return drivers, nil
}

// Insert appends a driver. Inserting the same driver twice stores two rows.
func (r *DriverRepository) Insert(ctx context.Context, driver *Driver) error {
	if err := r.db.WithContext(ctx).Create(driver).Error; err != nil {
		return &Error{Op: "insert driver", Err: err}
	}
	return nil
}

// InsertAll appends a roster in one transaction: either every driver is
// stored or none is.
func (r *DriverRepository) InsertAll(ctx context.Context, drivers []Driver) error {
	if len(drivers) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&drivers, insertBatchSize).Error
	})
	if err != nil {
		return &Error{Op: "insert drivers", Err: err}
	}
	return nil
}
