package catalog

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Service is one catalog entry. Rows are written wholesale by the
// ingestion path and read-only from the chat pipeline.
type Service struct {
	ID          string  `gorm:"primaryKey;size:26" json:"id"`
	Name        string  `gorm:"type:varchar(128);not null" json:"name"`
	Category    string  `gorm:"type:varchar(64);index" json:"category"`
	Price       string  `gorm:"type:varchar(64)" json:"price"`
	Description string  `gorm:"type:text" json:"description"`
	Details     Details `gorm:"type:text" json:"details"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Service) TableName() string { return "catalog_services" }

// Option is a named variant or add-on with its own display price.
type Option struct {
	Name  string `json:"name"`
	Price string `json:"price,omitempty"`
}

// Details holds the loosely structured part of a catalog entry. Every
// field is optional; absent fields are not rendered into the prompt.
// Unknown JSON keys from older or newer ingests are ignored on read.
type Details struct {
	Options    []Option `json:"options,omitempty"`
	AddOns     []Option `json:"add_ons,omitempty"`
	Exclusions []string `json:"exclusions,omitempty"`
	UnitPrice  string   `json:"unit_price,omitempty"`
}

func (d Details) Empty() bool {
	return len(d.Options) == 0 && len(d.AddOns) == 0 && len(d.Exclusions) == 0 && d.UnitPrice == ""
}

// Value / Scan store Details as a JSON text column.
func (d Details) Value() (driver.Value, error) {
	if d.Empty() {
		return "{}", nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (d *Details) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Details{}
		return nil
	case []byte:
		if len(v) == 0 {
			*d = Details{}
			return nil
		}
		return json.Unmarshal(v, d)
	case string:
		if v == "" {
			*d = Details{}
			return nil
		}
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("catalog: cannot scan details from %T", src)
	}
}
