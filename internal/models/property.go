package models

// Property is the local cache of property-service listings.
type Property struct {
	ID                    string   `gorm:"primaryKey;size:255" json:"id"`
	UserID                *string  `gorm:"column:user_id;size:255" json:"user_id"`
	Title                 string   `gorm:"size:255" json:"title"`
	Description           string   `gorm:"size:255" json:"description"`
	DailyPrice            float64  `gorm:"column:daily_price;not null" json:"daily_price"`
	DepositAmount         *float64 `gorm:"column:deposit_amount" json:"deposit_amount"`
	Capacity              int      `json:"capacity"`
	NumberOfBedrooms      *int     `gorm:"column:number_of_bedrooms" json:"number_of_bedrooms"`
	NumberOfBathrooms     *int     `gorm:"column:number_of_bathrooms" json:"number_of_bathrooms"`
	Address               string   `json:"address"`
	City                  string   `gorm:"size:120" json:"city"`
	Country               string   `gorm:"size:120" json:"country"`
	NegotiationPercentage *float64 `gorm:"column:negotiation_percentage" json:"negotiation_percentage"`
	MaxNegotiationPercent *int     `gorm:"column:max_negotiation_percent" json:"max_negotiation_percent"`
	Status                string   `gorm:"size:255" json:"status"`
}

func (Property) TableName() string { return "properties" }
