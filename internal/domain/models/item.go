package models

import "time"

// ItemStatus enumerates the lifecycle states of a catalogue item.
type ItemStatus string

const (
	ItemActive   ItemStatus = "Active"
	ItemInactive ItemStatus = "Inactive"
)

// Item is a stocked product. Stock is only ever changed by purchase and sale
// operations after the item directory sets OpeningStock at creation.
type Item struct {
	ItemNumber      int        `bson:"itemNumber" json:"itemNumber"`
	ItemName        string     `bson:"itemName" json:"itemName"`
	Description     string     `bson:"description,omitempty" json:"description,omitempty"`
	DiscountPercent float64    `bson:"discountPercent" json:"discountPercent"`
	Stock           int        `bson:"stock" json:"stock"`
	OpeningStock    int        `bson:"openingStock" json:"openingStock"`
	UnitPrice       float64    `bson:"unitPrice" json:"unitPrice"`
	Status          ItemStatus `bson:"status" json:"status"`
	CreatedAt       time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// Vendor supplies items. Optional contact fields default to the empty string.
type Vendor struct {
	ID          string `bson:"_id" json:"id"`
	FullName    string `bson:"fullName" json:"fullName"`
	Status      string `bson:"status" json:"status"`
	Email       string `bson:"email" json:"email"`
	PhoneMobile string `bson:"phoneMobile" json:"phoneMobile"`
	Phone2      string `bson:"phone2" json:"phone2"`
	Address     string `bson:"address" json:"address"`
	Address2    string `bson:"address2" json:"address2"`
	City        string `bson:"city" json:"city"`
	District    string `bson:"district" json:"district"`
}

// Customer buys items.
type Customer struct {
	ID          string `bson:"_id" json:"id"`
	CustomerID  string `bson:"customerId" json:"customerId"`
	FullName    string `bson:"fullName" json:"fullName"`
	Status      string `bson:"status" json:"status"`
	Email       string `bson:"email" json:"email"`
	PhoneMobile string `bson:"phoneMobile" json:"phoneMobile"`
	Phone2      string `bson:"phone2" json:"phone2"`
	Address     string `bson:"address" json:"address"`
	Address2    string `bson:"address2" json:"address2"`
	City        string `bson:"city" json:"city"`
	District    string `bson:"district" json:"district"`
}
