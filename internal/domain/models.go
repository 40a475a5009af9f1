// Package domain defines the persistence models for users, categories,
// listings, listing images, and buyer/seller conversations. These types are
// mapped with GORM and form the core data layer of the marketplace.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCategoryID is the category assigned to listings created before
// categorisation existed. It is seeded at startup.
const DefaultCategoryID uint64 = 1

// DefaultCategoryName is the display label of the seeded default category.
const DefaultCategoryName = "General"

// User mirrors an identity supplied by the authentication layer. The service
// never manages credentials; it only needs a stable id and a display name.
type User struct {
	ID        uint64    `json:"id"         gorm:"primaryKey;autoIncrement:false"`
	Username  string    `json:"username"   gorm:"type:varchar(150);not null;uniqueIndex:ux_users_username"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Category groups listings. Names are unique display labels.
type Category struct {
	ID        uint64    `json:"id"         gorm:"primaryKey;autoIncrement"`
	Name      string    `json:"name"       gorm:"type:varchar(120);not null;uniqueIndex:ux_categories_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Category.
func (Category) TableName() string { return "categories" }

// Listing is a for-sale post.
//
// Fields:
//   - Title: at most 100 characters.
//   - Price: non-negative, two decimal places.
//   - IsSold: sold listings drop out of the public feed but stay on the
//     author's page.
//   - DatePosted: defaults to creation time; drives feed ordering.
//   - Author / Category: both cascade-delete the listing.
type Listing struct {
	ID         uint64          `json:"id"          gorm:"primaryKey;autoIncrement"`
	Title      string          `json:"title"       gorm:"type:varchar(100);not null"`
	Content    string          `json:"content"     gorm:"type:text;not null"`
	CategoryID uint64          `json:"category_id" gorm:"not null;default:1;index:idx_listings_category"`
	Price      decimal.Decimal `json:"price"       gorm:"type:decimal(12,2);not null;default:0"`
	IsSold     bool            `json:"is_sold"     gorm:"not null;default:false;index:idx_listings_feed,priority:1"`
	DatePosted time.Time       `json:"date_posted" gorm:"not null;index:idx_listings_feed,priority:2"`
	AuthorID   uint64          `json:"author_id"   gorm:"not null;index:idx_listings_author"`
	UpdatedAt  time.Time       `json:"updated_at"`

	Author   User           `json:"author"   gorm:"foreignKey:AuthorID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Category Category       `json:"category" gorm:"foreignKey:CategoryID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Images   []ListingImage `json:"images,omitempty" gorm:"foreignKey:ListingID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Listing.
func (Listing) TableName() string { return "listings" }

// ListingImage is one stored picture of a listing. Path is the storage
// reference returned by the binary store; UploadedAt is set once.
type ListingImage struct {
	ID          uint64    `json:"id"           gorm:"primaryKey;autoIncrement"`
	ListingID   uint64    `json:"listing_id"   gorm:"not null;index:idx_listing_images_order,priority:1"`
	Path        string    `json:"path"         gorm:"type:varchar(512);not null"`
	ContentType string    `json:"content_type" gorm:"type:varchar(64);not null"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	UploadedAt  time.Time `json:"uploaded_at"  gorm:"not null;autoCreateTime:false;index:idx_listing_images_order,priority:2"`
}

// TableName returns the database table name for ListingImage.
func (ListingImage) TableName() string { return "listing_images" }

// Conversation is a two-party thread scoped to one listing. Members holds the
// buyer and the listing author. UpdatedAt is touched on every new message and
// orders the inbox.
type Conversation struct {
	ID        uint64    `json:"id"         gorm:"primaryKey;autoIncrement"`
	ListingID uint64    `json:"listing_id" gorm:"not null;uniqueIndex:ux_conversation_listing_buyer,priority:1"`
	BuyerID   uint64    `json:"buyer_id"   gorm:"not null;uniqueIndex:ux_conversation_listing_buyer,priority:2"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"index"`

	Listing  Listing               `json:"-"        gorm:"foreignKey:ListingID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Members  []User                `json:"members"  gorm:"many2many:conversation_members;constraint:OnDelete:CASCADE"`
	Messages []ConversationMessage `json:"messages,omitempty" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// ConversationMessage is an append-only entry of a conversation.
type ConversationMessage struct {
	ID             uint64    `json:"id"              gorm:"primaryKey;autoIncrement"`
	ConversationID uint64    `json:"conversation_id" gorm:"not null;index:idx_conversation_msgs,priority:1"`
	CreatedByID    uint64    `json:"created_by_id"   gorm:"not null;index"`
	Content        string    `json:"content"         gorm:"type:text;not null"`
	CreatedAt      time.Time `json:"created_at"      gorm:"index:idx_conversation_msgs,priority:2"`

	CreatedBy User `json:"created_by" gorm:"foreignKey:CreatedByID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ConversationMessage.
func (ConversationMessage) TableName() string { return "conversation_messages" }

// HasMember reports whether userID belongs to the loaded member set.
func (c *Conversation) HasMember(userID uint64) bool {
	for _, m := range c.Members {
		if m.ID == userID {
			return true
		}
	}
	return false
}

// Counterpart returns the member that is not userID. The zero User is
// returned when members were not loaded.
func (c *Conversation) Counterpart(userID uint64) User {
	for _, m := range c.Members {
		if m.ID != userID {
			return m
		}
	}
	return User{}
}
