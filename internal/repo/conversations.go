// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for conversations,
// their memberships and messages.
//
// Membership lives in the conversation_members join table (conversation_id,
// user_id) managed through the Conversation.Members association.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-market-backend/internal/domain"
)

const membersTable = "conversation_members"

// FindConversation returns the conversation about listingID that userID is a
// member of, or ErrNotFound.
func FindConversation(ctx context.Context, db *gorm.DB, listingID, userID uint64) (*domain.Conversation, error) {
	var c domain.Conversation
	err := db.WithContext(ctx).
		Joins("JOIN "+membersTable+" cm ON cm.conversation_id = conversations.id AND cm.user_id = ?", userID).
		Where("conversations.listing_id = ?", listingID).
		Preload("Members").
		Order("conversations.id asc").
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateConversation inserts a conversation about listingID together with the
// buyer and seller memberships. Users must already exist. A second
// conversation for the same (listing, buyer) yields ErrDuplicate.
func CreateConversation(ctx context.Context, db *gorm.DB, listingID, buyerID, sellerID uint64) (*domain.Conversation, error) {
	now := time.Now().UTC()
	c := &domain.Conversation{
		ListingID: listingID,
		BuyerID:   buyerID,
		CreatedAt: now,
		UpdatedAt: now,
		Members:   []domain.User{{ID: buyerID}, {ID: sellerID}},
	}
	if err := db.WithContext(ctx).Omit("Members.*", "Listing", "Messages").Create(c).Error; err != nil {
		if isDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return c, nil
}

// GetConversation fetches a conversation with its members, or ErrNotFound.
func GetConversation(ctx context.Context, db *gorm.DB, id uint64) (*domain.Conversation, error) {
	var c domain.Conversation
	err := db.WithContext(ctx).
		Preload("Members").
		Preload("Listing").
		First(&c, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// AppendMessage adds a message to a conversation and touches its updated_at
// so the inbox ordering reflects the latest activity.
func AppendMessage(ctx context.Context, db *gorm.DB, conversationID, userID uint64, content string) (*domain.ConversationMessage, error) {
	now := time.Now().UTC()
	m := &domain.ConversationMessage{
		ConversationID: conversationID,
		CreatedByID:    userID,
		Content:        content,
		CreatedAt:      now,
	}
	if err := db.WithContext(ctx).Omit("CreatedBy").Create(m).Error; err != nil {
		return nil, err
	}
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", conversationID).
		UpdateColumn("updated_at", now)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return m, nil
}

// ListConversationMessages returns a conversation's messages oldest first,
// with senders preloaded.
func ListConversationMessages(ctx context.Context, db *gorm.DB, conversationID uint64) ([]domain.ConversationMessage, error) {
	var out []domain.ConversationMessage
	err := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Preload("CreatedBy").
		Order("created_at asc").
		Order("id asc").
		Find(&out).Error
	return out, err
}

// ListConversationsForUser returns every conversation userID belongs to, most
// recently active first, with members and listing preloaded.
func ListConversationsForUser(ctx context.Context, db *gorm.DB, userID uint64) ([]domain.Conversation, error) {
	var out []domain.Conversation
	err := db.WithContext(ctx).
		Joins("JOIN "+membersTable+" cm ON cm.conversation_id = conversations.id AND cm.user_id = ?", userID).
		Preload("Members").
		Preload("Listing").
		Order("conversations.updated_at desc").
		Order("conversations.id desc").
		Find(&out).Error
	return out, err
}

// DeleteConversationsForListing removes messages, memberships and
// conversations attached to a listing, in that order.
func DeleteConversationsForListing(ctx context.Context, db *gorm.DB, listingID uint64) error {
	db = db.WithContext(ctx)
	ids := db.Model(&domain.Conversation{}).Select("id").Where("listing_id = ?", listingID)

	if err := db.Where("conversation_id IN (?)", ids).Delete(&domain.ConversationMessage{}).Error; err != nil {
		return err
	}
	if err := db.Exec("DELETE FROM "+membersTable+" WHERE conversation_id IN (?)", ids).Error; err != nil {
		return err
	}
	return db.Where("listing_id = ?", listingID).Delete(&domain.Conversation{}).Error
}
