// Package services – ConversationService
//
// ConversationService manages buyer/seller threads. There is at most one
// conversation per (listing, buyer); membership is the access rule for
// reading and posting.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-market-backend/internal/domain"
	"github.com/tbourn/go-market-backend/internal/repo"
)

// ConversationService provides the messaging workflow.
type ConversationService struct {
	DB *gorm.DB
}

// NewConversationService wires a ConversationService.
func NewConversationService(db *gorm.DB) *ConversationService {
	return &ConversationService{DB: db}
}

// StartResult is the outcome of StartOrResume.
type StartResult struct {
	Conversation *domain.Conversation
	Message      *domain.ConversationMessage
	Resumed      bool
}

// InboxEntry is one row of a user's inbox.
type InboxEntry struct {
	ConversationID uint64      `json:"conversation_id"`
	Counterpart    domain.User `json:"counterpart"`
	ListingID      uint64      `json:"listing_id"`
	ListingTitle   string      `json:"listing_title"`
	LastActivity   time.Time   `json:"last_activity"`
}

// Thread is a conversation with its ordered messages.
type Thread struct {
	Conversation *domain.Conversation
	Messages     []domain.ConversationMessage
}

// Find returns the conversation about listingID that userID belongs to, or
// nil when there is none yet.
func (s *ConversationService) Find(ctx context.Context, listingID, userID uint64) (*domain.Conversation, error) {
	ctx, span := otel.Tracer("services/ConversationService").Start(ctx, "Find",
		trace.WithAttributes(attribute.Int64("listing.id", int64(listingID))))
	defer span.End()

	l, err := repo.GetListing(ctx, s.DB, listingID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, err
	}
	if l.AuthorID == userID {
		return nil, ErrSelfConversation
	}

	c, err := repo.FindConversation(ctx, s.DB, listingID, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	return c, err
}

// StartOrResume resumes the caller's existing conversation about listingID,
// or creates it with content as the first message. When resuming, content is
// not posted.
func (s *ConversationService) StartOrResume(ctx context.Context, listingID, userID uint64, content string) (*StartResult, error) {
	ctx, span := otel.Tracer("services/ConversationService").Start(ctx, "StartOrResume",
		trace.WithAttributes(
			attribute.Int64("listing.id", int64(listingID)),
			attribute.Int64("user.id", int64(userID)),
		))
	defer span.End()

	l, err := repo.GetListing(ctx, s.DB, listingID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, err
	}
	if l.AuthorID == userID {
		return nil, ErrSelfConversation
	}

	if c, err := repo.FindConversation(ctx, s.DB, listingID, userID); err == nil {
		return &StartResult{Conversation: c, Resumed: true}, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	content = normalizeMessage(content)
	if content == "" {
		return nil, emptyMessage()
	}

	var out StartResult
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := repo.CreateConversation(ctx, tx, listingID, userID, l.AuthorID)
		if err != nil {
			return err
		}
		m, err := repo.AppendMessage(ctx, tx, c.ID, userID, content)
		if err != nil {
			return err
		}
		out.Conversation, out.Message = c, m
		return nil
	})
	if errors.Is(err, repo.ErrDuplicate) {
		// A concurrent request created it first.
		zerolog.Ctx(ctx).Debug().Uint64("listing_id", listingID).Msg("conversation create lost race, resuming")
		c, ferr := repo.FindConversation(ctx, s.DB, listingID, userID)
		if ferr != nil {
			return nil, ferr
		}
		return &StartResult{Conversation: c, Resumed: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// PostMessage appends content to a conversation the caller is a member of.
func (s *ConversationService) PostMessage(ctx context.Context, conversationID, userID uint64, content string) (*domain.ConversationMessage, error) {
	ctx, span := otel.Tracer("services/ConversationService").Start(ctx, "PostMessage",
		trace.WithAttributes(attribute.Int64("conversation.id", int64(conversationID))))
	defer span.End()

	if _, err := s.member(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	content = normalizeMessage(content)
	if content == "" {
		return nil, emptyMessage()
	}

	var m *domain.ConversationMessage
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		m, err = repo.AppendMessage(ctx, tx, conversationID, userID, content)
		return err
	})
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrConversationNotFound
	}
	return m, err
}

// ListInbox returns the caller's conversations, most recently active first.
func (s *ConversationService) ListInbox(ctx context.Context, userID uint64) ([]InboxEntry, error) {
	ctx, span := otel.Tracer("services/ConversationService").Start(ctx, "ListInbox")
	defer span.End()

	convs, err := repo.ListConversationsForUser(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	out := make([]InboxEntry, 0, len(convs))
	for i := range convs {
		c := &convs[i]
		out = append(out, InboxEntry{
			ConversationID: c.ID,
			Counterpart:    c.Counterpart(userID),
			ListingID:      c.ListingID,
			ListingTitle:   c.Listing.Title,
			LastActivity:   c.UpdatedAt,
		})
	}
	return out, nil
}

// GetThread returns a conversation and its messages, oldest first.
func (s *ConversationService) GetThread(ctx context.Context, conversationID, userID uint64) (*Thread, error) {
	ctx, span := otel.Tracer("services/ConversationService").Start(ctx, "GetThread",
		trace.WithAttributes(attribute.Int64("conversation.id", int64(conversationID))))
	defer span.End()

	c, err := s.member(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	msgs, err := repo.ListConversationMessages(ctx, s.DB, conversationID)
	if err != nil {
		return nil, err
	}
	return &Thread{Conversation: c, Messages: msgs}, nil
}

// member loads the conversation and checks that userID belongs to it.
func (s *ConversationService) member(ctx context.Context, conversationID, userID uint64) (*domain.Conversation, error) {
	c, err := repo.GetConversation(ctx, s.DB, conversationID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	if !c.HasMember(userID) {
		return nil, ErrNotAMember
	}
	return c, nil
}

func normalizeMessage(s string) string {
	return strings.TrimSpace(s)
}

func emptyMessage() error {
	ve := &ValidationError{}
	ve.Add("content", "required", "message cannot be empty", ErrEmptyMessage)
	return ve
}
