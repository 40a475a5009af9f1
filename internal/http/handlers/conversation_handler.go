// Conversation HTTP handlers.
//
// This file exposes the buyer/seller messaging endpoints:
//   - GET  /listings/{id}/conversation   (resume or report none yet)
//   - POST /listings/{id}/conversation   (start or resume)
//   - GET  /conversations                (inbox, weak ETag)
//   - GET  /conversations/{id}           (thread)
//   - POST /conversations/{id}/messages  (reply)
//
// An author contacting themselves about their own listing is redirected to
// the feed with 303 rather than answered with an error.
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-market-backend/internal/domain"
	"github.com/tbourn/go-market-backend/internal/http/middleware"
	"github.com/tbourn/go-market-backend/internal/repo"
	"github.com/tbourn/go-market-backend/internal/services"
)

//
// DTOs
//

// MessageRequest is the payload for posting a message.
type MessageRequest struct {
	Content string `json:"content" form:"content" example:"Is the atlas still available?"`
}

// MessageView is one message of a thread.
type MessageView struct {
	ID        uint64    `json:"id"`
	SenderID  uint64    `json:"sender_id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationView is a thread as seen by one of its members.
type ConversationView struct {
	ID           uint64        `json:"id"`
	ListingID    uint64        `json:"listing_id"`
	ListingTitle string        `json:"listing_title,omitempty"`
	Counterpart  domain.User   `json:"counterpart"`
	UpdatedAt    time.Time     `json:"updated_at"`
	Messages     []MessageView `json:"messages"`
}

// ContactResponse answers the contact-seller lookup. Conversation is null
// when the caller has not written to the seller yet.
type ContactResponse struct {
	Conversation *ConversationView `json:"conversation"`
}

// StartConversationResponse reports the conversation the caller landed in.
// Message is set only when a new conversation was created.
type StartConversationResponse struct {
	ConversationID uint64       `json:"conversation_id"`
	Resumed        bool         `json:"resumed"`
	Message        *MessageView `json:"message,omitempty"`
}

// InboxResponse lists the caller's conversations.
type InboxResponse struct {
	Conversations []services.InboxEntry `json:"conversations"`
}

//
// Helpers
//

// apiBase strips the listing suffix from the matched route, e.g.
// "/api/v1/listings/:id/conversation" yields "/api/v1".
func apiBase(c *gin.Context) string {
	p := c.FullPath()
	if i := strings.Index(p, "/listings/"); i >= 0 {
		return p[:i]
	}
	return ""
}

func conversationLocation(c *gin.Context, id uint64) string {
	return apiBase(c) + "/conversations/" + strconv.FormatUint(id, 10)
}

// senderName prefers the preloaded author and falls back to the member list.
func senderName(m *domain.ConversationMessage, members []domain.User) string {
	if m.CreatedBy.Username != "" {
		return m.CreatedBy.Username
	}
	for _, u := range members {
		if u.ID == m.CreatedByID {
			return u.Username
		}
	}
	return ""
}

func messageView(m *domain.ConversationMessage, members []domain.User) MessageView {
	return MessageView{
		ID:        m.ID,
		SenderID:  m.CreatedByID,
		Sender:    senderName(m, members),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

func threadView(t *services.Thread, viewer uint64) *ConversationView {
	c := t.Conversation
	v := &ConversationView{
		ID:           c.ID,
		ListingID:    c.ListingID,
		ListingTitle: c.Listing.Title,
		Counterpart:  c.Counterpart(viewer),
		UpdatedAt:    c.UpdatedAt,
		Messages:     make([]MessageView, 0, len(t.Messages)),
	}
	for i := range t.Messages {
		v.Messages = append(v.Messages, messageView(&t.Messages[i], c.Members))
	}
	return v
}

// bindMessage reads a JSON or form message body.
func bindMessage(c *gin.Context) (string, bool) {
	var req MessageRequest
	if err := c.ShouldBind(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid message body")
		return "", false
	}
	return req.Content, true
}

//
// Handlers
//

// GetListingConversation godoc
// @ID          getListingConversation
// @Summary     Contact seller
// @Description Returns the caller's existing conversation about the listing, or a null conversation when none was started. The author is redirected to the feed.
// @Tags        Conversations
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  int  true  "Listing ID"  minimum(1)
//
// @Success     200  {object}  handlers.ContactResponse
// @Success     303  "Own listing; redirected to the feed"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthenticated"
// @Failure     404  {object}  handlers.ErrorResponse  "Listing not found"
// @Router      /listings/{id}/conversation [get]
func (h *Handlers) GetListingConversation(c *gin.Context) {
	ctx := c.Request.Context()
	uid, found := currentUser(c)
	if !found {
		return
	}
	listingID, valid := pathID(c, "id")
	if !valid {
		return
	}

	conv, err := h.convs.Find(ctx, listingID, uid)
	switch {
	case errors.Is(err, services.ErrSelfConversation):
		c.Redirect(http.StatusSeeOther, apiBase(c)+"/listings")
		return
	case err != nil:
		failErr(c, err)
		return
	case conv == nil:
		ok(c, http.StatusOK, ContactResponse{})
		return
	}

	t, err := h.convs.GetThread(ctx, conv.ID, uid)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ContactResponse{Conversation: threadView(t, uid)})
}

// StartConversation godoc
// @ID          startConversation
// @Summary     Start or resume a conversation
// @Description Creates the conversation with content as its first message, or resumes the existing one without posting. At most one conversation exists per listing and buyer.
// @Tags        Conversations
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       id    path  int                      true  "Listing ID"  minimum(1)
// @Param       body  body  handlers.MessageRequest  true  "First message"
//
// @Success     200  {object}  handlers.StartConversationResponse  "Resumed"
// @Success     201  {object}  handlers.StartConversationResponse  "Created"
// @Success     303  "Own listing; redirected to the feed"
// @Failure     404  {object}  handlers.ErrorResponse            "Listing not found"
// @Failure     422  {object}  handlers.ValidationErrorResponse  "Empty message"
// @Router      /listings/{id}/conversation [post]
func (h *Handlers) StartConversation(c *gin.Context) {
	uid, found := currentUser(c)
	if !found {
		return
	}
	listingID, valid := pathID(c, "id")
	if !valid {
		return
	}
	content, bound := bindMessage(c)
	if !bound {
		return
	}

	res, err := h.convs.StartOrResume(c.Request.Context(), listingID, uid, content)
	switch {
	case errors.Is(err, services.ErrSelfConversation):
		c.Redirect(http.StatusSeeOther, apiBase(c)+"/listings")
		return
	case err != nil:
		failErr(c, err)
		return
	}

	c.Header("Location", conversationLocation(c, res.Conversation.ID))
	if res.Resumed {
		ok(c, http.StatusOK, StartConversationResponse{ConversationID: res.Conversation.ID, Resumed: true})
		return
	}
	middleware.ObserveMessage(true)
	mv := messageView(res.Message, res.Conversation.Members)
	if mv.Sender == "" {
		mv.Sender = middleware.Username(c)
	}
	ok(c, http.StatusCreated, StartConversationResponse{ConversationID: res.Conversation.ID, Message: &mv})
}

// ListInbox godoc
// @ID          listInbox
// @Summary     Inbox
// @Description Returns the caller's conversations, most recently active first. Supports weak ETag via If-None-Match.
// @Tags        Conversations
// @Produce     json
// @Security    BearerAuth
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
//
// @Success     200  {object}  handlers.InboxResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  "Not Modified"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthenticated"
// @Router      /conversations [get]
func (h *Handlers) ListInbox(c *gin.Context) {
	ctx := c.Request.Context()
	uid, found := currentUser(c)
	if !found {
		return
	}

	// ETag pre-check (best effort).
	if svc, ok := h.convs.(*services.ConversationService); ok && svc.DB != nil {
		if count, maxTS, err := repo.InboxStats(ctx, svc.DB, uid); err == nil {
			if notModified(c, "inbox:"+strconv.FormatUint(uid, 10), count, maxTS) {
				return
			}
		}
	}

	items, err := h.convs.ListInbox(ctx, uid)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, InboxResponse{Conversations: items})
}

// GetConversation godoc
// @ID          getConversation
// @Summary     Conversation thread
// @Description Returns the thread with messages oldest first. Only the two members may read it.
// @Tags        Conversations
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  int  true  "Conversation ID"  minimum(1)
//
// @Success     200  {object}  handlers.ConversationView
// @Failure     403  {object}  handlers.ErrorResponse  "Not a member"
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation not found"
// @Router      /conversations/{id} [get]
func (h *Handlers) GetConversation(c *gin.Context) {
	uid, found := currentUser(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	t, err := h.convs.GetThread(c.Request.Context(), id, uid)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, threadView(t, uid))
}

// PostMessage godoc
// @ID          postConversationMessage
// @Summary     Reply in a conversation
// @Tags        Conversations
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       id    path  int                      true  "Conversation ID"  minimum(1)
// @Param       body  body  handlers.MessageRequest  true  "Message"
//
// @Success     201  {object}  handlers.MessageView
// @Failure     403  {object}  handlers.ErrorResponse            "Not a member"
// @Failure     404  {object}  handlers.ErrorResponse            "Conversation not found"
// @Failure     422  {object}  handlers.ValidationErrorResponse  "Empty message"
// @Router      /conversations/{id}/messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	uid, found := currentUser(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	content, bound := bindMessage(c)
	if !bound {
		return
	}

	m, err := h.convs.PostMessage(c.Request.Context(), id, uid, content)
	if err != nil {
		failErr(c, err)
		return
	}
	middleware.ObserveMessage(false)
	mv := messageView(m, nil)
	if mv.Sender == "" {
		mv.Sender = middleware.Username(c)
	}
	ok(c, http.StatusCreated, mv)
}
