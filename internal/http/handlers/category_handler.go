// Category HTTP handlers: a public list and an admin-only create.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-market-backend/internal/domain"
	"github.com/tbourn/go-market-backend/internal/http/middleware"
)

// CreateCategoryRequest is the JSON payload for creating a category.
type CreateCategoryRequest struct {
	Name string `json:"name" example:"Books"`
}

// ListCategoriesResponse wraps the category list.
type ListCategoriesResponse struct {
	Categories []domain.Category `json:"categories"`
}

// ListCategories godoc
// @ID          listCategories
// @Summary     List categories
// @Tags        Categories
// @Produce     json
// @Success     200  {object}  handlers.ListCategoriesResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /categories [get]
func (h *Handlers) ListCategories(c *gin.Context) {
	cats, err := h.cats.List(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListCategoriesResponse{Categories: cats})
}

// CreateCategory godoc
// @ID          createCategory
// @Summary     Create a category
// @Description Admin only. Names are trimmed, whitespace-collapsed and title-cased.
// @Tags        Categories
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.CreateCategoryRequest  true  "Category"
//
// @Success     201  {object}  domain.Category
// @Failure     400  {object}  handlers.ErrorResponse            "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse            "Not an admin"
// @Failure     422  {object}  handlers.ValidationErrorResponse  "Invalid or duplicate name"
// @Router      /categories [post]
func (h *Handlers) CreateCategory(c *gin.Context) {
	if _, found := currentUser(c); !found {
		return
	}
	if h.opts.IsAdmin == nil || !h.opts.IsAdmin(middleware.Username(c)) {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "admin only")
		return
	}

	var req CreateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	cat, err := h.cats.Create(c.Request.Context(), req.Name)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, cat)
}
