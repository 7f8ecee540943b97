package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pixora/backend/internal/domain"
	"github.com/pixora/backend/internal/storage"
	"github.com/pixora/backend/pkg/response"
	"github.com/pixora/backend/pkg/validator"
)

// PostHandler serves posts, likes, comments and bookmarks
type PostHandler struct {
	interactions *domain.InteractionService
	bookmarks    *domain.BookmarkService
	media        *domain.MediaService
	logger       *zap.Logger
}

func NewPostHandler(
	interactions *domain.InteractionService,
	bookmarks *domain.BookmarkService,
	media *domain.MediaService,
	logger *zap.Logger,
) *PostHandler {
	return &PostHandler{
		interactions: interactions,
		bookmarks:    bookmarks,
		media:        media,
		logger:       logger,
	}
}

// Create uploads the image in "file" and publishes it with "caption"
func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	up, err := readUpload(w, r)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	caption := strings.TrimSpace(up.value("caption"))
	if !validator.ValidateLength(caption, validator.MaxCaptionLen) {
		response.ValidationFailed(w, validator.ValidationErrors{{Field: "caption", Message: "must be at most 2200 characters"}})
		return
	}

	url, err := h.media.Upload(r.Context(), storage.FolderPosts, up.data, up.filename)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	post, err := h.interactions.PublishPost(r.Context(), userID, url, caption)
	if err != nil {
		discardUpload(r, h.media, h.logger, url)
		writeError(w, r, h.logger, err)
		return
	}
	response.Created(w, post)
}

// List returns posts newest first, paged by ?limit and ?offset
func (h *PostHandler) List(w http.ResponseWriter, r *http.Request) {
	posts, err := h.interactions.ListPosts(r.Context(), queryInt(r, "limit"), queryInt(r, "offset"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.OK(w, posts)
}

func (h *PostHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	post, err := h.interactions.GetPost(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.OK(w, post)
}

func (h *PostHandler) ListByAuthor(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	posts, err := h.interactions.ListPostsByAuthor(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.OK(w, posts)
}

func (h *PostHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	posts, err := h.interactions.ListMyPosts(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.OK(w, posts)
}

func (h *PostHandler) Like(w http.ResponseWriter, r *http.Request) {
	h.likeAction(w, r, h.interactions.Like)
}

func (h *PostHandler) Unlike(w http.ResponseWriter, r *http.Request) {
	h.likeAction(w, r, h.interactions.Unlike)
}

func (h *PostHandler) likeAction(
	w http.ResponseWriter,
	r *http.Request,
	action func(ctx context.Context, actor, postID uuid.UUID) (*domain.Post, error),
) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	postID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	post, err := action(r.Context(), userID, postID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.OK(w, domain.LikeEventPayload{PostID: post.ID, LikesCount: len(post.Likes), Likes: post.Likes})
}

func (h *PostHandler) IsLiked(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	postID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	liked, err := h.interactions.IsLiked(r.Context(), userID, postID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.OK(w, map[string]bool{"isLiked": liked})
}

// CommentRequest represents the comment request body
type CommentRequest struct {
	Comment string `json:"comment"`
}

func (h *PostHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	postID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req CommentRequest
	if err := decodeJSON(r, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if !validator.ValidateLength(req.Comment, validator.MaxCommentLen) {
		response.ValidationFailed(w, validator.ValidationErrors{{Field: "comment", Message: "must be at most 1000 characters"}})
		return
	}

	post, err := h.interactions.AddComment(r.Context(), userID, postID, req.Comment)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.Created(w, post)
}

// RemoveComment deletes a comment; only its author may do so
func (h *PostHandler) RemoveComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	postID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	commentID, ok := pathID(w, r, "commentId")
	if !ok {
		return
	}

	post, err := h.interactions.RemoveComment(r.Context(), userID, postID, commentID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.OK(w, post)
}

// Save bookmarks the post. Saving twice is reported in the body, not as an error.
func (h *PostHandler) Save(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	postID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	result, err := h.bookmarks.Save(r.Context(), userID, postID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.OK(w, result)
}

func (h *PostHandler) Unsave(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	postID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.bookmarks.Unsave(r.Context(), userID, postID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.OK(w, map[string]bool{"isSaved": false})
}

func (h *PostHandler) IsSaved(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	postID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	saved, err := h.bookmarks.IsSaved(r.Context(), userID, postID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.OK(w, map[string]bool{"isSaved": saved})
}
