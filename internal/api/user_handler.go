package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/pixora/backend/internal/domain"
	"github.com/pixora/backend/internal/storage"
	"github.com/pixora/backend/pkg/response"
)

// UserHandler serves the account directory and the follow graph
type UserHandler struct {
	accounts  *domain.AccountService
	graph     *domain.GraphService
	bookmarks *domain.BookmarkService
	media     *domain.MediaService
	logger    *zap.Logger
}

func NewUserHandler(
	accounts *domain.AccountService,
	graph *domain.GraphService,
	bookmarks *domain.BookmarkService,
	media *domain.MediaService,
	logger *zap.Logger,
) *UserHandler {
	return &UserHandler{
		accounts:  accounts,
		graph:     graph,
		bookmarks: bookmarks,
		media:     media,
		logger:    logger,
	}
}

func toResponses(accounts []*domain.Account) []*domain.AccountResponse {
	out := make([]*domain.AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a.ToResponse())
	}
	return out
}

// List returns the newest accounts
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.ListAccounts(r.Context(), queryInt(r, "limit"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.OK(w, toResponses(accounts))
}

// Me returns the authenticated account
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	account, err := h.accounts.GetAccount(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.OK(w, account.ToResponse())
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	account, err := h.accounts.GetAccount(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.OK(w, account.ToResponse())
}

// Search matches ?q= against handles and display names
func (h *UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.SearchAccounts(r.Context(), r.URL.Query().Get("q"), queryInt(r, "limit"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]domain.AccountSummary, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a.Summary())
	}
	response.OK(w, out)
}

func (h *UserHandler) Follow(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	target, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.graph.Follow(r.Context(), userID, target); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.OK(w, map[string]bool{"isFollowing": true})
}

func (h *UserHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	target, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.graph.Unfollow(r.Context(), userID, target); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.OK(w, map[string]bool{"isFollowing": false})
}

func (h *UserHandler) IsFollowing(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	target, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	following, err := h.graph.IsFollowing(r.Context(), userID, target)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.OK(w, map[string]bool{"isFollowing": following})
}

func (h *UserHandler) Followers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	summaries, err := h.graph.ListFollowers(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.OK(w, summaries)
}

func (h *UserHandler) Following(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	summaries, err := h.graph.ListFollowing(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.OK(w, summaries)
}

// Saved lists the authenticated account's saved posts
func (h *UserHandler) Saved(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	saved, err := h.bookmarks.ListSaved(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.OK(w, saved)
}

// UploadProfilePicture replaces the avatar with the uploaded image
func (h *UserHandler) UploadProfilePicture(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	up, err := readUpload(w, r)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	url, err := h.media.Upload(r.Context(), storage.FolderProfilePics, up.data, up.filename)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	account, err := h.accounts.UpdateProfilePicture(r.Context(), userID, url)
	if err != nil {
		discardUpload(r, h.media, h.logger, url)
		writeError(w, r, h.logger, err)
		return
	}
	response.OK(w, account.ToResponse())
}
