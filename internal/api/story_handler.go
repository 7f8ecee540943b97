package api

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/pixora/backend/internal/domain"
	"github.com/pixora/backend/internal/storage"
	"github.com/pixora/backend/pkg/response"
	"github.com/pixora/backend/pkg/validator"
)

type StoryHandler struct {
	stories *domain.StoryService
	media   *domain.MediaService
	logger  *zap.Logger
}

func NewStoryHandler(stories *domain.StoryService, media *domain.MediaService, logger *zap.Logger) *StoryHandler {
	return &StoryHandler{
		stories: stories,
		media:   media,
		logger:  logger,
	}
}

// CreateStory handles creating a new story from the image in "file"
func (h *StoryHandler) CreateStory(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	up, err := readUpload(w, r)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	text := strings.TrimSpace(up.value("text"))
	if !validator.ValidateLength(text, validator.MaxStoryTextLen) {
		response.ValidationFailed(w, validator.ValidationErrors{{Field: "text", Message: "must be at most 500 characters"}})
		return
	}

	url, err := h.media.Upload(r.Context(), storage.FolderStories, up.data, up.filename)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	item, err := h.stories.PublishStory(r.Context(), userID, url, text)
	if err != nil {
		discardUpload(r, h.media, h.logger, url)
		writeError(w, r, h.logger, err)
		return
	}

	response.Created(w, item)
}

// GetFeed returns the active stories of every account the caller follows
func (h *StoryHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	feed, err := h.stories.FeedFor(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response.OK(w, feed)
}
