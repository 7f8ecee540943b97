package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pixora/backend/internal/api"
	"github.com/pixora/backend/internal/auth"
	"github.com/pixora/backend/internal/domain"
	"github.com/pixora/backend/internal/fanout"
	"github.com/pixora/backend/internal/metrics"
	"github.com/pixora/backend/internal/repository/memory"
	"github.com/pixora/backend/internal/storage"
)

const testSecret = "test-secret-with-enough-length"

var errConnReset = errors.New("connection reset")

// flakyAccounts fails selected account writes on demand.
type flakyAccounts struct {
	domain.AccountRepository
	failMirror atomic.Bool
	failMedia  atomic.Bool
}

func (f *flakyAccounts) AddFollower(ctx context.Context, id, follower uuid.UUID) (bool, error) {
	if f.failMirror.Load() {
		return false, errConnReset
	}
	return f.AccountRepository.AddFollower(ctx, id, follower)
}

func (f *flakyAccounts) PushStory(ctx context.Context, id uuid.UUID, item domain.StoryItem) (*domain.Account, error) {
	if f.failMedia.Load() {
		return nil, errConnReset
	}
	return f.AccountRepository.PushStory(ctx, id, item)
}

func (f *flakyAccounts) SetProfilePicture(ctx context.Context, id uuid.UUID, url string) error {
	if f.failMedia.Load() {
		return errConnReset
	}
	return f.AccountRepository.SetProfilePicture(ctx, id, url)
}

type flakyPosts struct {
	domain.PostRepository
	failCreate atomic.Bool
}

func (f *flakyPosts) CreatePost(ctx context.Context, params domain.CreatePostParams) (*domain.Post, error) {
	if f.failCreate.Load() {
		return nil, errConnReset
	}
	return f.PostRepository.CreatePost(ctx, params)
}

type testAPI struct {
	t         *testing.T
	handler   http.Handler
	issuer    *auth.JWTIssuer
	accounts  *flakyAccounts
	posts     *flakyPosts
	uploadDir string
	hub       *api.WebSocketManager
	events    *fanout.Broadcaster
	metrics   *metrics.Metrics
	logs      *observer.ObservedLogs
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	policy := domain.NewStoryPolicy(24*time.Hour, domain.SystemClock)
	store := memory.New(policy)
	accounts := &flakyAccounts{AccountRepository: store}
	posts := &flakyPosts{PostRepository: store}

	uploadDir := t.TempDir()
	local, err := storage.NewLocalFileStorage(uploadDir, "http://localhost/uploads")
	require.NoError(t, err)

	m := metrics.New()
	hub := api.NewWebSocketManager(logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	events := fanout.NewBroadcaster(logger, m, 0, hub)
	t.Cleanup(func() {
		events.Close()
		cancel()
	})

	accountSvc := domain.NewAccountService(accounts, auth.NewJWTVerifier(testSecret, "pixora-test"), policy, logger)
	graph := domain.NewGraphService(accounts, m, logger)
	stories := domain.NewStoryService(accounts, policy, m, logger)
	bookmarks := domain.NewBookmarkService(accounts, store)
	interactions := domain.NewInteractionService(posts, accounts, events, domain.SystemClock)
	media := domain.NewMediaService(local)

	router := api.NewRouter(api.Handlers{
		Auth:    api.NewAuthHandler(accountSvc, logger),
		Users:   api.NewUserHandler(accountSvc, graph, bookmarks, media, logger),
		Posts:   api.NewPostHandler(interactions, bookmarks, media, logger),
		Stories: api.NewStoryHandler(stories, media, logger),
		Health:  api.NewHealthHandler(store, logger),
		Hub:     hub,
	}, accountSvc, api.RouterOptions{
		AllowedOrigins: []string{"*"},
		Metrics:        m,
		UploadDir:      uploadDir,
	}, logger)

	return &testAPI{
		t:         t,
		handler:   router.Setup(),
		issuer:    auth.NewJWTIssuer(testSecret, "pixora-test", time.Hour),
		accounts:  accounts,
		posts:     posts,
		uploadDir: uploadDir,
		hub:       hub,
		events:    events,
		metrics:   m,
		logs:      logs,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *testAPI) do(method, path, token string, body any) (int, envelope) {
	a.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return a.send(req, token)
}

func (a *testAPI) send(req *http.Request, token string) (int, envelope) {
	a.t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec.Code, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

// register creates an account for a fresh identity and returns its token and id
func (a *testAPI) register(handle string) (string, uuid.UUID) {
	a.t.Helper()
	token, err := a.issuer.Issue("subject-"+handle, handle+"@example.com")
	require.NoError(a.t, err)

	status, env := a.do(http.MethodPost, "/api/v1/auth/register", token, map[string]string{
		"displayName": strings.ToUpper(handle),
		"handle":      handle,
	})
	require.Equal(a.t, http.StatusCreated, status)
	account := decodeData[domain.AccountResponse](a.t, env)
	return token, account.ID
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartRequest(t *testing.T, method, path, contentType string, file []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="photo.png"`)
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func (a *testAPI) createPost(token, caption string) domain.Post {
	a.t.Helper()
	req := multipartRequest(a.t, http.MethodPost, "/api/v1/posts", "image/png", pngBytes(a.t), map[string]string{"caption": caption})
	status, env := a.send(req, token)
	require.Equal(a.t, http.StatusCreated, status)
	return decodeData[domain.Post](a.t, env)
}

func TestAuth_RegisterLoginLogout(t *testing.T) {
	a := newTestAPI(t)
	token, id := a.register("alice")

	status, env := a.do(http.MethodGet, "/api/v1/users/me", token, nil)
	require.Equal(t, http.StatusOK, status)
	me := decodeData[domain.AccountResponse](t, env)
	assert.Equal(t, id, me.ID)
	assert.Equal(t, "alice", me.Handle)

	// A second token for the same identity becomes an additional session.
	second, err := a.issuer.Issue("subject-alice", "alice@example.com")
	require.NoError(t, err)
	status, _ = a.do(http.MethodPost, "/api/v1/auth/login", second, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = a.do(http.MethodPost, "/api/v1/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, status)

	status, env = a.do(http.MethodGet, "/api/v1/users/me", token, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	status, _ = a.do(http.MethodGet, "/api/v1/users/me", second, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestAuth_RegisterRejections(t *testing.T) {
	a := newTestAPI(t)
	a.register("taken")

	fresh, err := a.issuer.Issue("subject-other", "")
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		body   map[string]string
		status int
		code   string
	}{
		{"missing token", "", map[string]string{"handle": "bob", "displayName": "Bob"}, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"garbage token", "not-a-jwt", map[string]string{"handle": "bob", "displayName": "Bob"}, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"bad handle", fresh, map[string]string{"handle": "b!", "displayName": "Bob"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"handle taken", fresh, map[string]string{"handle": "taken", "displayName": "Bob"}, http.StatusConflict, "CONFLICT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := a.do(http.MethodPost, "/api/v1/auth/register", tt.token, tt.body)
			assert.Equal(t, tt.status, status)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestUsers_FollowFlow(t *testing.T) {
	a := newTestAPI(t)
	alice, aliceID := a.register("alice")
	_, bobID := a.register("bob")

	status, env := a.do(http.MethodPost, "/api/v1/users/"+bobID.String()+"/follow", alice, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]bool{"isFollowing": true}, decodeData[map[string]bool](t, env))

	status, env = a.do(http.MethodPost, "/api/v1/users/"+bobID.String()+"/follow", alice, nil)
	assert.Equal(t, http.StatusConflict, status)

	status, env = a.do(http.MethodGet, "/api/v1/users/"+bobID.String()+"/followers", alice, nil)
	require.Equal(t, http.StatusOK, status)
	followers := decodeData[[]domain.AccountSummary](t, env)
	require.Len(t, followers, 1)
	assert.Equal(t, aliceID, followers[0].ID)

	status, env = a.do(http.MethodGet, "/api/v1/users/"+bobID.String()+"/is-following", alice, nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, decodeData[map[string]bool](t, env)["isFollowing"])

	status, _ = a.do(http.MethodPost, "/api/v1/users/"+bobID.String()+"/unfollow", alice, nil)
	require.Equal(t, http.StatusOK, status)

	status, env = a.do(http.MethodPost, "/api/v1/users/"+bobID.String()+"/unfollow", alice, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "BAD_REQUEST", env.Error.Code)

	status, _ = a.do(http.MethodPost, "/api/v1/users/"+aliceID.String()+"/follow", alice, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = a.do(http.MethodPost, "/api/v1/users/"+uuid.NewString()+"/follow", alice, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = a.do(http.MethodPost, "/api/v1/users/not-a-uuid/follow", alice, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestUsers_FollowMirrorFailureIsReported(t *testing.T) {
	a := newTestAPI(t)
	alice, _ := a.register("alice")
	_, bobID := a.register("bob")

	a.accounts.failMirror.Store(true)
	status, env := a.do(http.MethodPost, "/api/v1/users/"+bobID.String()+"/follow", alice, nil)

	assert.Equal(t, http.StatusInternalServerError, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "CONSISTENCY_ERROR", env.Error.Code)
	assert.NotZero(t, a.logs.FilterField(zap.Bool("fatal_consistency", true)).Len())
}

func TestPosts_LikeCommentSave(t *testing.T) {
	a := newTestAPI(t)
	alice, _ := a.register("alice")
	bob, _ := a.register("bob")
	post := a.createPost(alice, "sunset")
	base := "/api/v1/posts/" + post.ID.String()

	status, env := a.do(http.MethodPost, base+"/like", bob, nil)
	require.Equal(t, http.StatusOK, status)
	liked := decodeData[domain.LikeEventPayload](t, env)
	assert.Equal(t, 1, liked.LikesCount)

	status, _ = a.do(http.MethodPost, base+"/like", bob, nil)
	assert.Equal(t, http.StatusConflict, status)

	status, env = a.do(http.MethodGet, base+"/is-liked", bob, nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, decodeData[map[string]bool](t, env)["isLiked"])

	status, _ = a.do(http.MethodPost, base+"/unlike", alice, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, env = a.do(http.MethodPost, base+"/comments", bob, map[string]string{"comment": "nice"})
	require.Equal(t, http.StatusCreated, status)
	commented := decodeData[domain.Post](t, env)
	require.Len(t, commented.Comments, 1)
	commentPath := base + "/comments/" + commented.Comments[0].ID.String()

	status, env = a.do(http.MethodDelete, commentPath, alice, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	status, _ = a.do(http.MethodDelete, commentPath, bob, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = a.do(http.MethodPost, base+"/save", bob, nil)
	require.Equal(t, http.StatusOK, status)
	status, env = a.do(http.MethodPost, base+"/save", bob, nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, decodeData[domain.SaveResult](t, env).AlreadySaved)

	status, env = a.do(http.MethodGet, "/api/v1/users/me/saved", bob, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decodeData[[]domain.SavedPost](t, env), 1)

	status, _ = a.do(http.MethodPost, base+"/unsave", bob, nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = a.do(http.MethodPost, base+"/unsave", bob, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = a.do(http.MethodPost, "/api/v1/posts/"+uuid.NewString()+"/like", bob, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestPosts_UploadValidation(t *testing.T) {
	a := newTestAPI(t)
	alice, _ := a.register("alice")

	tests := []struct {
		name        string
		contentType string
		file        []byte
		fields      map[string]string
	}{
		{"missing file", "image/png", nil, map[string]string{"caption": "x"}},
		{"wrong type", "image/gif", pngBytes(t), nil},
		{"too large", "image/png", bytes.Repeat([]byte{0x1}, api.MaxUploadSize+1), nil},
		{"not an image", "image/png", []byte("plain text"), nil},
		{"caption too long", "image/png", pngBytes(t), map[string]string{"caption": strings.Repeat("a", 2201)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := multipartRequest(t, http.MethodPost, "/api/v1/posts", tt.contentType, tt.file, tt.fields)
			status, env := a.send(req, alice)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.False(t, env.Success)
		})
	}
}

// uploadedFiles counts the objects left in the local upload directory
func (a *testAPI) uploadedFiles() int {
	a.t.Helper()
	n := 0
	err := filepath.WalkDir(a.uploadDir, func(_ string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			n++
		}
		return err
	})
	require.NoError(a.t, err)
	return n
}

func TestMedia_FailedWriteRemovesUpload(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		fields map[string]string
		fail   func(a *testAPI)
	}{
		{"post", http.MethodPost, "/api/v1/posts", map[string]string{"caption": "lost"}, func(a *testAPI) { a.posts.failCreate.Store(true) }},
		{"story", http.MethodPost, "/api/v1/stories", map[string]string{"text": "lost"}, func(a *testAPI) { a.accounts.failMedia.Store(true) }},
		{"profile picture", http.MethodPut, "/api/v1/users/me/profile-picture", nil, func(a *testAPI) { a.accounts.failMedia.Store(true) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAPI(t)
			token, _ := a.register("alice")

			// Sanity check that the route stores the upload when the write succeeds.
			status, _ := a.send(multipartRequest(t, tt.method, tt.path, "image/png", pngBytes(t), tt.fields), token)
			require.Less(t, status, 300)
			require.Equal(t, 1, a.uploadedFiles())

			tt.fail(a)
			status, env := a.send(multipartRequest(t, tt.method, tt.path, "image/png", pngBytes(t), tt.fields), token)
			assert.Equal(t, http.StatusInternalServerError, status)
			assert.False(t, env.Success)
			assert.Equal(t, 1, a.uploadedFiles())
		})
	}
}

func TestStories_FeedShowsFollowedStories(t *testing.T) {
	a := newTestAPI(t)
	alice, _ := a.register("alice")
	bob, bobID := a.register("bob")

	req := multipartRequest(t, http.MethodPost, "/api/v1/stories", "image/png", pngBytes(t), map[string]string{"text": "hello"})
	status, _ := a.send(req, bob)
	require.Equal(t, http.StatusCreated, status)

	status, _ = a.do(http.MethodPost, "/api/v1/users/"+bobID.String()+"/follow", alice, nil)
	require.Equal(t, http.StatusOK, status)

	status, env := a.do(http.MethodGet, "/api/v1/stories/feed", alice, nil)
	require.Equal(t, http.StatusOK, status)
	feed := decodeData[domain.StoryFeed](t, env)
	require.Len(t, feed.Users, 1)
	assert.Equal(t, bobID, feed.Users[0].UserID)
	require.Len(t, feed.Users[0].Stories, 1)
	assert.Equal(t, "hello", feed.Users[0].Stories[0].Text)
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t)

	for _, path := range []string{"/health", "/health/ready", "/health/live"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		a.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pixora_http_requests_total")
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	a := newTestAPI(t)

	status, env := a.do(http.MethodGet, "/api/v1/posts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
}

func TestWebSocket_ReceivesLikeEvents(t *testing.T) {
	a := newTestAPI(t)
	alice, _ := a.register("alice")
	bob, _ := a.register("bob")
	post := a.createPost(alice, "")

	srv := httptest.NewServer(a.handler)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + alice
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Registration with the hub is asynchronous to the upgrade.
	require.Eventually(t, func() bool { return a.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	status, _ := a.do(http.MethodPost, fmt.Sprintf("/api/v1/posts/%s/like", post.ID), bob, nil)
	require.Equal(t, http.StatusOK, status)

	var event struct {
		EventID uuid.UUID               `json:"eventId"`
		Type    string                  `json:"type"`
		Payload domain.LikeEventPayload `json:"payload"`
	}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	// The post-created event may still be in flight; skip to the like.
	for event.Type != domain.EventPostLiked {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &event))
	}
	assert.Equal(t, domain.EventPostLiked, event.Type)
	assert.NotEqual(t, uuid.Nil, event.EventID)
	assert.Equal(t, post.ID, event.Payload.PostID)
	assert.Equal(t, 1, event.Payload.LikesCount)
}
