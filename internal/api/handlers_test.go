package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/paperhub/course-chat/internal/attach"
	"github.com/paperhub/course-chat/internal/chat"
	"github.com/paperhub/course-chat/internal/config"
	"github.com/paperhub/course-chat/internal/database"
	"github.com/paperhub/course-chat/internal/stats"
	"github.com/paperhub/course-chat/internal/storage"
	"github.com/paperhub/course-chat/internal/summary"
	"github.com/paperhub/course-chat/internal/testutil"
	"github.com/paperhub/course-chat/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// noopNotifier satisfies the push-channel boundary in handler tests
// where fan-out is not under test.
type noopNotifier struct{}

func (noopNotifier) BroadcastRoomCreated(types.Room) {}

func (noopNotifier) BroadcastMessage(string, types.Message) {}

func (noopNotifier) CloseRoom(string) {}

type testApp struct {
	app        *CourseChatApp
	repo       *database.MockCourseChatRepository
	store      *storage.MockObjectStore
	summarizer *summary.MockSummarizer
	stats      *stats.MockStatsUpdater
}

var testDbUser = database.User{
	Id:           1,
	Username:     "instructor",
	EmailAddress: "instructor@example.com",
	PasswordHash: "hashedpassword",
	CreatedAt:    time.Now().UTC(),
	UpdatedAt:    time.Now().UTC(),
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	repo := &database.MockCourseChatRepository{}
	store := &storage.MockObjectStore{}
	summarizer := &summary.MockSummarizer{}
	mockStats := &stats.MockStatsUpdater{}

	mockStats.On("RegisterMetric", mock.Anything).Return()
	mockStats.On("Incr", mock.Anything).Return()

	logger := testutil.TestLogger(t)
	admitter := attach.NewAdmitter(logger, repo, store)
	chatSvc := chat.NewService(logger, repo, admitter, summarizer, noopNotifier{}, mockStats)

	app := NewCourseChatApp(http.NewServeMux(), logger, nil, repo, chatSvc, &config.Config{
		SigningKey: []byte("test-signing-key"),
	})

	t.Cleanup(func() {
		repo.AssertExpectations(t)
		store.AssertExpectations(t)
		summarizer.AssertExpectations(t)
	})

	return &testApp{
		app:        app,
		repo:       repo,
		store:      store,
		summarizer: summarizer,
		stats:      mockStats,
	}
}

// authedRequest builds a request carrying the test user's identity the
// way the auth middleware would.
func (ta *testApp) authedRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	ta.repo.On("GetAccountById", testDbUser.Id).Return(testDbUser, nil).Once()
	return req.WithContext(WithUserId(req.Context(), testDbUser.Id))
}

func decodeApiError(t *testing.T, rr *httptest.ResponseRecorder) ApiError {
	t.Helper()
	var apiErr ApiError
	err := json.NewDecoder(rr.Body).Decode(&apiErr)
	assert.NoError(t, err, "failed to decode error response")
	return apiErr
}

func Test_healthCheck(t *testing.T) {
	tcases := []struct {
		name         string
		mockErr      error
		expectedCode int
	}{
		{
			name:         "successful health check",
			expectedCode: http.StatusOK,
		},
		{
			name:         "failed health check",
			mockErr:      errors.New("db error"),
			expectedCode: http.StatusServiceUnavailable,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			ta := newTestApp(t)
			ta.repo.On("Ping").Return(tc.mockErr).Once()

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			ta.app.healthCheck(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code)
		})
	}
}

func TestCreateRoomHandler(t *testing.T) {
	t.Run("creates a room", func(t *testing.T) {
		ta := newTestApp(t)

		dbRoom := database.Room{
			Id:         1,
			ExternalId: "abc123",
			Title:      "Office Hours",
			State:      string(types.RoomOpen),
			OwnerId:    testDbUser.Id,
		}
		ta.repo.On("CreateRoom", mock.MatchedBy(func(p database.CreateRoomParams) bool {
			return p.Title == dbRoom.Title && p.OwnerId == testDbUser.Id
		})).Return(dbRoom, nil).Once()

		body, _ := json.Marshal(CreateRoomRequest{Title: "Office Hours"})
		req := ta.authedRequest(http.MethodPost, "/api/chat/rooms", bytes.NewReader(body))
		rr := httptest.NewRecorder()
		ta.app.createRoom(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)

		var room types.Room
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&room))
		assert.Equal(t, dbRoom.ExternalId, room.ExternalId)
		assert.Equal(t, types.RoomOpen, room.State)
	})

	t.Run("blank title is a bad request", func(t *testing.T) {
		ta := newTestApp(t)

		body, _ := json.Marshal(CreateRoomRequest{Title: "  "})
		req := ta.authedRequest(http.MethodPost, "/api/chat/rooms", bytes.NewReader(body))
		rr := httptest.NewRecorder()
		ta.app.createRoom(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("unauthenticated request is rejected", func(t *testing.T) {
		ta := newTestApp(t)

		body, _ := json.Marshal(CreateRoomRequest{Title: "Office Hours"})
		req := httptest.NewRequest(http.MethodPost, "/api/chat/rooms", bytes.NewReader(body))
		rr := httptest.NewRecorder()
		ta.app.createRoom(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestGetRoomsHandler(t *testing.T) {
	ta := newTestApp(t)

	ta.repo.On("ListRooms").Return([]database.Room{
		{Id: 1, ExternalId: "a", Title: "First", State: string(types.RoomOpen)},
		{Id: 2, ExternalId: "b", Title: "Second", State: string(types.RoomClosed)},
	}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/chat/rooms", nil)
	rr := httptest.NewRecorder()
	ta.app.getRooms(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var rooms []types.Room
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&rooms))
	assert.Len(t, rooms, 2)
	assert.Equal(t, types.RoomClosed, rooms[1].State)
}

func TestGetMessagesHandler(t *testing.T) {
	t.Run("returns room history", func(t *testing.T) {
		ta := newTestApp(t)

		room := database.Room{Id: 1, ExternalId: "abc123", State: string(types.RoomOpen)}
		ta.repo.On("GetRoomByExternalId", room.ExternalId).Return(room, nil).Once()
		ta.repo.On("GetMessages", room.Id).Return([]database.Message{
			{Id: 1, SeqId: 1, UserId: 1, Username: "instructor", Content: "hello"},
		}, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/api/chat/rooms/abc123/messages", nil)
		req.SetPathValue("id", room.ExternalId)
		rr := httptest.NewRecorder()
		ta.app.getMessages(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var msgs []types.Message
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&msgs))
		assert.Len(t, msgs, 1)
		assert.Equal(t, "hello", msgs[0].Content)
	})

	t.Run("unknown room is 404", func(t *testing.T) {
		ta := newTestApp(t)

		ta.repo.On("GetRoomByExternalId", "missing").Return(database.Room{}, sql.ErrNoRows).Once()

		req := httptest.NewRequest(http.MethodGet, "/api/chat/rooms/missing/messages", nil)
		req.SetPathValue("id", "missing")
		rr := httptest.NewRecorder()
		ta.app.getMessages(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestSendMessageHandler(t *testing.T) {
	openRoom := database.Room{
		Id:         1,
		ExternalId: "abc123",
		State:      string(types.RoomOpen),
		SeqId:      3,
	}

	t.Run("appends a text message", func(t *testing.T) {
		ta := newTestApp(t)

		ta.repo.On("NextSeqId", openRoom.ExternalId).Return(openRoom, nil).Once()
		ta.repo.On("CreateMessage", mock.MatchedBy(func(p database.CreateMessageParams) bool {
			return p.Content == "hello" && p.SeqId == openRoom.SeqId
		})).Return(database.Message{
			Id: 10, SeqId: openRoom.SeqId, RoomId: openRoom.Id,
			UserId: testDbUser.Id, Username: testDbUser.Username, Content: "hello",
		}, nil).Once()

		body, _ := json.Marshal(SendMessageRequest{Content: "hello"})
		req := ta.authedRequest(http.MethodPost, "/api/chat/rooms/abc123/messages", bytes.NewReader(body))
		req.SetPathValue("id", openRoom.ExternalId)
		rr := httptest.NewRecorder()
		ta.app.sendMessage(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)

		var msg types.Message
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&msg))
		assert.Equal(t, openRoom.SeqId, msg.SeqId)
		assert.Equal(t, "hello", msg.Content)
	})

	t.Run("empty message is a bad request", func(t *testing.T) {
		ta := newTestApp(t)

		body, _ := json.Marshal(SendMessageRequest{Content: "   "})
		req := ta.authedRequest(http.MethodPost, "/api/chat/rooms/abc123/messages", bytes.NewReader(body))
		req.SetPathValue("id", openRoom.ExternalId)
		rr := httptest.NewRecorder()
		ta.app.sendMessage(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("closed room is a conflict", func(t *testing.T) {
		ta := newTestApp(t)

		closed := openRoom
		closed.State = string(types.RoomClosed)
		ta.repo.On("NextSeqId", openRoom.ExternalId).Return(database.Room{}, sql.ErrNoRows).Once()
		ta.repo.On("GetRoomByExternalId", openRoom.ExternalId).Return(closed, nil).Once()

		body, _ := json.Marshal(SendMessageRequest{Content: "too late"})
		req := ta.authedRequest(http.MethodPost, "/api/chat/rooms/abc123/messages", bytes.NewReader(body))
		req.SetPathValue("id", openRoom.ExternalId)
		rr := httptest.NewRecorder()
		ta.app.sendMessage(rr, req)

		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("multipart message with a file", func(t *testing.T) {
		ta := newTestApp(t)

		ta.store.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything, "application/pdf").
			Return("http://files/notes.pdf", nil).Once()
		ta.repo.On("CreateAttachment", mock.MatchedBy(func(p database.CreateAttachmentParams) bool {
			return p.Filename == "notes.pdf" && p.OwnerId == testDbUser.Id
		})).Return(database.Attachment{Id: 7, Filename: "notes.pdf"}, nil).Once()
		ta.repo.On("NextSeqId", openRoom.ExternalId).Return(openRoom, nil).Once()
		ta.repo.On("CreateMessage", mock.MatchedBy(func(p database.CreateMessageParams) bool {
			return p.Content == "see attached" && len(p.AttachmentIds) == 1 && p.AttachmentIds[0] == 7
		})).Return(database.Message{
			Id: 11, SeqId: openRoom.SeqId, RoomId: openRoom.Id, UserId: testDbUser.Id,
		}, nil).Once()

		body, contentType := multipartBody(t, "see attached", map[string][2]string{
			"notes.pdf": {"application/pdf", "pdf bytes"},
		})
		req := ta.authedRequest(http.MethodPost, "/api/chat/rooms/abc123/messages", body)
		req.Header.Set("Content-Type", contentType)
		req.SetPathValue("id", openRoom.ExternalId)
		rr := httptest.NewRecorder()
		ta.app.sendMessage(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)
	})
}

func TestUploadHandler(t *testing.T) {
	t.Run("stages files and returns descriptors", func(t *testing.T) {
		ta := newTestApp(t)

		ta.store.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything, "image/png").
			Return("http://files/photo.png", nil).Once()
		ta.repo.On("CreateAttachment", mock.Anything).
			Return(database.Attachment{Id: 4, Filename: "photo.png", FileUrl: "http://files/photo.png"}, nil).Once()

		body, contentType := multipartBody(t, "", map[string][2]string{
			"photo.png": {"image/png", "png bytes"},
		})
		req := ta.authedRequest(http.MethodPost, "/api/chat/upload", body)
		req.Header.Set("Content-Type", contentType)
		rr := httptest.NewRecorder()
		ta.app.upload(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)

		var attachments []types.Attachment
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&attachments))
		assert.Len(t, attachments, 1)
		assert.Equal(t, 4, attachments[0].Id)
		assert.Equal(t, "http://files/photo.png", attachments[0].FileUrl)
	})

	t.Run("disallowed type reports the file", func(t *testing.T) {
		ta := newTestApp(t)

		body, contentType := multipartBody(t, "", map[string][2]string{
			"setup.exe": {"application/octet-stream", "MZ"},
		})
		req := ta.authedRequest(http.MethodPost, "/api/chat/upload", body)
		req.Header.Set("Content-Type", contentType)
		rr := httptest.NewRecorder()
		ta.app.upload(rr, req)

		assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code)

		apiErr := decodeApiError(t, rr)
		assert.Len(t, apiErr.Files, 1, "expected the rejected file named")
		assert.Equal(t, "setup.exe", apiErr.Files[0].Filename)
		ta.store.AssertNotCalled(t, "Put")
	})

	t.Run("no files is a bad request", func(t *testing.T) {
		ta := newTestApp(t)

		body, contentType := multipartBody(t, "", nil)
		req := ta.authedRequest(http.MethodPost, "/api/chat/upload", body)
		req.Header.Set("Content-Type", contentType)
		rr := httptest.NewRecorder()
		ta.app.upload(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestEndChatHandler(t *testing.T) {
	closedRoom := database.Room{
		Id:         1,
		ExternalId: "abc123",
		Title:      "Office Hours",
		State:      string(types.RoomClosed),
	}

	t.Run("closes and returns the summary", func(t *testing.T) {
		ta := newTestApp(t)

		ta.repo.On("CloseRoom", closedRoom.ExternalId).Return(closedRoom, nil).Once()
		ta.repo.On("GetMessages", closedRoom.Id).Return([]database.Message{
			{Id: 1, SeqId: 1, UserId: 1, Username: "instructor", Content: "welcome"},
		}, nil).Once()
		ta.summarizer.On("Summarize", mock.Anything, mock.Anything, mock.Anything).
			Return(summary.Result{Text: "short session", ParticipantCount: 1, MessageCount: 1}, nil).Once()
		ta.repo.On("CreateSummary", mock.Anything).Return(database.Summary{
			Id:               1,
			RoomId:           closedRoom.Id,
			RoomTitle:        closedRoom.Title,
			ParticipantCount: 1,
			MessageCount:     1,
			Content:          "short session",
		}, nil).Once()

		req := ta.authedRequest(http.MethodPost, "/api/chat/rooms/abc123/end", nil)
		req.SetPathValue("id", closedRoom.ExternalId)
		rr := httptest.NewRecorder()
		ta.app.endChat(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var sum types.Summary
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&sum))
		assert.Equal(t, "short session", sum.Summary)
		assert.Equal(t, closedRoom.Title, sum.RoomTitle)
	})

	t.Run("already closed is a conflict", func(t *testing.T) {
		ta := newTestApp(t)

		ta.repo.On("CloseRoom", closedRoom.ExternalId).Return(database.Room{}, sql.ErrNoRows).Once()
		ta.repo.On("GetRoomByExternalId", closedRoom.ExternalId).Return(closedRoom, nil).Once()

		req := ta.authedRequest(http.MethodPost, "/api/chat/rooms/abc123/end", nil)
		req.SetPathValue("id", closedRoom.ExternalId)
		rr := httptest.NewRecorder()
		ta.app.endChat(rr, req)

		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("summarizer failure is a bad gateway", func(t *testing.T) {
		ta := newTestApp(t)

		ta.repo.On("CloseRoom", closedRoom.ExternalId).Return(closedRoom, nil).Once()
		ta.repo.On("GetMessages", closedRoom.Id).Return([]database.Message{}, nil).Once()
		ta.summarizer.On("Summarize", mock.Anything, mock.Anything, mock.Anything).
			Return(summary.Result{}, errors.New("model unavailable")).Once()

		req := ta.authedRequest(http.MethodPost, "/api/chat/rooms/abc123/end", nil)
		req.SetPathValue("id", closedRoom.ExternalId)
		rr := httptest.NewRecorder()
		ta.app.endChat(rr, req)

		assert.Equal(t, http.StatusBadGateway, rr.Code)
	})
}

func TestListSummariesHandler(t *testing.T) {
	ta := newTestApp(t)

	ta.repo.On("ListSummaries").Return([]database.Summary{
		{Id: 1, RoomExternalId: "a", RoomTitle: "First", Content: "summary one"},
		{Id: 2, RoomExternalId: "b", RoomTitle: "Second", Content: "summary two"},
	}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/chat/summaries", nil)
	rr := httptest.NewRecorder()
	ta.app.listSummaries(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var summaries []types.Summary
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&summaries))
	assert.Len(t, summaries, 2)
	assert.Equal(t, "summary one", summaries[0].Summary)
}

func TestRetrySummaryHandler(t *testing.T) {
	ta := newTestApp(t)

	closedRoom := database.Room{
		Id:         1,
		ExternalId: "abc123",
		State:      string(types.RoomClosed),
	}
	ta.repo.On("GetRoomByExternalId", closedRoom.ExternalId).Return(closedRoom, nil).Once()
	ta.repo.On("GetSummaryByRoomId", closedRoom.Id).Return(database.Summary{
		Id:      1,
		RoomId:  closedRoom.Id,
		Content: "already summarized",
	}, nil).Once()

	req := ta.authedRequest(http.MethodPost, "/api/chat/rooms/abc123/summary/retry", nil)
	req.SetPathValue("id", closedRoom.ExternalId)
	rr := httptest.NewRecorder()
	ta.app.retrySummary(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var sum types.Summary
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&sum))
	assert.Equal(t, "already summarized", sum.Summary)
}

func TestLoginHandler(t *testing.T) {
	hash, err := hashPassword("password")
	assert.NoError(t, err)

	dbUser := testDbUser
	dbUser.PasswordHash = hash

	t.Run("issues a token for valid credentials", func(t *testing.T) {
		ta := newTestApp(t)

		ta.repo.On("GetAccountByEmail", dbUser.EmailAddress).Return(dbUser, nil).Once()

		body, _ := json.Marshal(LoginRequest{Email: dbUser.EmailAddress, Password: "password"})
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
		rr := httptest.NewRecorder()
		ta.app.login(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var resp LoginResponse
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.NotEmpty(t, resp.Token, "expected a bearer token")
		assert.Equal(t, dbUser.Id, resp.User.Id)

		userId, err := ta.app.extractUserIdFromToken(resp.Token)
		assert.NoError(t, err, "expected the issued token to verify")
		assert.Equal(t, dbUser.Id, userId)
	})

	t.Run("wrong password is unauthorized", func(t *testing.T) {
		ta := newTestApp(t)

		ta.repo.On("GetAccountByEmail", dbUser.EmailAddress).Return(dbUser, nil).Once()

		body, _ := json.Marshal(LoginRequest{Email: dbUser.EmailAddress, Password: "wrong"})
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
		rr := httptest.NewRecorder()
		ta.app.login(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("unknown account is unauthorized", func(t *testing.T) {
		ta := newTestApp(t)

		ta.repo.On("GetAccountByEmail", "nobody@example.com").Return(database.User{}, sql.ErrNoRows).Once()

		body, _ := json.Marshal(LoginRequest{Email: "nobody@example.com", Password: "password"})
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
		rr := httptest.NewRecorder()
		ta.app.login(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestCreateAccountHandler(t *testing.T) {
	t.Run("creates an account", func(t *testing.T) {
		ta := newTestApp(t)

		ta.repo.On("CreateAccount", mock.MatchedBy(func(p database.CreateAccountParams) bool {
			return p.Username == "newuser" && p.EmailAddress == "newuser@example.com" &&
				verifyPassword(p.PasswordHash, "password")
		})).Return(database.User{
			Id:           2,
			Username:     "newuser",
			EmailAddress: "newuser@example.com",
		}, nil).Once()

		body, _ := json.Marshal(RegisterRequest{
			Username: "newuser",
			Email:    "newuser@example.com",
			Password: "password",
		})
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewReader(body))
		rr := httptest.NewRecorder()
		ta.app.createAccount(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)

		var user types.User
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&user))
		assert.Equal(t, 2, user.Id)
		assert.Equal(t, "newuser", user.Username)
	})

	t.Run("missing fields are a bad request", func(t *testing.T) {
		ta := newTestApp(t)

		body, _ := json.Marshal(RegisterRequest{Username: "newuser"})
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewReader(body))
		rr := httptest.NewRecorder()
		ta.app.createAccount(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		ta.repo.AssertNotCalled(t, "CreateAccount")
	})
}

// multipartBody builds a multipart form with an optional content field
// and named files as (contentType, data) pairs.
func multipartBody(t *testing.T, content string, files map[string][2]string) (*bytes.Buffer, string) {
	t.Helper()

	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	if content != "" {
		assert.NoError(t, w.WriteField("content", content))
	}

	for name, file := range files {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", `form-data; name="files"; filename="`+name+`"`)
		hdr.Set("Content-Type", file[0])
		part, err := w.CreatePart(hdr)
		assert.NoError(t, err)
		_, err = io.WriteString(part, file[1])
		assert.NoError(t, err)
	}

	assert.NoError(t, w.Close())
	return buf, w.FormDataContentType()
}
