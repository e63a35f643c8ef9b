package database

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type MockCourseChatRepository struct {
	mock.Mock
}

func (m *MockCourseChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockCourseChatRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockCourseChatRepository) GetAccountById(accountId int) (User, error) {
	args := m.Called(accountId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockCourseChatRepository) GetAccountByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockCourseChatRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockCourseChatRepository) ListRooms() ([]Room, error) {
	args := m.Called()
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockCourseChatRepository) GetRoomByExternalId(externalId string) (Room, error) {
	args := m.Called(externalId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockCourseChatRepository) CloseRoom(externalId string) (Room, error) {
	args := m.Called(externalId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockCourseChatRepository) NextSeqId(externalId string) (Room, error) {
	args := m.Called(externalId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockCourseChatRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockCourseChatRepository) GetMessages(roomId int) ([]Message, error) {
	args := m.Called(roomId)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockCourseChatRepository) CreateAttachment(params CreateAttachmentParams) (Attachment, error) {
	args := m.Called(params)
	return args.Get(0).(Attachment), args.Error(1)
}
func (m *MockCourseChatRepository) GetStagedAttachments(ids []int, ownerId int) ([]Attachment, error) {
	args := m.Called(ids, ownerId)
	return args.Get(0).([]Attachment), args.Error(1)
}
func (m *MockCourseChatRepository) DeleteExpiredAttachments(olderThan time.Time) ([]Attachment, error) {
	args := m.Called(olderThan)
	return args.Get(0).([]Attachment), args.Error(1)
}
func (m *MockCourseChatRepository) CreateSummary(params CreateSummaryParams) (Summary, error) {
	args := m.Called(params)
	return args.Get(0).(Summary), args.Error(1)
}
func (m *MockCourseChatRepository) GetSummaryByRoomId(roomId int) (Summary, error) {
	args := m.Called(roomId)
	return args.Get(0).(Summary), args.Error(1)
}
func (m *MockCourseChatRepository) ListSummaries() ([]Summary, error) {
	args := m.Called()
	return args.Get(0).([]Summary), args.Error(1)
}
