package database

import "time"

type CourseChatRepository interface {
	Ping() error
	CreateAccount(params CreateAccountParams) (User, error)
	GetAccountById(accountId int) (User, error)
	GetAccountByEmail(email string) (User, error)
	CreateRoom(params CreateRoomParams) (Room, error)
	ListRooms() ([]Room, error)
	GetRoomByExternalId(externalId string) (Room, error)
	CloseRoom(externalId string) (Room, error)
	NextSeqId(externalId string) (Room, error)
	CreateMessage(params CreateMessageParams) (Message, error)
	GetMessages(roomId int) ([]Message, error)
	CreateAttachment(params CreateAttachmentParams) (Attachment, error)
	GetStagedAttachments(ids []int, ownerId int) ([]Attachment, error)
	DeleteExpiredAttachments(olderThan time.Time) ([]Attachment, error)
	CreateSummary(params CreateSummaryParams) (Summary, error)
	GetSummaryByRoomId(roomId int) (Summary, error)
	ListSummaries() ([]Summary, error)
}
