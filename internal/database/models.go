package database

import "time"

type Room struct {
	Id         int
	ExternalId string
	Title      string
	State      string
	SeqId      int
	OwnerId    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type User struct {
	Id           int
	Username     string
	EmailAddress string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Message struct {
	Id          int
	SeqId       int
	RoomId      int
	UserId      int
	Username    string
	Content     string
	CreatedAt   time.Time
	Attachments []Attachment
}

type Attachment struct {
	Id        int
	MessageId int
	OwnerId   int
	ObjectKey string
	FileUrl   string
	Filename  string
	FileType  string
	FileSize  int64
	CreatedAt time.Time
}

type Summary struct {
	Id               int
	RoomId           int
	RoomExternalId   string
	RoomTitle        string
	ParticipantCount int
	MessageCount     int
	Content          string
	CreatedAt        time.Time
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
}

type CreateRoomParams struct {
	Title      string
	ExternalId string
	OwnerId    int
}

type CreateMessageParams struct {
	RoomId        int
	SeqId         int
	UserId        int
	Content       string
	AttachmentIds []int
	CreatedAt     time.Time
}

type CreateAttachmentParams struct {
	OwnerId   int
	ObjectKey string
	FileUrl   string
	Filename  string
	FileType  string
	FileSize  int64
}

type CreateSummaryParams struct {
	RoomId           int
	RoomTitle        string
	ParticipantCount int
	MessageCount     int
	Content          string
}
