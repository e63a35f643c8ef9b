package types

import (
	"time"
)

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	Password     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// RoomState is the lifecycle state of a room. A room transitions
// open -> closed exactly once and never back.
type RoomState string

const (
	RoomOpen   RoomState = "open"
	RoomClosed RoomState = "closed"
)

type Room struct {
	Id         int       `json:"id"`
	ExternalId string    `json:"external_id"`
	Title      string    `json:"title"`
	State      RoomState `json:"state"`
	SeqId      int       `json:"seq_id"`
	OwnerId    int       `json:"owner_id"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

type Message struct {
	Id          int          `json:"id"`
	SeqId       int          `json:"seq_id"`
	RoomId      string       `json:"room_id"`
	Sender      User         `json:"sender"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// Attachment describes a stored file referenced by a message. The URL
// points at object storage and is readable by clients directly.
type Attachment struct {
	Id       int    `json:"id"`
	FileUrl  string `json:"file_url"`
	Filename string `json:"filename"`
	FileType string `json:"file_type"`
	FileSize int64  `json:"file_size"`
}

// Summary is the persisted digest of a closed room. The room title is
// copied at generation time so the summary renders after live chat
// state is cleaned up.
type Summary struct {
	Id               int       `json:"id"`
	RoomId           string    `json:"room_id"`
	RoomTitle        string    `json:"room_title"`
	ParticipantCount int       `json:"participant_count"`
	MessageCount     int       `json:"message_count"`
	Summary          string    `json:"summary"`
	Date             time.Time `json:"date"`
}
