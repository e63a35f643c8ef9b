package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

func (db *PgCourseChatRepository) CreateAccount(params CreateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (username, email, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $4) RETURNING id, username, email, created_at, updated_at",
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgCourseChatRepository) GetAccountById(accountId int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, created_at, updated_at FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		accountId,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, err
}

func (db *PgCourseChatRepository) GetAccountByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash, created_at, updated_at FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, err
}

const roomColumns = "id, external_id, title, state, seq_id, owner_id, created_at, updated_at"

func scanRoom(row *sql.Row) (Room, error) {
	var room Room
	err := row.Scan(
		&room.Id,
		&room.ExternalId,
		&room.Title,
		&room.State,
		&room.SeqId,
		&room.OwnerId,
		&room.CreatedAt,
		&room.UpdatedAt,
	)

	return room, err
}

func (db *PgCourseChatRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	row := db.conn.QueryRow(
		"INSERT INTO rooms (external_id, title, state, seq_id, owner_id, created_at, updated_at) "+
			"VALUES ($1, $2, 'open', 0, $3, $4, $4) RETURNING "+roomColumns,
		params.ExternalId,
		params.Title,
		params.OwnerId,
		time.Now().UTC(),
	)

	return scanRoom(row)
}

// ListRooms returns every room, open and closed, in creation order. The
// id tiebreak keeps the order stable across calls.
func (db *PgCourseChatRepository) ListRooms() ([]Room, error) {
	rows, err := db.conn.Query(
		"SELECT " + roomColumns + " FROM rooms ORDER BY created_at, id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var room Room
		if err = rows.Scan(
			&room.Id,
			&room.ExternalId,
			&room.Title,
			&room.State,
			&room.SeqId,
			&room.OwnerId,
			&room.CreatedAt,
			&room.UpdatedAt,
		); err != nil {
			return nil, err
		}

		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

func (db *PgCourseChatRepository) GetRoomByExternalId(externalId string) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT "+roomColumns+" FROM rooms WHERE external_id = $1 LIMIT 1",
		externalId,
	)

	return scanRoom(row)
}

// CloseRoom flips an open room to closed. The state predicate makes the
// transition single-shot: a second close, or a close racing another,
// matches no row and returns sql.ErrNoRows.
func (db *PgCourseChatRepository) CloseRoom(externalId string) (Room, error) {
	row := db.conn.QueryRow(
		"UPDATE rooms SET state = 'closed', updated_at = $2 "+
			"WHERE external_id = $1 AND state = 'open' RETURNING "+roomColumns,
		externalId,
		time.Now().UTC(),
	)

	return scanRoom(row)
}

// NextSeqId atomically claims the next message position in a room. The
// update serializes concurrent appends to the same room at the database
// while leaving other rooms untouched, and refuses closed rooms in the
// same statement.
func (db *PgCourseChatRepository) NextSeqId(externalId string) (Room, error) {
	row := db.conn.QueryRow(
		"UPDATE rooms SET seq_id = seq_id + 1, updated_at = $2 "+
			"WHERE external_id = $1 AND state = 'open' RETURNING "+roomColumns,
		externalId,
		time.Now().UTC(),
	)

	return scanRoom(row)
}

func (db *PgCourseChatRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res := tx.QueryRow(
		"INSERT INTO messages (seq_id, room_id, user_id, content, created_at) "+
			"VALUES ($1, $2, $3, $4, $5) RETURNING id, seq_id, room_id, user_id, content, created_at",
		params.SeqId,
		params.RoomId,
		params.UserId,
		params.Content,
		params.CreatedAt,
	)

	var msg Message
	err = res.Scan(
		&msg.Id,
		&msg.SeqId,
		&msg.RoomId,
		&msg.UserId,
		&msg.Content,
		&msg.CreatedAt,
	)
	if err != nil {
		return Message{}, err
	}

	if len(params.AttachmentIds) > 0 {
		rows, linkErr := tx.Query(
			"UPDATE attachments SET message_id = $1 WHERE id = ANY($2) AND message_id IS NULL "+
				"RETURNING id, message_id, owner_id, object_key, file_url, filename, file_type, file_size, created_at",
			msg.Id,
			pq.Array(params.AttachmentIds),
		)
		if linkErr != nil {
			err = linkErr
			return Message{}, err
		}

		msg.Attachments, err = collectAttachments(rows)
		if err != nil {
			return Message{}, err
		}

		if len(msg.Attachments) != len(params.AttachmentIds) {
			err = fmt.Errorf("linked %d of %d attachments", len(msg.Attachments), len(params.AttachmentIds))
			return Message{}, err
		}
	}

	if err = tx.QueryRow(
		"SELECT username FROM accounts WHERE id = $1", params.UserId,
	).Scan(&msg.Username); err != nil {
		return Message{}, err
	}

	if err = tx.Commit(); err != nil {
		return Message{}, err
	}

	return msg, nil
}

// GetMessages returns a room's full history in ascending position order
// with attachments folded in from the joined rows.
func (db *PgCourseChatRepository) GetMessages(roomId int) ([]Message, error) {
	query := `
		SELECT
				m.id,
				m.seq_id,
				m.room_id,
				m.user_id,
				a.username,
				m.content,
				m.created_at,
				att.id,
				att.file_url,
				att.filename,
				att.file_type,
				att.file_size
		FROM messages m
		JOIN accounts a ON m.user_id = a.id
		LEFT JOIN attachments att ON att.message_id = m.id
		WHERE m.room_id = $1
		ORDER BY m.seq_id, att.id;
`

	rows, err := db.conn.Query(query, roomId)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var (
			msg      Message
			attId    sql.NullInt64
			fileUrl  sql.NullString
			filename sql.NullString
			fileType sql.NullString
			fileSize sql.NullInt64
		)

		err := rows.Scan(
			&msg.Id,
			&msg.SeqId,
			&msg.RoomId,
			&msg.UserId,
			&msg.Username,
			&msg.Content,
			&msg.CreatedAt,
			&attId,
			&fileUrl,
			&filename,
			&fileType,
			&fileSize,
		)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		if len(messages) == 0 || messages[len(messages)-1].Id != msg.Id {
			messages = append(messages, msg)
		}

		if attId.Valid {
			last := &messages[len(messages)-1]
			last.Attachments = append(last.Attachments, Attachment{
				Id:       int(attId.Int64),
				FileUrl:  fileUrl.String,
				Filename: filename.String,
				FileType: fileType.String,
				FileSize: fileSize.Int64,
			})
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return messages, nil
}

const attachmentColumns = "id, message_id, owner_id, object_key, file_url, filename, file_type, file_size, created_at"

func collectAttachments(rows *sql.Rows) ([]Attachment, error) {
	defer rows.Close()

	var atts []Attachment
	for rows.Next() {
		var (
			att       Attachment
			messageId sql.NullInt64
		)
		if err := rows.Scan(
			&att.Id,
			&messageId,
			&att.OwnerId,
			&att.ObjectKey,
			&att.FileUrl,
			&att.Filename,
			&att.FileType,
			&att.FileSize,
			&att.CreatedAt,
		); err != nil {
			return nil, err
		}
		att.MessageId = int(messageId.Int64)

		atts = append(atts, att)
	}

	return atts, rows.Err()
}

func (db *PgCourseChatRepository) CreateAttachment(params CreateAttachmentParams) (Attachment, error) {
	row := db.conn.QueryRow(
		"INSERT INTO attachments (owner_id, object_key, file_url, filename, file_type, file_size, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, owner_id, object_key, file_url, filename, file_type, file_size, created_at",
		params.OwnerId,
		params.ObjectKey,
		params.FileUrl,
		params.Filename,
		params.FileType,
		params.FileSize,
		time.Now().UTC(),
	)

	var att Attachment
	err := row.Scan(
		&att.Id,
		&att.OwnerId,
		&att.ObjectKey,
		&att.FileUrl,
		&att.Filename,
		&att.FileType,
		&att.FileSize,
		&att.CreatedAt,
	)

	return att, err
}

// GetStagedAttachments returns the caller's uploaded-but-unlinked
// attachments among ids. Rows already linked to a message or owned by
// someone else are excluded.
func (db *PgCourseChatRepository) GetStagedAttachments(ids []int, ownerId int) ([]Attachment, error) {
	rows, err := db.conn.Query(
		"SELECT "+attachmentColumns+" FROM attachments "+
			"WHERE id = ANY($1) AND owner_id = $2 AND message_id IS NULL ORDER BY id",
		pq.Array(ids),
		ownerId,
	)
	if err != nil {
		return nil, err
	}

	return collectAttachments(rows)
}

// DeleteExpiredAttachments removes staged rows older than olderThan and
// returns them so the caller can delete the stored blobs.
func (db *PgCourseChatRepository) DeleteExpiredAttachments(olderThan time.Time) ([]Attachment, error) {
	rows, err := db.conn.Query(
		"DELETE FROM attachments WHERE message_id IS NULL AND created_at < $1 "+
			"RETURNING "+attachmentColumns,
		olderThan,
	)
	if err != nil {
		return nil, err
	}

	return collectAttachments(rows)
}

const summaryColumns = "s.id, s.room_id, r.external_id, s.room_title, s.participant_count, s.message_count, s.content, s.created_at"

func (db *PgCourseChatRepository) CreateSummary(params CreateSummaryParams) (Summary, error) {
	row := db.conn.QueryRow(
		"INSERT INTO summaries (room_id, room_title, participant_count, message_count, content, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6) "+
			"RETURNING id, room_id, room_title, participant_count, message_count, content, created_at",
		params.RoomId,
		params.RoomTitle,
		params.ParticipantCount,
		params.MessageCount,
		params.Content,
		time.Now().UTC(),
	)

	var s Summary
	err := row.Scan(
		&s.Id,
		&s.RoomId,
		&s.RoomTitle,
		&s.ParticipantCount,
		&s.MessageCount,
		&s.Content,
		&s.CreatedAt,
	)

	return s, err
}

func (db *PgCourseChatRepository) GetSummaryByRoomId(roomId int) (Summary, error) {
	row := db.conn.QueryRow(
		"SELECT "+summaryColumns+" FROM summaries s JOIN rooms r ON s.room_id = r.id "+
			"WHERE s.room_id = $1 LIMIT 1",
		roomId,
	)

	var s Summary
	err := row.Scan(
		&s.Id,
		&s.RoomId,
		&s.RoomExternalId,
		&s.RoomTitle,
		&s.ParticipantCount,
		&s.MessageCount,
		&s.Content,
		&s.CreatedAt,
	)

	return s, err
}

func (db *PgCourseChatRepository) ListSummaries() ([]Summary, error) {
	rows, err := db.conn.Query(
		"SELECT " + summaryColumns + " FROM summaries s JOIN rooms r ON s.room_id = r.id " +
			"ORDER BY s.created_at DESC, s.id DESC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var s Summary
		if err = rows.Scan(
			&s.Id,
			&s.RoomId,
			&s.RoomExternalId,
			&s.RoomTitle,
			&s.ParticipantCount,
			&s.MessageCount,
			&s.Content,
			&s.CreatedAt,
		); err != nil {
			return nil, err
		}

		summaries = append(summaries, s)
	}

	return summaries, rows.Err()
}
