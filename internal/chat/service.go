package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/teris-io/shortid"

	"github.com/paperhub/course-chat/internal/attach"
	"github.com/paperhub/course-chat/internal/database"
	"github.com/paperhub/course-chat/internal/stats"
	"github.com/paperhub/course-chat/internal/summary"
	"github.com/paperhub/course-chat/internal/types"
)

const defaultSummaryTimeout = 60 * time.Second

// Notifier is the push-channel boundary the session controller
// publishes events through. Implementations must not block: message
// durability never waits on fan-out.
type Notifier interface {
	BroadcastRoomCreated(room types.Room)
	BroadcastMessage(roomId string, msg types.Message)
	CloseRoom(roomId string)
}

// Service orchestrates rooms, the message log, attachment admission and
// the end-of-chat summary. Every operation takes the caller's identity
// explicitly; nothing reads ambient session state.
type Service struct {
	log            *log.Logger
	db             database.CourseChatRepository
	admitter       *attach.Admitter
	summarizer     summary.Summarizer
	notifier       Notifier
	stats          stats.StatsProvider
	summaryTimeout time.Duration
}

func NewService(logger *log.Logger, db database.CourseChatRepository, admitter *attach.Admitter,
	summarizer summary.Summarizer, notifier Notifier, sts stats.StatsProvider) *Service {

	sts.RegisterMetric(stats.TotalMessages)
	sts.RegisterMetric(stats.TotalAttachments)

	return &Service{
		log:            logger,
		db:             db,
		admitter:       admitter,
		summarizer:     summarizer,
		notifier:       notifier,
		stats:          sts,
		summaryTimeout: defaultSummaryTimeout,
	}
}

// CreateRoom persists a new open room and announces it to every
// connected client.
func (s *Service) CreateRoom(ctx context.Context, user types.User, title string) (types.Room, error) {
	if strings.TrimSpace(title) == "" {
		return types.Room{}, fmt.Errorf("%w: room title is required", ErrValidation)
	}

	sid, err := shortid.Generate()
	if err != nil {
		return types.Room{}, fmt.Errorf("generate room id: %w", err)
	}

	dbRoom, err := s.db.CreateRoom(database.CreateRoomParams{
		Title:      title,
		ExternalId: sid,
		OwnerId:    user.Id,
	})
	if err != nil {
		return types.Room{}, fmt.Errorf("create room: %w", err)
	}

	room := toRoom(dbRoom)
	s.notifier.BroadcastRoomCreated(room)

	return room, nil
}

// ListRooms returns every room, open and closed, in a stable order.
func (s *Service) ListRooms(ctx context.Context) ([]types.Room, error) {
	dbRooms, err := s.db.ListRooms()
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	rooms := make([]types.Room, len(dbRooms))
	for i, r := range dbRooms {
		rooms[i] = toRoom(r)
	}

	return rooms, nil
}

func (s *Service) GetRoom(ctx context.Context, roomId string) (types.Room, error) {
	dbRoom, err := s.db.GetRoomByExternalId(roomId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Room{}, ErrNotFound
		}
		return types.Room{}, fmt.Errorf("get room: %w", err)
	}

	return toRoom(dbRoom), nil
}

// ListMessages returns a room's full history in position order,
// regardless of whether the room is still open.
func (s *Service) ListMessages(ctx context.Context, roomId string) ([]types.Message, error) {
	dbRoom, err := s.db.GetRoomByExternalId(roomId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get room: %w", err)
	}

	dbMsgs, err := s.db.GetMessages(dbRoom.Id)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}

	msgs := make([]types.Message, len(dbMsgs))
	for i, m := range dbMsgs {
		msgs[i] = toMessage(dbRoom.ExternalId, m)
	}

	return msgs, nil
}

// StageAttachments admits uploads without appending a message, for
// clients that upload first and send the message referencing the
// returned descriptors afterwards.
func (s *Service) StageAttachments(ctx context.Context, user types.User, uploads []attach.Upload) ([]types.Attachment, error) {
	if len(uploads) == 0 {
		return nil, fmt.Errorf("%w: no files submitted", ErrValidation)
	}

	admitted, err := s.admitter.AdmitAll(ctx, user, uploads)
	if err != nil {
		return nil, err
	}

	for range admitted {
		s.stats.Incr(stats.TotalAttachments)
	}

	return admitted, nil
}

// SendMessage runs attachment admission over uploads, claims the next
// position in the room and durably appends the message, then hands it
// to the push channel. Attachment ids in stagedIds must reference the
// caller's previously staged uploads.
func (s *Service) SendMessage(ctx context.Context, user types.User, roomId, content string,
	uploads []attach.Upload, stagedIds []int) (types.Message, error) {

	if strings.TrimSpace(content) == "" && len(uploads) == 0 && len(stagedIds) == 0 {
		return types.Message{}, fmt.Errorf("%w: message needs content or attachments", ErrValidation)
	}

	attachmentIds := make([]int, 0, len(uploads)+len(stagedIds))

	if len(stagedIds) > 0 {
		staged, err := s.db.GetStagedAttachments(stagedIds, user.Id)
		if err != nil {
			return types.Message{}, fmt.Errorf("resolve staged attachments: %w", err)
		}
		if len(staged) != len(stagedIds) {
			return types.Message{}, fmt.Errorf("%w: unknown attachment reference", ErrValidation)
		}
		for _, att := range staged {
			attachmentIds = append(attachmentIds, att.Id)
		}
	}

	if len(uploads) > 0 {
		admitted, err := s.admitter.AdmitAll(ctx, user, uploads)
		if err != nil {
			return types.Message{}, err
		}
		for _, att := range admitted {
			attachmentIds = append(attachmentIds, att.Id)
			s.stats.Incr(stats.TotalAttachments)
		}
	}

	// claiming the position also verifies the room exists and is open
	dbRoom, err := s.db.NextSeqId(roomId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Message{}, s.classifyRoom(roomId)
		}
		return types.Message{}, fmt.Errorf("next seq id: %w", err)
	}

	dbMsg, err := s.db.CreateMessage(database.CreateMessageParams{
		RoomId:        dbRoom.Id,
		SeqId:         dbRoom.SeqId,
		UserId:        user.Id,
		Content:       content,
		AttachmentIds: attachmentIds,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return types.Message{}, fmt.Errorf("create message: %w", err)
	}

	msg := toMessage(roomId, dbMsg)
	s.stats.Incr(stats.TotalMessages)

	// append success is the durability guarantee; fan-out is
	// best-effort and never blocks or fails the append
	s.notifier.BroadcastMessage(roomId, msg)

	return msg, nil
}

// EndChat closes the room, evicts its live subscribers, and generates
// and persists the summary. A summarizer failure leaves the room closed
// and is reported distinctly so the client can retry the summary alone.
func (s *Service) EndChat(ctx context.Context, user types.User, roomId string) (types.Summary, error) {
	dbRoom, err := s.db.CloseRoom(roomId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Summary{}, s.classifyRoom(roomId)
		}
		return types.Summary{}, fmt.Errorf("close room: %w", err)
	}

	s.notifier.CloseRoom(roomId)

	return s.generateSummary(ctx, dbRoom)
}

// RetrySummary re-runs summary generation for a room that is already
// closed, without repeating the close. Returns the existing summary if
// one was already persisted.
func (s *Service) RetrySummary(ctx context.Context, user types.User, roomId string) (types.Summary, error) {
	dbRoom, err := s.db.GetRoomByExternalId(roomId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Summary{}, ErrNotFound
		}
		return types.Summary{}, fmt.Errorf("get room: %w", err)
	}

	if types.RoomState(dbRoom.State) != types.RoomClosed {
		return types.Summary{}, fmt.Errorf("%w: room is still open", ErrConflict)
	}

	existing, err := s.db.GetSummaryByRoomId(dbRoom.Id)
	if err == nil {
		existing.RoomExternalId = dbRoom.ExternalId
		return toSummary(existing), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return types.Summary{}, fmt.Errorf("get summary: %w", err)
	}

	return s.generateSummary(ctx, dbRoom)
}

func (s *Service) ListSummaries(ctx context.Context) ([]types.Summary, error) {
	dbSummaries, err := s.db.ListSummaries()
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}

	summaries := make([]types.Summary, len(dbSummaries))
	for i, sum := range dbSummaries {
		summaries[i] = toSummary(sum)
	}

	return summaries, nil
}

func (s *Service) generateSummary(ctx context.Context, dbRoom database.Room) (types.Summary, error) {
	dbMsgs, err := s.db.GetMessages(dbRoom.Id)
	if err != nil {
		return types.Summary{}, fmt.Errorf("get messages: %w", err)
	}

	transcript := make([]types.Message, len(dbMsgs))
	seen := make(map[int]struct{})
	var participants []types.User
	for i, m := range dbMsgs {
		transcript[i] = toMessage(dbRoom.ExternalId, m)
		if _, ok := seen[m.UserId]; !ok {
			seen[m.UserId] = struct{}{}
			participants = append(participants, types.User{Id: m.UserId, Username: m.Username})
		}
	}

	sumCtx, cancel := context.WithTimeout(ctx, s.summaryTimeout)
	defer cancel()

	res, err := s.summarizer.Summarize(sumCtx, transcript, participants)
	if err != nil {
		return types.Summary{}, fmt.Errorf("%w: %v", ErrSummarization, err)
	}

	dbSummary, err := s.db.CreateSummary(database.CreateSummaryParams{
		RoomId:           dbRoom.Id,
		RoomTitle:        dbRoom.Title,
		ParticipantCount: res.ParticipantCount,
		MessageCount:     res.MessageCount,
		Content:          res.Text,
	})
	if err != nil {
		return types.Summary{}, fmt.Errorf("%w: persist summary: %v", ErrSummarization, err)
	}
	dbSummary.RoomExternalId = dbRoom.ExternalId

	return toSummary(dbSummary), nil
}

// classifyRoom resolves why a state-guarded room update matched no row.
func (s *Service) classifyRoom(roomId string) error {
	dbRoom, err := s.db.GetRoomByExternalId(roomId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("get room: %w", err)
	}

	if types.RoomState(dbRoom.State) == types.RoomClosed {
		return fmt.Errorf("%w: room is closed", ErrConflict)
	}

	return ErrNotFound
}

func toRoom(r database.Room) types.Room {
	return types.Room{
		Id:         r.Id,
		ExternalId: r.ExternalId,
		Title:      r.Title,
		State:      types.RoomState(r.State),
		SeqId:      r.SeqId,
		OwnerId:    r.OwnerId,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func toMessage(roomExternalId string, m database.Message) types.Message {
	msg := types.Message{
		Id:     m.Id,
		SeqId:  m.SeqId,
		RoomId: roomExternalId,
		Sender: types.User{
			Id:       m.UserId,
			Username: m.Username,
		},
		Content:   m.Content,
		Timestamp: m.CreatedAt,
	}

	for _, att := range m.Attachments {
		msg.Attachments = append(msg.Attachments, types.Attachment{
			Id:       att.Id,
			FileUrl:  att.FileUrl,
			Filename: att.Filename,
			FileType: att.FileType,
			FileSize: att.FileSize,
		})
	}

	return msg
}

func toSummary(s database.Summary) types.Summary {
	return types.Summary{
		Id:               s.Id,
		RoomId:           s.RoomExternalId,
		RoomTitle:        s.RoomTitle,
		ParticipantCount: s.ParticipantCount,
		MessageCount:     s.MessageCount,
		Summary:          s.Content,
		Date:             s.CreatedAt,
	}
}
