package api

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/paperhub/course-chat/internal/attach"
	"github.com/paperhub/course-chat/internal/server"
)

// maxUploadMemory bounds how much of a multipart body is buffered in
// memory before spilling to disk.
const maxUploadMemory = 8 << 20

type CreateRoomRequest struct {
	Title string `json:"title"`
}

type SendMessageRequest struct {
	Content       string `json:"content"`
	AttachmentIds []int  `json:"attachment_ids"`
}

func (s *CourseChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *CourseChatApp) writeDomainError(w http.ResponseWriter, err error) {
	errResp := NewDomainError(err)
	if errResp.StatusCode >= http.StatusInternalServerError {
		s.log.Println("request failed:", err)
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *CourseChatApp) createRoom(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.chat.CreateRoom(r.Context(), user, req.Title)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, room)
}

func (s *CourseChatApp) getRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.chat.ListRooms(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, rooms)
}

func (s *CourseChatApp) getMessages(w http.ResponseWriter, r *http.Request) {
	roomId := r.PathValue("id")

	msgs, err := s.chat.ListMessages(r.Context(), roomId)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, msgs)
}

// sendMessage appends a message to a room. Accepts either a JSON body
// referencing previously staged attachments or a multipart form
// carrying the files inline.
func (s *CourseChatApp) sendMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	roomId := r.PathValue("id")

	var req SendMessageRequest
	var uploads []attach.Upload

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		req.Content = r.FormValue("content")
		for _, idStr := range r.MultipartForm.Value["attachment_ids"] {
			id, err := strconv.Atoi(idStr)
			if err != nil {
				errResp := NewBadRequestError()
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}
			req.AttachmentIds = append(req.AttachmentIds, id)
		}

		var err error
		uploads, err = readUploads(r.MultipartForm.File["files"])
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	} else {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	msg, err := s.chat.SendMessage(r.Context(), user, roomId, req.Content, uploads, req.AttachmentIds)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, msg)
}

// upload stages attachments ahead of the message that will carry them.
func (s *CourseChatApp) upload(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	uploads, err := readUploads(r.MultipartForm.File["files"])
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	attachments, err := s.chat.StageAttachments(r.Context(), user, uploads)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, attachments)
}

func (s *CourseChatApp) endChat(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	roomId := r.PathValue("id")

	sum, err := s.chat.EndChat(r.Context(), user, roomId)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, sum)
}

func (s *CourseChatApp) retrySummary(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	roomId := r.PathValue("id")

	sum, err := s.chat.RetrySummary(r.Context(), user, roomId)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, sum)
}

func (s *CourseChatApp) listSummaries(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.chat.ListSummaries(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, summaries)
}

func (s *CourseChatApp) healthCheck(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Println("health check:", err)
		errResp := NewServiceUnavailableError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *CourseChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(user, conn, s.cs, s.log)

	s.cs.RegisterClient(client)
	go client.Write()
	go client.Read()
}

// readUploads drains multipart file parts into admission uploads.
// Size checks happen during admission, not here, so oversized files
// get a per-file report instead of a blanket request error.
func readUploads(headers []*multipart.FileHeader) ([]attach.Upload, error) {
	var uploads []attach.Upload
	for _, hdr := range headers {
		f, err := hdr.Open()
		if err != nil {
			return nil, err
		}

		data, err := io.ReadAll(io.LimitReader(f, attach.MaxFileSize+1))
		f.Close()
		if err != nil {
			return nil, err
		}

		uploads = append(uploads, attach.Upload{
			Filename:    hdr.Filename,
			ContentType: hdr.Header.Get("Content-Type"),
			Size:        hdr.Size,
			Data:        data,
		})
	}

	return uploads, nil
}
