package summary

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/paperhub/course-chat/internal/types"
	"github.com/stretchr/testify/assert"
)

var testTranscript = []types.Message{
	{SeqId: 1, Sender: types.User{Id: 1, Username: "instructor"}, Content: "welcome everyone"},
	{SeqId: 2, Sender: types.User{Id: 2, Username: "student"}, Content: "sharing my notes", Attachments: []types.Attachment{
		{Id: 1, Filename: "notes.pdf"},
	}},
}

var testParticipants = []types.User{
	{Id: 1, Username: "instructor"},
	{Id: 2, Username: "student"},
}

func TestOllamaSummarizer_Summarize(t *testing.T) {
	t.Run("sends transcript and returns digest", func(t *testing.T) {
		var gotReq chatRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/chat", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			err := json.NewDecoder(r.Body).Decode(&gotReq)
			assert.NoError(t, err, "expected a decodable request body")

			json.NewEncoder(w).Encode(chatResponse{
				Message: chatMessage{Role: "assistant", Content: "  the session covered notes  "},
			})
		}))
		defer srv.Close()

		s := NewOllamaSummarizer(srv.URL, "llama3.1", time.Second)
		res, err := s.Summarize(context.Background(), testTranscript, testParticipants)
		assert.NoError(t, err)
		assert.Equal(t, "the session covered notes", res.Text, "expected the digest trimmed")
		assert.Equal(t, 2, res.ParticipantCount)
		assert.Equal(t, 2, res.MessageCount)

		assert.Equal(t, "llama3.1", gotReq.Model)
		assert.False(t, gotReq.Stream, "expected a non-streaming request")
		if assert.Len(t, gotReq.Messages, 2) {
			assert.Equal(t, "system", gotReq.Messages[0].Role)
			assert.Equal(t, "user", gotReq.Messages[1].Role)
			assert.Contains(t, gotReq.Messages[1].Content, "instructor: welcome everyone")
			assert.Contains(t, gotReq.Messages[1].Content, "[file: notes.pdf]", "expected shared files named in the prompt")
		}
	})

	t.Run("non-200 status is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}))
		defer srv.Close()

		s := NewOllamaSummarizer(srv.URL, "llama3.1", time.Second)
		_, err := s.Summarize(context.Background(), testTranscript, testParticipants)
		assert.Error(t, err)
	})

	t.Run("empty digest is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(chatResponse{})
		}))
		defer srv.Close()

		s := NewOllamaSummarizer(srv.URL, "llama3.1", time.Second)
		_, err := s.Summarize(context.Background(), testTranscript, testParticipants)
		assert.Error(t, err)
	})

	t.Run("honors context cancellation", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Drain the body so the server can observe the client disconnect;
			// otherwise r.Context() is never cancelled and srv.Close hangs.
			io.Copy(io.Discard, r.Body)
			<-r.Context().Done()
		}))
		defer srv.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		s := NewOllamaSummarizer(srv.URL, "llama3.1", time.Second)
		_, err := s.Summarize(ctx, testTranscript, testParticipants)
		assert.Error(t, err)
	})

	t.Run("missing model is rejected before any request", func(t *testing.T) {
		s := NewOllamaSummarizer("http://localhost:1", "  ", time.Second)
		_, err := s.Summarize(context.Background(), testTranscript, testParticipants)
		assert.Error(t, err)
	})
}

func Test_renderTranscript(t *testing.T) {
	out := renderTranscript(testTranscript)
	assert.Equal(t, "instructor: welcome everyone\nstudent: sharing my notes [file: notes.pdf]\n", out)
}
