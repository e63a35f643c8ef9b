package attach

import (
	"errors"
	"testing"
	"time"

	"github.com/paperhub/course-chat/internal/database"
	"github.com/paperhub/course-chat/internal/storage"
	"github.com/paperhub/course-chat/internal/testutil"
	"github.com/stretchr/testify/mock"
)

func Test_sweep(t *testing.T) {
	t.Run("reclaims unlinked blobs", func(t *testing.T) {
		mockRepo := &database.MockCourseChatRepository{}
		mockStore := &storage.MockObjectStore{}
		defer mockRepo.AssertExpectations(t)
		defer mockStore.AssertExpectations(t)

		expired := []database.Attachment{
			{Id: 1, ObjectKey: "aaa.pdf"},
			{Id: 2, ObjectKey: "bbb.png"},
		}

		mockRepo.On("DeleteExpiredAttachments", mock.MatchedBy(func(cutoff time.Time) bool {
			return cutoff.Before(time.Now())
		})).Return(expired, nil).Once()
		mockStore.On("Delete", mock.Anything, "aaa.pdf").Return(nil).Once()
		mockStore.On("Delete", mock.Anything, "bbb.png").Return(nil).Once()

		s := NewSweeper(testutil.TestLogger(t), mockRepo, mockStore)
		s.sweep()
	})

	t.Run("nothing expired means no storage io", func(t *testing.T) {
		mockRepo := &database.MockCourseChatRepository{}
		mockStore := &storage.MockObjectStore{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("DeleteExpiredAttachments", mock.Anything).Return([]database.Attachment{}, nil).Once()

		s := NewSweeper(testutil.TestLogger(t), mockRepo, mockStore)
		s.sweep()

		mockStore.AssertNotCalled(t, "Delete")
	})

	t.Run("db failure skips the cycle", func(t *testing.T) {
		mockRepo := &database.MockCourseChatRepository{}
		mockStore := &storage.MockObjectStore{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("DeleteExpiredAttachments", mock.Anything).
			Return([]database.Attachment{}, errors.New("db error")).Once()

		s := NewSweeper(testutil.TestLogger(t), mockRepo, mockStore)
		s.sweep()

		mockStore.AssertNotCalled(t, "Delete")
	})

	t.Run("blob delete failure does not stop the sweep", func(t *testing.T) {
		mockRepo := &database.MockCourseChatRepository{}
		mockStore := &storage.MockObjectStore{}
		defer mockRepo.AssertExpectations(t)
		defer mockStore.AssertExpectations(t)

		expired := []database.Attachment{
			{Id: 1, ObjectKey: "aaa.pdf"},
			{Id: 2, ObjectKey: "bbb.png"},
		}

		mockRepo.On("DeleteExpiredAttachments", mock.Anything).Return(expired, nil).Once()
		mockStore.On("Delete", mock.Anything, "aaa.pdf").Return(errors.New("gone")).Once()
		mockStore.On("Delete", mock.Anything, "bbb.png").Return(nil).Once()

		s := NewSweeper(testutil.TestLogger(t), mockRepo, mockStore)
		s.sweep()
	})
}

func TestSweeper_RunAndStop(t *testing.T) {
	mockRepo := &database.MockCourseChatRepository{}
	mockStore := &storage.MockObjectStore{}
	defer mockRepo.AssertExpectations(t)

	mockRepo.On("DeleteExpiredAttachments", mock.Anything).Return([]database.Attachment{}, nil).Maybe()

	s := NewSweeper(testutil.TestLogger(t), mockRepo, mockStore)
	s.interval = 10 * time.Millisecond
	s.Run()

	time.Sleep(25 * time.Millisecond)
	s.Stop()

	select {
	case <-s.done:
	default:
		t.Error("expected sweeper goroutine to have exited")
	}
}
