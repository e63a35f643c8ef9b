package summary

import (
	"context"

	"github.com/paperhub/course-chat/internal/types"
)

// Result is what the external summarizer produces for a closed room.
type Result struct {
	Text             string
	ParticipantCount int
	MessageCount     int
}

// Summarizer turns a room transcript into a textual digest. The
// generation itself is external; implementations are expected to block
// on network I/O and honor ctx cancellation.
type Summarizer interface {
	Summarize(ctx context.Context, transcript []types.Message, participants []types.User) (Result, error)
}
