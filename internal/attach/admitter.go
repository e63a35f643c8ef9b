package attach

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/paperhub/course-chat/internal/database"
	"github.com/paperhub/course-chat/internal/storage"
	"github.com/paperhub/course-chat/internal/types"
)

// MaxFileSize is the largest attachment the service accepts.
const MaxFileSize = 5 << 20 // 5 MiB

const defaultStorageTimeout = 15 * time.Second

// allowedTypes is the fixed MIME allow-list for attachments.
var allowedTypes = map[string]struct{}{
	"image/jpeg":         {},
	"image/png":          {},
	"image/gif":          {},
	"application/pdf":    {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
}

// Upload is a file submitted for admission, fully read from the request.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Data        []byte
}

// Validate rejects an upload before any storage I/O happens.
func Validate(u Upload) error {
	if _, ok := allowedTypes[u.ContentType]; !ok {
		return FileError{
			Filename: u.Filename,
			Reason:   fmt.Sprintf("type %q not allowed", u.ContentType),
			Err:      ErrUnsupportedType,
		}
	}

	if u.Size > MaxFileSize {
		return FileError{
			Filename: u.Filename,
			Reason:   fmt.Sprintf("%d bytes exceeds limit of %d", u.Size, MaxFileSize),
			Err:      ErrTooLarge,
		}
	}

	return nil
}

// Admitter validates uploads and stages them into object storage plus a
// durable attachment row. Staged rows stay unlinked until a message
// append claims them.
type Admitter struct {
	log     *log.Logger
	db      database.CourseChatRepository
	store   storage.ObjectStore
	timeout time.Duration
}

func NewAdmitter(logger *log.Logger, db database.CourseChatRepository, store storage.ObjectStore) *Admitter {
	return &Admitter{
		log:     logger,
		db:      db,
		store:   store,
		timeout: defaultStorageTimeout,
	}
}

// Admit validates and stages a single upload. The blob is written
// first; the row insert only happens once the blob is durable, so a
// visible descriptor always resolves to stored bytes.
func (a *Admitter) Admit(ctx context.Context, owner types.User, u Upload) (types.Attachment, error) {
	if err := Validate(u); err != nil {
		return types.Attachment{}, err
	}

	key := uuid.NewString() + path.Ext(u.Filename)

	putCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	url, err := a.store.Put(putCtx, key, bytes.NewReader(u.Data), u.Size, u.ContentType)
	if err != nil {
		return types.Attachment{}, FileError{
			Filename: u.Filename,
			Reason:   "could not store file",
			Err:      fmt.Errorf("%w: %v", ErrStorage, err),
		}
	}

	att, err := a.db.CreateAttachment(database.CreateAttachmentParams{
		OwnerId:   owner.Id,
		ObjectKey: key,
		FileUrl:   url,
		Filename:  u.Filename,
		FileType:  u.ContentType,
		FileSize:  u.Size,
	})
	if err != nil {
		// the row never existed, so the descriptor is not visible;
		// drop the orphaned blob best-effort
		a.deleteBlob(key)
		return types.Attachment{}, FileError{
			Filename: u.Filename,
			Reason:   "could not record file",
			Err:      fmt.Errorf("%w: %v", ErrStorage, err),
		}
	}

	return types.Attachment{
		Id:       att.Id,
		FileUrl:  att.FileUrl,
		Filename: att.Filename,
		FileType: att.FileType,
		FileSize: att.FileSize,
	}, nil
}

// AdmitAll admits a batch all-or-nothing from the caller's point of
// view: every upload is validated before any is stored, and a failure
// part-way returns the per-file failure list without admitting the
// batch. Files stored before the failure stay staged; the sweeper
// reclaims them if the client never retries.
func (a *Admitter) AdmitAll(ctx context.Context, owner types.User, uploads []Upload) ([]types.Attachment, error) {
	var batchErr BatchError
	for _, u := range uploads {
		if err := Validate(u); err != nil {
			batchErr.Files = append(batchErr.Files, err.(FileError))
		}
	}
	if len(batchErr.Files) > 0 {
		return nil, &batchErr
	}

	admitted := make([]types.Attachment, 0, len(uploads))
	for _, u := range uploads {
		att, err := a.Admit(ctx, owner, u)
		if err != nil {
			fe, ok := err.(FileError)
			if !ok {
				fe = FileError{Filename: u.Filename, Reason: err.Error(), Err: err}
			}
			batchErr.Files = append(batchErr.Files, fe)
			return nil, &batchErr
		}

		admitted = append(admitted, att)
	}

	return admitted, nil
}

func (a *Admitter) deleteBlob(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	if err := a.store.Delete(ctx, key); err != nil {
		a.log.Printf("delete orphaned blob %q: %v", key, err)
	}
}
