package commands

import (
	"context"
	"log/slog"
	"strings"

	application "milestonepay/contexts/engagement-finance/milestone-escrow/application"
	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/entities"
	domainerrors "milestonepay/contexts/engagement-finance/milestone-escrow/domain/errors"
	"milestonepay/contexts/engagement-finance/milestone-escrow/ports"
)

const MaxAttachmentBytes = 10 << 20

type UploadAttachmentCommand struct {
	Caller   entities.Caller
	Name     string
	MIMEType string
	Data     []byte
}

// UploadAttachmentUseCase stores a deliverable file and returns the attachment
// descriptor to reference from a submission.
type UploadAttachmentUseCase struct {
	Blobs  ports.BlobStore
	Logger *slog.Logger
}

func (u UploadAttachmentUseCase) Execute(ctx context.Context, cmd UploadAttachmentCommand) (entities.Attachment, error) {
	logger := application.ResolveLogger(u.Logger)
	name := strings.TrimSpace(cmd.Name)
	mimeType := strings.TrimSpace(cmd.MIMEType)
	if name == "" || len(cmd.Data) == 0 || len(cmd.Data) > MaxAttachmentBytes {
		return entities.Attachment{}, domainerrors.ErrInvalidUpload
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	if !cmd.Caller.Valid() {
		return entities.Attachment{}, domainerrors.ErrInvalidCaller
	}

	url, err := u.Blobs.Store(ctx, name, mimeType, cmd.Data)
	if err != nil {
		logger.Error("attachment store failed",
			"event", "milestone_escrow_attachment_store_failed",
			"module", application.ModuleName,
			"layer", "application",
			"user_id", cmd.Caller.UserID,
			"error", err.Error(),
		)
		return entities.Attachment{}, err
	}
	return entities.Attachment{
		Name:     name,
		URL:      url,
		MIMEType: mimeType,
		Size:     int64(len(cmd.Data)),
	}, nil
}
