package transport

import "context"

// ModeHTML asks the transport to treat message text as its HTML subset.
const ModeHTML = "HTML"

// SendOptions tune one outgoing message.
type SendOptions struct {
	ParseMode      string
	DisablePreview bool

	// RegisterEvent, when non-zero, asks the adapter to attach its
	// registration control (Telegram: inline keyboard with a
	// register_<id> callback) for that event.
	RegisterEvent int64
}

// Sender delivers one payload to one recipient. Implementations own the
// transport-level timeout; a slow recipient must fail, not hang.
//
// Every method returns a transport error for that recipient only. Callers
// treat any error as "this recipient's delivery failed" and continue.
type Sender interface {
	SendText(ctx context.Context, userID int64, text string, opt *SendOptions) error
	SendPhoto(ctx context.Context, userID int64, fileID, caption string, opt *SendOptions) error
	SendVoice(ctx context.Context, userID int64, fileID, caption string, opt *SendOptions) error
	SendVideoNote(ctx context.Context, userID int64, fileID string, opt *SendOptions) error
	SendVideo(ctx context.Context, userID int64, fileID, caption string, opt *SendOptions) error
}
