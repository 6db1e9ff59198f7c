package platform

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the platform no longer knows the
	// requested resource. Callers treat it as "already gone", not a crash.
	ErrNotFound = errors.New("platform: not found")

	// ErrTimeout is returned by WaitForReply when the author does not
	// answer within the window.
	ErrTimeout = errors.New("platform: timed out waiting for reply")
)

// UserRef is the canonical identity of a platform account at the boundary.
// External handlers normalize whatever they received (member, author,
// raw id) into a UserRef exactly once.
type UserRef struct {
	ID   string
	Name string
	Bot  bool
}

type ChannelInfo struct {
	ID        string
	Name      string
	ServerID  string
	Voice     bool
	Private   bool
	Default   bool
	CreatedAt time.Time
}

type MessageInfo struct {
	ID        string
	ChannelID string
	AuthorID  string
	Content   string
}

// MemberAccess is a snapshot of one member's permission overwrite on a
// channel. Reconciliation diffs these against stored ChannelUser rows.
type MemberAccess struct {
	UserID string
	Read   bool
	Send   bool
}

type SendOptions struct {
	Pin         bool
	DeleteAfter time.Duration
}

// Connector is the capability interface over the chat platform. Every call
// is an unreliable remote call: implementations return errors instead of
// retrying, and callers decide what a failed side effect means.
type Connector interface {
	BotUser() UserRef

	GetChannel(ctx context.Context, channelID string) (*ChannelInfo, error)
	ListChannels(ctx context.Context, serverID string) ([]ChannelInfo, error)

	// CreateGameChannel creates a channel invisible to everyone by
	// default, then visible to the bot and the given members.
	CreateGameChannel(ctx context.Context, serverID, name string, memberIDs []string) (*ChannelInfo, error)

	// CreatePrivateChannel creates a non-expiring channel owned by one
	// user, who also gets channel-management rights.
	CreatePrivateChannel(ctx context.Context, serverID, name, ownerID string) (*ChannelInfo, error)

	DeleteChannel(ctx context.Context, channelID string) error
	GrantChannelAccess(ctx context.Context, channelID, userID string) error
	ChannelAccess(ctx context.Context, channelID string) ([]MemberAccess, error)

	SendMessage(ctx context.Context, channelID, text string, opts SendOptions) (*MessageInfo, error)
	WaitForReply(ctx context.Context, channelID, authorID string, timeout time.Duration) (*MessageInfo, error)
	DeleteMessage(ctx context.Context, channelID, messageID string) error

	// Announce sends to a server's default announcement destination.
	Announce(ctx context.Context, serverID, text string) error
}
