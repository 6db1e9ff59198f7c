// Package platformtest provides an in-memory Connector for tests.
package platformtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bsquidwrd/Squid-Bot/internal/platform"
)

type SentMessage struct {
	ChannelID string
	Text      string
	Pin       bool
}

// Fake is an in-memory platform. Replies feed WaitForReply in order; an
// exhausted queue means timeout. FailDelete simulates a platform that
// refuses (or has already performed) channel deletion.
type Fake struct {
	mu sync.Mutex

	BotID      string
	nextID     int
	channels   map[string]platform.ChannelInfo
	access     map[string]map[string]platform.MemberAccess
	Sent       []SentMessage
	Announced  map[string][]string
	Replies    []string
	FailDelete map[string]error
}

func NewFake() *Fake {
	return &Fake{
		BotID:      "bot-1",
		channels:   make(map[string]platform.ChannelInfo),
		access:     make(map[string]map[string]platform.MemberAccess),
		Announced:  make(map[string][]string),
		FailDelete: make(map[string]error),
	}
}

// AddChannel seeds a live channel and returns its id.
func (f *Fake) AddChannel(info platform.ChannelInfo) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if info.ID == "" {
		f.nextID++
		info.ID = fmt.Sprintf("chan-%d", f.nextID)
	}
	if info.CreatedAt.IsZero() {
		info.CreatedAt = time.Now()
	}
	f.channels[info.ID] = info
	if f.access[info.ID] == nil {
		f.access[info.ID] = make(map[string]platform.MemberAccess)
	}
	return info.ID
}

// SetAccess overrides one member's permission snapshot on a channel.
func (f *Fake) SetAccess(channelID, userID string, read, send bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.access[channelID] == nil {
		f.access[channelID] = make(map[string]platform.MemberAccess)
	}
	f.access[channelID][userID] = platform.MemberAccess{UserID: userID, Read: read, Send: send}
}

// QueueReply schedules the next WaitForReply answer.
func (f *Fake) QueueReply(content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Replies = append(f.Replies, content)
}

func (f *Fake) HasChannel(channelID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.channels[channelID]
	return ok
}

func (f *Fake) BotUser() platform.UserRef {
	return platform.UserRef{ID: f.BotID, Name: "squid-bot", Bot: true}
}

func (f *Fake) GetChannel(_ context.Context, channelID string) (*platform.ChannelInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.channels[channelID]
	if !ok {
		return nil, platform.ErrNotFound
	}
	return &info, nil
}

func (f *Fake) ListChannels(_ context.Context, serverID string) ([]platform.ChannelInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []platform.ChannelInfo
	for _, info := range f.channels {
		if info.ServerID == serverID {
			result = append(result, info)
		}
	}
	return result, nil
}

func (f *Fake) CreateGameChannel(_ context.Context, serverID, name string, memberIDs []string) (*platform.ChannelInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	info := platform.ChannelInfo{
		ID:        fmt.Sprintf("chan-%d", f.nextID),
		Name:      name,
		ServerID:  serverID,
		CreatedAt: time.Now(),
	}
	f.channels[info.ID] = info
	f.access[info.ID] = make(map[string]platform.MemberAccess)
	f.access[info.ID][f.BotID] = platform.MemberAccess{UserID: f.BotID, Read: true, Send: true}
	for _, id := range memberIDs {
		f.access[info.ID][id] = platform.MemberAccess{UserID: id, Read: true, Send: true}
	}
	return &info, nil
}

func (f *Fake) CreatePrivateChannel(ctx context.Context, serverID, name, ownerID string) (*platform.ChannelInfo, error) {
	return f.CreateGameChannel(ctx, serverID, name, []string{ownerID})
}

func (f *Fake) DeleteChannel(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.FailDelete[channelID]; ok {
		return err
	}
	if _, ok := f.channels[channelID]; !ok {
		return platform.ErrNotFound
	}
	delete(f.channels, channelID)
	delete(f.access, channelID)
	return nil
}

func (f *Fake) GrantChannelAccess(_ context.Context, channelID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.channels[channelID]; !ok {
		return platform.ErrNotFound
	}
	f.access[channelID][userID] = platform.MemberAccess{UserID: userID, Read: true, Send: true}
	return nil
}

func (f *Fake) ChannelAccess(_ context.Context, channelID string) ([]platform.MemberAccess, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	members, ok := f.access[channelID]
	if !ok {
		return nil, platform.ErrNotFound
	}
	result := make([]platform.MemberAccess, 0, len(members))
	for _, m := range members {
		result = append(result, m)
	}
	return result, nil
}

func (f *Fake) SendMessage(_ context.Context, channelID, text string, opts platform.SendOptions) (*platform.MessageInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.Sent = append(f.Sent, SentMessage{ChannelID: channelID, Text: text, Pin: opts.Pin})
	return &platform.MessageInfo{
		ID:        fmt.Sprintf("msg-%d", f.nextID),
		ChannelID: channelID,
		AuthorID:  f.BotID,
		Content:   text,
	}, nil
}

func (f *Fake) WaitForReply(_ context.Context, channelID, authorID string, _ time.Duration) (*platform.MessageInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Replies) == 0 {
		return nil, platform.ErrTimeout
	}
	content := f.Replies[0]
	f.Replies = f.Replies[1:]
	f.nextID++
	return &platform.MessageInfo{
		ID:        fmt.Sprintf("msg-%d", f.nextID),
		ChannelID: channelID,
		AuthorID:  authorID,
		Content:   content,
	}, nil
}

func (f *Fake) DeleteMessage(_ context.Context, _, _ string) error {
	return nil
}

func (f *Fake) Announce(_ context.Context, serverID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Announced[serverID] = append(f.Announced[serverID], text)
	return nil
}

// LastSent returns the most recent message, or nil.
func (f *Fake) LastSent() *SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Sent) == 0 {
		return nil
	}
	return &f.Sent[len(f.Sent)-1]
}
