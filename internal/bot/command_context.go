package bot

import (
	"context"

	"github.com/bsquidwrd/Squid-Bot/internal/platform"
	"github.com/sirupsen/logrus"
)

// CommandContext carries the context of one command invocation plus a
// pre-fielded logger, so every log line of the flow identifies the server,
// channel and author it belongs to.
type CommandContext struct {
	context.Context
	log    *logrus.Entry
	author platform.UserRef
}

func NewCommandContext(ctx context.Context, command, serverID, channelID string, author platform.UserRef) *CommandContext {
	fields := logrus.Fields{
		"command":     command,
		"channel_id":  channelID,
		"author_id":   author.ID,
		"author_name": author.Name,
	}
	if serverID != "" {
		fields["server_id"] = serverID
	}

	return &CommandContext{
		Context: ctx,
		log:     logrus.WithFields(fields),
		author:  author,
	}
}

func (cc *CommandContext) L() *logrus.Entry {
	return cc.log
}

func (cc *CommandContext) Author() platform.UserRef {
	return cc.author
}
