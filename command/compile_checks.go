package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-relay/transport"
)

var (
	_ gocmd.Commander[ForwardEventMessage] = (*ForwardEventCommand)(nil)
	_ gocmd.Message                        = ForwardEventMessage{}
	_ Forwarder                            = (*transport.Forwarder)(nil)
)
