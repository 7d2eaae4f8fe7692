package session

import (
	"github.com/coder/acp-go-sdk"
	"github.com/dwalleck/cyril/logger"
	"github.com/dwalleck/cyril/pathmap"
	"github.com/dwalleck/cyril/transport"
)

// Client is the capability side of the connection. It also receives the
// extension notifications the SDK does not route.
type Client interface {
	acp.Client
	transport.ExtHandler
}

// Connect wires client to a running agent. Agent stdout passes through the
// extension interceptor before reaching the SDK.
func Connect(agent *transport.AgentProcess, client Client, translator pathmap.Translator) *acp.ClientSideConnection {
	out := transport.NewInterceptor(agent.Stdout(), client, translator)
	conn := acp.NewClientSideConnection(client, agent.Stdin(), out)
	conn.SetLogger(logger.WithComponent("acp"))
	return conn
}
