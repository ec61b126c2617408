package syncer

import (
	"fmt"

	"github.com/dmitrijs2005/tendercrm/internal/client/models"
)

// Strategy decides which side keeps a record that was changed locally while
// the server copy changed too.
type Strategy string

const (
	ServerWins    Strategy = "server-wins"
	ClientWins    Strategy = "client-wins"
	LastWriteWins Strategy = "last-write-wins"
)

// DefaultStrategy is used when none is configured.
const DefaultStrategy = LastWriteWins

// ParseStrategy accepts the strategy names; an empty string selects
// DefaultStrategy.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(s); st {
	case "":
		return DefaultStrategy, nil
	case ServerWins, ClientWins, LastWriteWins:
		return st, nil
	}
	return "", fmt.Errorf("unknown conflict strategy %q", s)
}

// Winner is the side a conflict resolved to.
type Winner int

const (
	Server Winner = iota
	Client
)

func (w Winner) String() string {
	if w == Client {
		return "client"
	}
	return "server"
}

// Resolve picks the winner between a local unsynced record and the server
// row with the same id. Last-write-wins keeps the newer updated_at; ties go
// to the server.
func (s Strategy) Resolve(local, server models.Record) Winner {
	switch s {
	case ClientWins:
		return Client
	case ServerWins:
		return Server
	default:
		if local.UpdatedAt.After(server.UpdatedAt) {
			return Client
		}
		return Server
	}
}
