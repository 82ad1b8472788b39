package live

import (
	"encoding/json"

	"convodb/pkg/publish"
	"convodb/pkg/store/docs"
)

// Frame is one websocket message in either direction. Msg selects which
// fields are meaningful.
type Frame struct {
	Msg        string         `json:"msg"`
	ID         string         `json:"id,omitempty"`
	Name       string         `json:"name,omitempty"`
	Params     publish.Params `json:"params,omitempty"`
	Session    string         `json:"session,omitempty"`
	Collection string         `json:"collection,omitempty"`
	Fields     docs.Doc       `json:"fields,omitempty"`
	Cleared    []string       `json:"cleared,omitempty"`
	Subs       []string       `json:"subs,omitempty"`
	Error      string         `json:"error,omitempty"`
}

const (
	MsgSub   = "sub"
	MsgUnsub = "unsub"
	MsgPing  = "ping"

	MsgConnected = "connected"
	MsgAdded     = "added"
	MsgChanged   = "changed"
	MsgRemoved   = "removed"
	MsgReady     = "ready"
	MsgNoSub     = "nosub"
	MsgPong      = "pong"
	MsgError     = "error"
)

func encode(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

func decode(b []byte) (Frame, error) {
	var f Frame
	err := json.Unmarshal(b, &f)
	return f, err
}
