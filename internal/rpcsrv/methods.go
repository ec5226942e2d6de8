package rpcsrv

import (
	"encoding/json"

	"github.com/audiocore/audiocore/internal/auth"
	"github.com/audiocore/audiocore/internal/event"
	"github.com/audiocore/audiocore/internal/mediadb"
	"github.com/audiocore/audiocore/internal/player"
)

// onchange bitmask flags, per spec §4.11 ("onchange notifications
// whenever a bitmask ... is set by the player's event listener").
const (
	OnChangeSource = 1 << iota
	OnChangeMedia
	OnChangeVolume
)

// onchangePayload is the body of the `onchange` notification.
type onchangePayload struct {
	State   string `json:"state"`
	Current int    `json:"current,omitempty"`
	Next    int    `json:"next,omitempty"`
	Count   int    `json:"count"`
	Random  bool   `json:"random"`
	Loop    bool   `json:"loop"`
	Volume  int    `json:"volume"`
	Mask    int    `json:"mask"`
}

// BuildTable wires the method table of spec §4.11 to p and media, and
// registers a player event listener that broadcasts `onchange`
// notifications over srv on player state and volume events; catalog
// edits do not trigger a notification.
// Every method but `auth`/`capabilities` requires a prior successful
// `auth` call on the connection whenever authn is non-nil. With an
// empty-token Authenticator (internal/auth.New("")) that `auth` call
// accepts any token, but it is still required.
func BuildTable(srv *Server, p *player.Player, media mediadb.Catalog, authn *auth.Authenticator) *Table {
	t := NewTable()

	// handle registers a request method behind the auth gate; capabilities
	// and auth itself are reachable from a fresh, unauthenticated Conn.
	handle := func(method string, h RequestHandler) {
		t.HandleRequest(method, func(c *Conn, params json.RawMessage) (any, error) {
			if authn != nil {
				if ok, _ := c.UserData.(bool); !ok {
					return nil, &Error{Code: ErrInvalidRequest, Message: "not authenticated"}
				}
			}
			return h(c, params)
		})
	}

	t.HandleRequest("auth", func(c *Conn, params json.RawMessage) (any, error) {
		var req struct {
			Token string `json:"token"`
		}
		json.Unmarshal(params, &req)
		if authn == nil || authn.Check(c.RemoteAddr(), req.Token) {
			c.UserData = true
			return map[string]any{"ok": true}, nil
		}
		return nil, &Error{Code: ErrInvalidRequest, Message: "authentication failed"}
	})

	handle("play", func(c *Conn, params json.RawMessage) (any, error) {
		p.RequestState(player.StatePlay)
		return map[string]any{"ok": true}, nil
	})

	handle("pause", func(c *Conn, params json.RawMessage) (any, error) {
		var req struct {
			On *bool `json:"on"`
		}
		json.Unmarshal(params, &req)
		on := true
		if req.On != nil {
			on = *req.On
		}
		p.SetPause(on)
		return map[string]any{"ok": true}, nil
	})

	handle("stop", func(c *Conn, params json.RawMessage) (any, error) {
		p.RequestState(player.StateStop)
		return map[string]any{"ok": true}, nil
	})

	handle("next", func(c *Conn, params json.RawMessage) (any, error) {
		p.RequestState(player.StateChange)
		return map[string]any{"ok": true}, nil
	})

	handle("setnext", func(c *Conn, params json.RawMessage) (any, error) {
		var req struct {
			ID int `json:"id"`
		}
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, &Error{Code: ErrInvalidParams, Message: "setnext: " + err.Error()}
		}
		p.SetNext(req.ID)
		return map[string]any{"ok": true}, nil
	})

	handle("list", func(c *Conn, params json.RawMessage) (any, error) {
		var req struct {
			First    int `json:"first"`
			MaxItems int `json:"maxitems"`
		}
		json.Unmarshal(params, &req)
		if media == nil {
			return []mediadb.Entry{}, nil
		}
		return media.List(req.First, req.MaxItems), nil
	})

	handle("info", func(c *Conn, params json.RawMessage) (any, error) {
		var req struct {
			ID int `json:"id"`
		}
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, &Error{Code: ErrInvalidParams, Message: "info: " + err.Error()}
		}
		if media == nil {
			return nil, &Error{Code: ErrInternal, Message: "no media catalog"}
		}
		e, err := media.Get(req.ID)
		if err != nil {
			return nil, &Error{Code: ErrInvalidParams, Message: err.Error()}
		}
		return e, nil
	})

	handle("setinfo", func(c *Conn, params json.RawMessage) (any, error) {
		var req struct {
			ID   int           `json:"id"`
			Info mediadb.Entry `json:"info"`
		}
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, &Error{Code: ErrInvalidParams, Message: "setinfo: " + err.Error()}
		}
		if media == nil {
			return nil, &Error{Code: ErrInternal, Message: "no media catalog"}
		}
		if err := media.SetInfo(req.ID, req.Info); err != nil {
			return nil, &Error{Code: ErrInvalidParams, Message: err.Error()}
		}
		return map[string]any{"ok": true}, nil
	})

	handle("filter", func(c *Conn, params json.RawMessage) (any, error) {
		var opts mediadb.Options
		var req struct {
			Keyword string `json:"keyword"`
			Title   string `json:"title"`
			Artist  string `json:"artist"`
			Album   string `json:"album"`
			Genre   string `json:"genre"`
		}
		json.Unmarshal(params, &req)
		opts.Keyword, opts.Title, opts.Artist, opts.Album, opts.Genre = req.Keyword, req.Title, req.Artist, req.Album, req.Genre
		if media == nil {
			return []mediadb.Entry{}, nil
		}
		return media.Filter(opts), nil
	})

	handle("append", func(c *Conn, params json.RawMessage) (any, error) {
		var req struct {
			Entries []mediadb.Entry `json:"entries"`
		}
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, &Error{Code: ErrInvalidParams, Message: "append: " + err.Error()}
		}
		if media == nil {
			return nil, &Error{Code: ErrInternal, Message: "no media catalog"}
		}
		ids := media.Append(req.Entries)
		return map[string]any{"ids": ids}, nil
	})

	handle("remove", func(c *Conn, params json.RawMessage) (any, error) {
		var req struct {
			ID int `json:"id"`
		}
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, &Error{Code: ErrInvalidParams, Message: "remove: " + err.Error()}
		}
		if media == nil {
			return nil, &Error{Code: ErrInternal, Message: "no media catalog"}
		}
		if err := media.Remove(req.ID); err != nil {
			return nil, &Error{Code: ErrInvalidParams, Message: err.Error()}
		}
		return map[string]any{"ok": true}, nil
	})

	handle("status", func(c *Conn, params json.RawMessage) (any, error) {
		return statusOf(p, media), nil
	})

	handle("change", func(c *Conn, params json.RawMessage) (any, error) {
		var req struct {
			ID int `json:"id"`
		}
		json.Unmarshal(params, &req)
		if req.ID != 0 {
			p.SetNext(req.ID)
		}
		p.RequestState(player.StateChange)
		return map[string]any{"ok": true}, nil
	})

	handle("options", func(c *Conn, params json.RawMessage) (any, error) {
		var req struct {
			Random *bool `json:"random"`
			Loop   *bool `json:"loop"`
		}
		json.Unmarshal(params, &req)
		opts := mediadb.Options{}
		if req.Random != nil {
			opts.Random = *req.Random
		}
		if req.Loop != nil {
			opts.Loop = *req.Loop
		}
		p.SetOptions(opts)
		return map[string]any{"ok": true}, nil
	})

	handle("volume", func(c *Conn, params json.RawMessage) (any, error) {
		var req struct {
			Level *int `json:"level"`
			Step  *int `json:"step"`
		}
		json.Unmarshal(params, &req)
		switch {
		case req.Level != nil:
			p.SetVolume(*req.Level)
		case req.Step != nil:
			p.SetVolume(p.Volume() + *req.Step)
		}
		return map[string]any{"volume": p.Volume()}, nil
	})

	handle("getposition", func(c *Conn, params json.RawMessage) (any, error) {
		// position is reported by the sink pipeline via PLAYER_POSITION
		// events; without a sink attached there is nothing to report.
		return map[string]any{"position_ms": 0, "duration_ms": 0}, nil
	})

	t.HandleRequest("capabilities", func(c *Conn, params json.RawMessage) (any, error) {
		return map[string]any{
			"methods": []string{
				"play", "pause", "stop", "next", "setnext", "list", "info",
				"setinfo", "filter", "append", "remove", "status", "change",
				"options", "volume", "getposition", "capabilities",
			},
			"notifications": []string{"onchange", "onclose"},
		}, nil
	})

	p.Bus().Register("rpcsrv.onchange", func(ev event.Event, _ any) {
		mask := 0
		switch ev.Kind {
		case event.PlayerChange:
			mask = OnChangeSource
		case event.PlayerVolume:
			mask = OnChangeVolume
		default:
			return
		}
		srv.Broadcast("onchange", onchangeOf(p, media, mask))
	}, nil)

	return t
}

func statusOf(p *player.Player, media mediadb.Catalog) map[string]any {
	count := 0
	if media != nil {
		count = media.Count()
	}
	return map[string]any{
		"state":  p.State().String(),
		"volume": p.Volume(),
		"count":  count,
	}
}

func onchangeOf(p *player.Player, media mediadb.Catalog, mask int) onchangePayload {
	count := 0
	if media != nil {
		count = media.Count()
	}
	return onchangePayload{
		State:  p.State().String(),
		Count:  count,
		Volume: p.Volume(),
		Mask:   mask,
	}
}
