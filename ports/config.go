package ports

import (
	"context"

	"github.com/pelletier/go-toml/v2"
)

// ConnectFromConfig binds declared ports from a TOML document of the
// form:
//
//	[ports.in.<name>]
//	sr = "..."
//
//	[ports.out.<name>]
//	sr = "..."
//
//	[[ports.out.<name>]]
//	sr = "..."
//
// The array-of-tables form produces an array out-port with one slot
// per entry that carries an sr; entries without one get no slot.  A
// malformed document is logged and yields an empty
// connection set; per-port failures leave just that port
// disconnected.
func (c *Connector) ConnectFromConfig(ctx context.Context, doc []byte) {
	var root map[string]any
	if err := toml.Unmarshal(doc, &root); err != nil {
		c.log.WithError(err).Warn("malformed port config")
		return
	}

	ports, ok := root["ports"].(map[string]any)
	if !ok {
		return
	}

	if in, ok := ports["in"].(map[string]any); ok {
		for name, entry := range in {
			if sr, ok := srOf(entry); ok {
				c.connectIn(ctx, name, sr)
			} else {
				c.log.WithField("port", name).Warn("in-port entry has no sr")
			}
		}
	}

	if out, ok := ports["out"].(map[string]any); ok {
		for name, entry := range out {
			c.bindOutEntry(ctx, name, entry)
		}
	}
}

func (c *Connector) bindOutEntry(ctx context.Context, name string, entry any) {
	switch v := entry.(type) {
	case []map[string]any:
		srs := make([]string, 0, len(v))
		for _, e := range v {
			if sr, ok := srOf(e); ok {
				srs = append(srs, sr)
			}
		}
		c.connectArrOut(ctx, name, srs)

	case []any:
		srs := make([]string, 0, len(v))
		for _, e := range v {
			if sr, ok := srOf(e); ok {
				srs = append(srs, sr)
			}
		}
		c.connectArrOut(ctx, name, srs)

	default:
		if sr, ok := srOf(entry); ok {
			c.connectOut(ctx, name, sr)
		} else {
			c.log.WithField("port", name).Warn("out-port entry has no sr")
		}
	}
}

func srOf(entry any) (string, bool) {
	switch v := entry.(type) {
	case map[string]any:
		sr, ok := v["sr"].(string)
		return sr, ok && sr != ""

	case string:
		// A bare string is accepted as the sturdy ref itself.
		return v, v != ""
	}

	return "", false
}
