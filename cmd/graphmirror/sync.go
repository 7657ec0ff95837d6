package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/johnwards/graphmirror/internal/client"
	"github.com/johnwards/graphmirror/internal/config"
	"github.com/johnwards/graphmirror/internal/gql"
	"github.com/johnwards/graphmirror/internal/mirror"
	"github.com/johnwards/graphmirror/internal/schema"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxRounds bounds the refresh loop. Each round strictly advances the
// mirror, so hitting the bound means the remote keeps growing faster than
// we fetch or page sizes are degenerate.
const maxRounds = 1000

func runSync(ctx context.Context) error {
	m, sch, cfg, cleanup, err := openMirror(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	c := client.New(client.Config{
		Endpoint: cfg.Endpoint,
		Token:    cfg.Token,
	})

	since := time.Now()
	for round := 1; ; round++ {
		out, err := m.FindOutdated(ctx, since)
		if err != nil {
			return err
		}
		if len(out.Objects) == 0 && len(out.Connections) == 0 {
			slog.Info("mirror up to date", "rounds", round-1)
			return nil
		}
		if round > maxRounds {
			return fmt.Errorf("sync did not converge after %d rounds", maxRounds)
		}

		slog.Info("refresh round",
			"round", round,
			"stale_objects", len(out.Objects),
			"stale_connections", len(out.Connections),
		)

		update, err := m.CreateUpdate(ctx, time.Now())
		if err != nil {
			return err
		}

		for _, obj := range out.Objects {
			if err := refreshOwnData(ctx, m, c, sch, update, obj); err != nil {
				return err
			}
		}
		for _, conn := range out.Connections {
			if err := refreshConnection(ctx, m, c, cfg, update, conn); err != nil {
				return err
			}
		}
	}
}

// nodePayload is the `data` shape of a node(id:) query: the object's
// selected fields keyed by field name.
type nodePayload struct {
	Node map[string]jsoniter.RawMessage `json:"node"`
}

func refreshOwnData(ctx context.Context, m *mirror.Mirror, c *client.Client, sch *schema.Schema, update mirror.UpdateID, obj mirror.ObjectRef) error {
	sels, err := m.QueryOwnData(obj.Typename)
	if err != nil {
		return err
	}
	query := gql.Query("",
		gql.Field("node", []gql.Arg{gql.Argument("id", gql.String(obj.ID))}, sels...),
	)

	data, err := c.Execute(ctx, query, nil)
	if err != nil {
		return fmt.Errorf("fetch own data for %s %q: %w", obj.Typename, obj.ID, err)
	}

	var payload nodePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("decode own data for %q: %w", obj.ID, err)
	}
	if payload.Node == nil {
		return fmt.Errorf("own data for %q: remote returned no node", obj.ID)
	}

	typ, _ := sch.Type(obj.Typename)
	result, err := decodeOwnData(typ, obj.ID, payload.Node)
	if err != nil {
		return err
	}

	return m.UpdateOwnData(ctx, update, obj.Typename, []mirror.OwnDataResult{result})
}

// decodeOwnData maps a raw field map onto the typed own-data result the
// mirror ingests, using the schema to tell primitives from node links.
func decodeOwnData(typ schema.Type, id string, fields map[string]jsoniter.RawMessage) (mirror.OwnDataResult, error) {
	result := mirror.OwnDataResult{
		ID:         id,
		Primitives: make(map[string]any),
		Nodes:      make(map[string]*mirror.NodeResult),
	}

	for _, name := range typ.PrimitiveFieldNames() {
		raw, ok := fields[name]
		if !ok {
			return result, fmt.Errorf("own data for %q: response missing field %q", id, name)
		}
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return result, fmt.Errorf("own data for %q: decode field %q: %w", id, name, err)
		}
		result.Primitives[name] = value
	}

	for _, name := range typ.NodeFieldNames() {
		raw, ok := fields[name]
		if !ok {
			return result, fmt.Errorf("own data for %q: response missing field %q", id, name)
		}
		var node *mirror.NodeResult
		if err := json.Unmarshal(raw, &node); err != nil {
			return result, fmt.Errorf("own data for %q: decode field %q: %w", id, name, err)
		}
		result.Nodes[name] = node
	}

	return result, nil
}

func refreshConnection(ctx context.Context, m *mirror.Mirror, c *client.Client, cfg config.Config, update mirror.UpdateID, conn mirror.ConnectionRef) error {
	query := gql.Query("",
		gql.Field("node", []gql.Arg{gql.Argument("id", gql.String(conn.ObjectID))},
			m.QueryConnection(conn.Fieldname, conn.EndCursor, cfg.PageSize),
		),
	)

	data, err := c.Execute(ctx, query, nil)
	if err != nil {
		return fmt.Errorf("fetch %s %q.%s: %w", conn.Typename, conn.ObjectID, conn.Fieldname, err)
	}

	var payload nodePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("decode connection page for %q.%s: %w", conn.ObjectID, conn.Fieldname, err)
	}
	raw, ok := payload.Node[conn.Fieldname]
	if !ok {
		return fmt.Errorf("connection page for %q.%s: response missing field", conn.ObjectID, conn.Fieldname)
	}

	var page mirror.ConnectionResult
	if err := json.Unmarshal(raw, &page); err != nil {
		return fmt.Errorf("decode connection page for %q.%s: %w", conn.ObjectID, conn.Fieldname, err)
	}

	return m.UpdateConnection(ctx, update, conn.ObjectID, conn.Fieldname, &page)
}
