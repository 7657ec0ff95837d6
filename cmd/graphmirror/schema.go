package main

import (
	"fmt"
	"os"

	"github.com/johnwards/graphmirror/internal/config"
	"github.com/johnwards/graphmirror/internal/schema"
)

// loadSchema returns the schema from cfg.SchemaPath, or the built-in
// GitHub-like schema when no path is configured.
func loadSchema(cfg config.Config) (*schema.Schema, error) {
	if cfg.SchemaPath == "" {
		return githubSchema()
	}
	data, err := os.ReadFile(cfg.SchemaPath)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	return schema.FromJSON(data)
}

// githubSchema describes the slice of the GitHub GraphQL API the mirror
// tracks by default: repositories, their issues, issue comments, and the
// actors who wrote them.
func githubSchema() (*schema.Schema, error) {
	actor := map[string]schema.Field{
		"id":    schema.IDField(),
		"url":   schema.Primitive(),
		"login": schema.Primitive(),
	}
	return schema.New(map[string]schema.Type{
		"Repository": schema.Object(map[string]schema.Field{
			"id":     schema.IDField(),
			"url":    schema.Primitive(),
			"issues": schema.Connection("Issue"),
		}),
		"Issue": schema.Object(map[string]schema.Field{
			"id":       schema.IDField(),
			"url":      schema.Primitive(),
			"title":    schema.Primitive(),
			"comments": schema.Connection("IssueComment"),
		}),
		"IssueComment": schema.Object(map[string]schema.Field{
			"id":     schema.IDField(),
			"body":   schema.Primitive(),
			"author": schema.Node("Actor"),
		}),
		"Actor":        schema.Union("User", "Bot", "Organization"),
		"User":         schema.Object(actor),
		"Bot":          schema.Object(actor),
		"Organization": schema.Object(actor),
	})
}
