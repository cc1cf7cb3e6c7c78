package main

import (
	"context"
	"errors"
	"io"

	"github.com/dvloznov/finance-agent/internal/agent"
	"github.com/spf13/cobra"
)

var errOffline = errors.New("generation is not available in this command")

// offlineGenerator lets maintenance commands build the app without a
// Gemini key. They never run a turn.
type offlineGenerator struct{}

func (offlineGenerator) GenerateText(ctx context.Context, system, prompt string) (string, error) {
	return "", errOffline
}

func (offlineGenerator) GenerateObject(ctx context.Context, system, prompt string, fields []agent.FieldSpec) (any, error) {
	return nil, errOffline
}

func (offlineGenerator) ModelName() string { return "offline" }

func readAll(cmd *cobra.Command) ([]byte, error) {
	return io.ReadAll(cmd.InOrStdin())
}
