package main

import (
	"context"
	"strings"
	"testing"

	"github.com/nevindra/seer/internal/config"
	"github.com/nevindra/seer/tarot"
)

func TestInProcessTarot(t *testing.T) {
	ctx := context.Background()
	c := inProcessTarot(quietLogger())
	defer c.Close()

	info, err := c.Initialize(ctx, "test", "0")
	if err != nil {
		t.Fatal(err)
	}
	if info.Name != tarot.ServerName {
		t.Errorf("server = %q", info.Name)
	}
	defs, err := c.ListTools(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(defs) == 0 {
		t.Fatal("no tools listed")
	}
}

func TestBuildAppValidatesConfig(t *testing.T) {
	cfg := config.Default()
	_, err := buildApp(context.Background(), cfg, quietLogger())
	if err == nil || !strings.Contains(err.Error(), "llm.api_key") {
		t.Fatalf("err = %v, want missing api key", err)
	}
}
