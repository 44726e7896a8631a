package main

import (
	"context"
	"fmt"

	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/config"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/health"
)

// HealthCmd checks a running server.
type HealthCmd struct {
	Addr    string `help:"Health service address; defaults to HEALTH_ADDR."`
	Service string `default:"" help:"Service to check (scribe.asr, scribe.summarizer); empty checks overall."`
}

func (c *HealthCmd) Run(cfg *config.Config) error {
	addr := c.Addr
	if addr == "" {
		addr = cfg.HealthAddr
	}
	ctx, cancel := context.WithTimeout(context.Background(), health.CheckTimeout)
	defer cancel()

	status, err := health.Check(ctx, addr, c.Service)
	if err != nil {
		return err
	}
	fmt.Println(status.String())
	return nil
}
