package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/config"
	"github.com/GriffinCanCode/private-scribe/backend/platform/internal/export"
)

// TranscribeCmd runs an audio file through the pipeline once.
type TranscribeCmd struct {
	File string `arg:"" type:"existingfile" help:"WAV file to transcribe."`
	Out  string `enum:"md,html,json" default:"md" help:"Output format (md, html, json)."`
	Save bool   `help:"Also save the result as a session in DB_PATH."`
}

func (c *TranscribeCmd) Run(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, c.Save)
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := os.Open(c.File)
	if err != nil {
		return err
	}
	defer f.Close()

	pcm, err := a.manager.DecodeUpload(f)
	if err != nil {
		return err
	}
	if err := a.manager.TranscribePCM(ctx, pcm); err != nil {
		return err
	}

	snap := a.manager.Snapshot()
	text := snap.Transcript
	switch c.Out {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			return err
		}
	case "html":
		page, err := export.HTML(snap.Title, text, snap.Summary)
		if err != nil {
			return err
		}
		fmt.Println(page)
	default:
		fmt.Println(export.Markdown(snap.Title, text, snap.Summary))
	}

	if c.Save {
		sess, err := a.manager.Save(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "saved session %s\n", sess.ID)
	}
	return nil
}
