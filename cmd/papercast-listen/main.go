package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/papercast-labs/papercast-core/internal/client"
	"github.com/papercast-labs/papercast-core/internal/config"
	"github.com/papercast-labs/papercast-core/internal/player"
)

var version = "0.1.0-dev"

func main() {
	defaults := config.Default().Player

	var (
		serverURL   string
		doi         string
		playerCmd   string
		intervalMS  int
		showVersion bool
	)

	flag.StringVar(&serverURL, "server", "http://localhost:8080", "papercastd base URL")
	flag.StringVar(&doi, "doi", "", "DOI of the paper to listen to")
	flag.StringVar(&playerCmd, "player", defaults.Command, "External player command fed MP3 on stdin")
	flag.IntVar(&intervalMS, "interval", defaults.PollIntervalMS, "Status poll interval in milliseconds")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if doi == "" {
		fmt.Fprintln(os.Stderr, "usage: papercast-listen -doi <doi> [-server url]")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := listen(ctx, serverURL, doi, playerCmd, time.Duration(intervalMS)*time.Millisecond, logger); err != nil {
		fmt.Fprintf(os.Stderr, "papercast-listen: %v\n", err)
		os.Exit(1)
	}
}

func listen(ctx context.Context, serverURL, doi, playerCmd string, interval time.Duration, logger *slog.Logger) error {
	api := client.New(serverURL)

	var session *player.Session
	handle, err := player.NewExecHandle(playerCmd, api.OpenClip, player.HandleEvents{
		Ended: func() {
			session.Dispatch(ctx, player.ClipEnded{})
		},
		Tick: func(positionMS int) {
			session.Dispatch(ctx, player.Tick{PositionMS: positionMS})
		},
	})
	if err != nil {
		return err
	}

	session = player.NewSession(handle, logger)
	defer session.Close()

	poller := player.NewPoller(api, interval, func(clips []string, status string) {
		session.Dispatch(ctx, player.ClipsMerged{Clips: clips, Status: status})
		fmt.Printf("\r%d clip(s) available, status %s   ", len(clips), status)
	}, logger)
	defer poller.Stop()

	pollDone := make(chan error, 1)
	go func() {
		title, err := poller.Run(ctx, doi)
		if title != "" {
			fmt.Printf("\rListening to: %s\n", title)
		}
		pollDone <- err
	}()

	// Playback outlives the poll loop: generation may finish while clips
	// are still playing. Watch the machine until it settles.
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	polling := true
	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case err := <-pollDone:
			if err != nil && ctx.Err() == nil {
				return err
			}
			polling = false
		case <-ticker.C:
			st := session.State()
			switch st.Phase {
			case player.PhaseEnded:
				fmt.Println("\nPlayback finished.")
				return nil
			case player.PhaseErrored:
				return fmt.Errorf("playback failed: %s", st.Err)
			case player.PhaseIdle:
				if !polling {
					// Terminal status with no clips to play.
					fmt.Println("\nNo audio available.")
					return nil
				}
			}
		}
	}
}
