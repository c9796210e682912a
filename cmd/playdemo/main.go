// This is the demo entrypoint: it opens a single URL under a target
// format read from a YAML config file and logs one line per frame until
// the stream ends or it's interrupted.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"playhead"
	"playhead/internal/config"
)

func main() {
	configPath := flag.String("config", "configs/playhead.example.yaml", "Path to configuration file")
	url := flag.String("url", "", "Input URL or file path to play")
	loop := flag.Bool("loop", false, "Loop playback at end of stream")
	flag.Parse()

	if *url == "" {
		log.Fatal("missing -url")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	sess, err := playhead.Open(*url, cfg, playhead.Options{Loop: *loop, Out: -1})
	if err != nil {
		log.Fatalf("failed to open %s: %v", *url, err)
	}
	defer sess.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			of, status := sess.NextFrame()
			switch status {
			case playhead.PullOk:
				log.Printf("frame pts=%d duration=%d", of.PTS, of.Duration)
			case playhead.PullLate:
				time.Sleep(2 * time.Millisecond)
			case playhead.PullEOF:
				log.Println("stream ended")
				return
			}
		}
	}()

	select {
	case <-sigCh:
		log.Println("shutting down")
	case <-done:
	}
}
