package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/leandrodaf/midiplayer/internal/logger"
	"github.com/leandrodaf/midiplayer/sdk/contracts"
	"github.com/leandrodaf/midiplayer/sdk/midi"
	gomidi "gitlab.com/gomidi/midi/v2"
)

func main() {
	log := logger.NewZapLogger()

	if len(os.Args) < 2 {
		fmt.Println("usage: simple_use <file.mid>")
		return
	}
	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Error("Failed to read MIDI file", log.Field().Error("error", err))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	seq, err := midi.NewSequencer(
		contracts.WithLogger(log),
		contracts.WithLogLevel(contracts.InfoLevel),
		contracts.WithMidiHandler(func(msg gomidi.Message, time float64) error {
			log.Info("MIDI Event",
				log.Field().Float64("Time", time),
				log.Field().String("Message", msg.String()),
			)
			return nil
		}),
		contracts.WithEndHandler(func() { stop() }),
	)
	if err != nil {
		log.Error("Failed to initialize sequencer", log.Field().Error("error", err))
		return
	}
	defer seq.Close()

	if err = seq.LoadFile(data); err != nil {
		log.Error("Failed to load MIDI file", log.Field().Error("error", err))
		return
	}
	seq.SetPlaying(true)

	fmt.Printf("Playing %s (%.1fs)... Press Ctrl+C to exit.\n", os.Args[1], seq.Duration())
	if err = seq.Drive(ctx); err != nil {
		log.Error("Playback stopped", log.Field().Error("error", err))
	}
}
