// Package main is the entry point for xmiplay.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/milesxmi/xmiseq/pkg/api"
	"github.com/milesxmi/xmiseq/pkg/player"
	"github.com/milesxmi/xmiseq/pkg/sink"
	"github.com/milesxmi/xmiseq/pkg/tui"
	"github.com/milesxmi/xmiseq/pkg/xmi"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	serverPort int
	loopPlay   bool
	sampleRate uint
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "xmiplay",
	Short: "Probe and play XMI (Extended MIDI) files",
	Long: `xmiplay decodes the IFF/FORM-framed XMI container used by the AIL
Miles Sound System and drives a real-time MIDI sequencer from it.

Examples:
  xmiplay probe song.xmi
  xmiplay play song.xmi
  xmiplay tui
  xmiplay tui song.xmi
  xmiplay serve --port 8080`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
}

var probeCmd = &cobra.Command{
	Use:   "probe <input.xmi>",
	Short: "Print an XMI file's metadata without playing it",
	Args:  cobra.ExactArgs(1),
	RunE:  runProbe,
}

var playCmd = &cobra.Command{
	Use:   "play <input.xmi>",
	Short: "Play an XMI file to the console, logging each MIDI message",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlay,
}

var tuiCmd = &cobra.Command{
	Use:   "tui [input.xmi]",
	Short: "Launch the interactive terminal player",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTUI,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE:  runServe,
}

func init() {
	playCmd.Flags().BoolVarP(&loopPlay, "loop", "l", false, "Loop playback")
	playCmd.Flags().UintVarP(&sampleRate, "sample-rate", "r", 44100, "Sample rate in Hz")

	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "Server port")

	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(serveCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	result := xmi.Probe(args[0])
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// runPlay drives playback in real time at a fixed tick cadence, logging
// each MIDI message to stdout via a sink.Logger rather than a real driver.
func runPlay(cmd *cobra.Command, args []string) error {
	logger := log.New(os.Stdout, "", 0)
	pl, err := player.New(args[0], uint32(sampleRate), loopPlay, sink.NewLogger(logger), logger)
	if err != nil {
		return err
	}
	defer pl.Close()

	const tick = 10 * time.Millisecond
	samplesPerTick := uint64(float64(sampleRate) * tick.Seconds())

	for pl.Seq.IsLoaded() {
		pl.Tick(samplesPerTick)
		time.Sleep(tick)
	}
	if drops := pl.Drops(); drops > 0 {
		logger.Printf("warning: %d commands dropped (queue full)", drops)
	}
	return nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	}
	return tui.Run(path)
}

func runServe(cmd *cobra.Command, args []string) error {
	fmt.Printf("Starting API server on port %d...\n", serverPort)
	return api.StartServer(serverPort)
}
