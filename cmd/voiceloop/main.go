package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/opd-ai/voicelink/audio"
	"github.com/opd-ai/voicelink/config"
	"github.com/opd-ai/voicelink/crypto"
	"github.com/opd-ai/voicelink/limits"
	"github.com/opd-ai/voicelink/receiver"
	"github.com/opd-ai/voicelink/session"
	"github.com/opd-ai/voicelink/transport"
	"github.com/sirupsen/logrus"
)

const (
	talkerSSRC = 0x1001
	talkerID   = receiver.SpeakerID(1)
)

// CLIConfig holds the command-line options.
type CLIConfig struct {
	configPath string
	input      string
	output     string
	format     string
	mode       string
	timeout    time.Duration
	settle     time.Duration
	help       bool
}

// LoopResult summarizes one loopback run.
type LoopResult struct {
	Mode         string
	FramesSent   uint64
	FramesHeard  int
	BytesWritten int
}

// parseCLIFlags parses command-line flags and returns the configuration.
func parseCLIFlags() *CLIConfig {
	c := &CLIConfig{}

	flag.StringVar(&c.configPath, "config", "", "YAML configuration file (default: built-in defaults)")
	flag.StringVar(&c.input, "in", "", "Input file: raw s16le PCM or length-prefixed Opus packets")
	flag.StringVar(&c.output, "out", "", "Output file for the received frames")
	flag.StringVar(&c.format, "format", "opus", "Input format (opus, pcm)")
	flag.StringVar(&c.mode, "mode", "", "Force an encryption mode (default: negotiate)")
	flag.DurationVar(&c.timeout, "timeout", 5*time.Minute, "Overall run timeout")
	flag.DurationVar(&c.settle, "settle", 200*time.Millisecond, "Time to wait for in-flight frames after playback ends")
	flag.BoolVar(&c.help, "help", false, "Show help message")

	flag.Parse()
	return c
}

// printUsage prints the usage information.
func printUsage() {
	fmt.Println("voiceloop: voice transport loopback")
	fmt.Println()
	fmt.Println("Plays an input file through a sending session and a receiving session")
	fmt.Println("connected over localhost UDP, and writes what the receiver heard.")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  %s -in <file> -out <file> [options]\n", os.Args[0])
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Raw PCM is sent unencoded, so its frames must fit one datagram")
	fmt.Println("(for example audio.channels 1 and audio.sampling_rate 8000).")
}

// validateCLIConfig validates the CLI configuration.
func validateCLIConfig(c *CLIConfig) error {
	if c.input == "" {
		return fmt.Errorf("input file is required")
	}
	if c.output == "" {
		return fmt.Errorf("output file is required")
	}
	if c.format != "opus" && c.format != "pcm" {
		return fmt.Errorf("format must be opus or pcm, got %q", c.format)
	}
	if c.mode != "" {
		if _, ok := crypto.LookupMode(c.mode); !ok {
			return fmt.Errorf("unsupported encryption mode %q", c.mode)
		}
	}
	if c.timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.settle < 0 {
		return fmt.Errorf("settle time cannot be negative")
	}
	return nil
}

// loadConfig reads the configuration file, applies the environment and
// validates the result.
func loadConfig(path string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openSource opens the input in the requested format.
func openSource(c *CLIConfig, settings audio.Settings) (audio.Source, error) {
	if c.format == "pcm" && settings.FrameSize() > limits.MaxVoicePayload {
		return nil, fmt.Errorf("PCM frames of %d bytes exceed the %d byte voice payload; use opus input or a smaller format",
			settings.FrameSize(), limits.MaxVoicePayload)
	}

	f, err := os.Open(c.input)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	if c.format == "pcm" {
		return audio.NewPCMSource(f, settings), nil
	}
	return audio.NewOpusPacketSource(f), nil
}

// runLoopback plays the input from one session to another and writes
// every frame the listener receives to the output.
//
// Parameters:
//   - ctx: bounds the whole run
//   - c: the command-line options
//   - cfg: the validated session configuration
//
// Returns:
//   - *LoopResult: frame counts of the run
//   - error: setup or transport failures
func runLoopback(ctx context.Context, c *CLIConfig, cfg *config.Config) (*LoopResult, error) {
	settings, err := cfg.AudioSettings()
	if err != nil {
		return nil, err
	}
	src, err := openSource(c, settings)
	if err != nil {
		return nil, err
	}
	// The player owns src once it is enqueued.
	owned := true
	defer func() {
		if owned {
			_ = src.Close()
		}
	}()

	out, err := os.Create(c.output)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	defer out.Close()

	talkerUDP, err := transport.NewUDPTransport("127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	defer talkerUDP.Close()
	listenerUDP, err := transport.NewUDPTransport("127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	defer listenerUDP.Close()

	trail := cfg.Voice.SilenceTrail
	if c.format == "pcm" || trail == 0 {
		trail = -1
	}
	talker, err := session.New(session.Options{
		Transport:    talkerUDP,
		SSRC:         talkerSSRC,
		Modes:        cfg.Voice.Modes,
		Settings:     settings,
		Encoder:      audio.NewPassthroughEncoder(settings),
		SilenceTrail: trail,
	})
	if err != nil {
		return nil, err
	}
	defer talker.Close()

	listener, err := session.New(session.Options{
		Transport:   listenerUDP,
		SSRC:        talkerSSRC + 1,
		Modes:       cfg.Voice.Modes,
		Settings:    settings,
		MaxBuffered: cfg.Voice.MaxBuffered,
	})
	if err != nil {
		return nil, err
	}
	defer listener.Close()

	mode := c.mode
	if mode == "" {
		if mode, err = listener.Negotiate(cfg.Voice.Modes); err != nil {
			return nil, err
		}
	}

	key := make([]byte, crypto.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate session key: %w", err)
	}
	defer crypto.ZeroBytes(key)

	if err := talker.Establish(key, mode, "127.0.0.1", addrPort(listenerUDP.LocalAddr())); err != nil {
		return nil, err
	}
	if err := listener.Establish(key, mode, "127.0.0.1", addrPort(talkerUDP.LocalAddr())); err != nil {
		return nil, err
	}

	stream, err := listener.Listen(talkerID, receiver.Encoded)
	if err != nil {
		return nil, err
	}
	listener.SourceAssigned(talkerID, talkerSSRC)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	errs := make(chan error, 2)
	go func() { errs <- talker.Run(runCtx) }()
	go func() { errs <- listener.Run(runCtx) }()

	p, err := talker.Player()
	if err != nil {
		return nil, err
	}
	if err := p.Enqueue(src); err != nil {
		return nil, err
	}
	owned = false

	logrus.WithFields(logrus.Fields{
		"function": "runLoopback",
		"mode":     mode,
		"format":   c.format,
		"settings": settings.String(),
	}).Info("Loopback started")

	result := &LoopResult{Mode: mode}
	if err := drain(ctx, stream, p.IsPlaying, c, out, result); err != nil {
		return result, err
	}
	result.FramesSent = p.Stats().Sent

	_ = talker.Close()
	_ = listener.Close()
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil && !errors.Is(err, context.Canceled) {
			return result, err
		}
	}
	return result, nil
}

// drain copies received frames to out until the talker has finished its
// input and nothing more arrived for the settle period.
func drain(ctx context.Context, stream *receiver.Stream, playing func() bool, c *CLIConfig, out io.Writer, result *LoopResult) error {
	var quietSince time.Time
	for {
		if stream.Buffered() > 0 {
			frame, ok := stream.Read()
			if !ok {
				return nil
			}
			if err := writeFrame(out, c.format, frame, result); err != nil {
				return err
			}
			quietSince = time.Time{}
			continue
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		if !playing() {
			if quietSince.IsZero() {
				quietSince = time.Now()
			} else if time.Since(quietSince) >= c.settle {
				return nil
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func writeFrame(out io.Writer, format string, frame []byte, result *LoopResult) error {
	result.FramesHeard++
	if format == "opus" {
		if err := audio.WriteOpusPacket(out, frame); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		result.BytesWritten += 2 + len(frame)
		return nil
	}
	n, err := out.Write(frame)
	result.BytesWritten += n
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func addrPort(a net.Addr) int {
	if u, ok := a.(*net.UDPAddr); ok {
		return u.Port
	}
	return 0
}

// setupSignalHandling cancels the run on interrupt.
func setupSignalHandling(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	go func() {
		sig := <-sigChan
		fmt.Printf("\nReceived signal %v, shutting down...\n", sig)
		cancel()
	}()
}

func main() {
	cli := parseCLIFlags()
	if cli.help {
		printUsage()
		os.Exit(0)
	}

	if err := validateCLIConfig(cli); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Use -help for usage information.\n")
		os.Exit(1)
	}

	cfg, err := loadConfig(cli.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.SetupLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cli.timeout)
	defer cancel()
	setupSignalHandling(cancel)

	result, err := runLoopback(ctx, cli, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Loopback failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Mode %s: sent %d frames, heard %d frames, wrote %d bytes to %s\n",
		result.Mode, result.FramesSent, result.FramesHeard, result.BytesWritten, cli.output)
}
