package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/normanking/talkinghead/internal/emotion"
	"github.com/normanking/talkinghead/internal/logging"
	"github.com/normanking/talkinghead/internal/phoneme"
	"github.com/normanking/talkinghead/internal/posestream"
	"github.com/normanking/talkinghead/internal/tts"
)

// signalContext is cancelled on interrupt or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newSpeakCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "speak [text...]",
		Short: "Speak text once and exit when playback ends",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			go a.animator.Run(ctx)

			id, err := a.engine.Speak(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			a.logger.Info().Str("session", id).Msg("Speaking")

			if err := a.engine.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	return cmd
}

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and WebSocket pose stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := newApp(true)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr != "" {
				a.config.Server.Addr = addr
			}

			detach := a.hub.Attach(a.bus)
			defer detach()

			opts := []posestream.Option{posestream.WithLogs(a.logs)}
			if a.config.Chat.Enabled {
				opts = append(opts, posestream.WithChat(a.newChat()))
			}
			server := posestream.NewServer(a.logger, a.config.Server.Addr, a.hub, a.engine, opts...)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				a.hub.Run(ctx)
				return nil
			})
			g.Go(func() error { return a.animator.Run(ctx) })
			if path := a.config.Avatar.VisemeMap; path != "" && a.config.Avatar.WatchVisemeMap {
				g.Go(func() error { return a.visemes.Watch(ctx, path) })
			}
			g.Go(func() error { return server.Start(ctx) })

			err = g.Wait()
			a.logger.Info().Msg("Server exited")
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func newChatCmd() *cobra.Command {
	var silent bool

	cmd := &cobra.Command{
		Use:   "chat [message...]",
		Short: "Talk to the configured language model and speak its replies",
		Long: `Send one message when arguments are given, otherwise read messages from
standard input until EOF or "exit".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			go a.animator.Run(ctx)
			session := a.newChat()

			reply := func(text string) error {
				answer, err := session.Send(ctx, text)
				if err != nil {
					return err
				}
				fmt.Println(answer)
				if silent {
					return nil
				}
				if _, err := a.engine.Speak(ctx, tts.Sanitize(answer)); err != nil {
					return err
				}
				return a.engine.Wait(ctx)
			}

			if len(args) > 0 {
				return reply(strings.Join(args, " "))
			}

			fmt.Printf("Chatting as %s. Type \"exit\" to quit.\n", a.personalities.Current().Name)
			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				switch line {
				case "":
					continue
				case "exit", "quit":
					return nil
				}
				if err := reply(line); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					fmt.Fprintln(os.Stderr, "Error:", err)
				}
			}
		},
	}
	cmd.Flags().BoolVar(&silent, "silent", false, "print replies without speaking them")
	return cmd
}

// toolConfigs loads the logger and tool settings for commands that do not need
// the audio pipeline.
func toolConfigs() (*logging.Logger, *phoneme.Config, *tts.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logs, err := newLogger(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	phonemes := &phoneme.Config{
		BinaryPath: cfg.Phonemizer.BinaryPath,
		DataPath:   cfg.Phonemizer.DataPath,
		Language:   cfg.Phonemizer.Language,
		Timeout:    cfg.Phonemizer.Timeout,
	}
	voices := &tts.Config{
		BinaryPath: cfg.TTS.BinaryPath,
		ModelsDir:  cfg.TTS.ModelsDir,
		Voice:      cfg.TTS.Voice,
		OutputDir:  cfg.TTS.OutputDir,
		Timeout:    cfg.TTS.Timeout,
	}
	return logs, phonemes, voices, nil
}

func newPhonemesCmd() *cobra.Command {
	var language string

	cmd := &cobra.Command{
		Use:   "phonemes [text...]",
		Short: "Print the phoneme sequence for text as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logs, pcfg, _, err := toolConfigs()
			if err != nil {
				return err
			}
			defer logs.Close()

			if language == "" {
				language = pcfg.Language
			}
			symbols, err := phoneme.NewExtractor(logs.Zerolog(), pcfg).Extract(cmd.Context(), strings.Join(args, " "), language)
			if err != nil {
				return err
			}
			return printJSON(symbols)
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", "", "espeak voice (overrides phonemizer.language)")
	return cmd
}

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify [text...]",
		Short: "Print the emotion detected in text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(emotion.NewClassifier().Analyze(strings.Join(args, " ")))
		},
	}
}

func newVoicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List installed Piper voices",
		RunE: func(cmd *cobra.Command, args []string) error {
			logs, _, tcfg, err := toolConfigs()
			if err != nil {
				return err
			}
			defer logs.Close()

			voices, err := tts.NewPiperSynthesizer(logs.Zerolog(), tcfg).ListVoices()
			if err != nil {
				return err
			}
			if len(voices) == 0 {
				fmt.Printf("No voices found in %s\n", tcfg.ModelsDir)
				return nil
			}
			for _, v := range voices {
				marker := " "
				if v.ID == tcfg.Voice {
					marker = "*"
				}
				fmt.Printf("%s %-30s %s\n", marker, v.ID, v.Path)
			}
			return nil
		},
	}
}

func newPersonalitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "personalities",
		Short: "List available personalities",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logs, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logs.Close()

			m := loadPersonalities(logs.Zerolog(), cfg.Personality)
			current := m.Current().Name
			for _, name := range m.Names() {
				p, _ := m.Get(name)
				marker := " "
				if name == current {
					marker = "*"
				}
				fmt.Printf("%s %-14s %-10s %s\n", marker, p.Name, p.DefaultEmotion, p.Description)
			}
			return nil
		},
	}
}
