// voicectl is a small command line front end for the voice SDK: synthesize
// speech over REST, SSE or websocket and hold a conversational agent session.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	appconfig "github.com/talktopc/voice-sdk-go/internal/config"
	applogger "github.com/talktopc/voice-sdk-go/internal/logger"
	"github.com/talktopc/voice-sdk-go/internal/storage"
	"github.com/talktopc/voice-sdk-go/pkg/agent"
	"github.com/talktopc/voice-sdk-go/pkg/audio"
	"github.com/talktopc/voice-sdk-go/pkg/tts"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "synthesize":
		err = runSynthesize(args)
	case "stream":
		err = runStream(args)
	case "speak":
		err = runSpeak(args)
	case "agent":
		err = runAgent(args)
	case "artifacts":
		err = runArtifacts(args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "voicectl:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: voicectl <command> [flags]

commands:
  synthesize  one-shot REST synthesis, optionally saved to disk
  stream      SSE synthesis, chunks written to stdout or saved
  speak       websocket synthesis, chunks written to stdout or saved
  agent       hold an agent session until interrupted, logging messages
  artifacts   list or delete saved audio`)
}

type commonFlags struct {
	configPath string
	voiceID    string
	speed      float64
	profile    string
	save       bool
}

func registerCommon(fs *flag.FlagSet) *commonFlags {
	cf := &commonFlags{}
	fs.StringVar(&cf.configPath, "config", "", "path to voicectl.yaml")
	fs.StringVar(&cf.voiceID, "voice", "", "voice id (overrides config)")
	fs.Float64Var(&cf.speed, "speed", 0, "speech speed 0.1-3.0 (overrides config)")
	fs.StringVar(&cf.profile, "profile", "", "output format profile name")
	fs.BoolVar(&cf.save, "save", false, "save audio under output_dir")
	return cf
}

type app struct {
	cfg    appconfig.Config
	logger *zap.Logger
}

func newApp(configPath string) (*app, error) {
	cfg, err := appconfig.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := applogger.New(cfg.Log)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return &app{cfg: cfg, logger: logger}, nil
}

func (a *app) buildRequest(text string, cf *commonFlags) (tts.Request, error) {
	voiceID := cf.voiceID
	if voiceID == "" {
		voiceID = a.cfg.Voice.ID
	}
	speed := cf.speed
	if speed == 0 {
		speed = a.cfg.Voice.Speed
	}

	opts := []tts.Option{}
	if speed != 0 {
		opts = append(opts, tts.WithSpeed(speed))
	}

	profileName := cf.profile
	if profileName == "" {
		profileName = a.cfg.Voice.Profile
	}
	frameMs := a.cfg.Voice.FrameDurationMs
	if profileName != "" {
		profiles, err := appconfig.LoadProfiles(a.cfg.ProfilesPath)
		if err != nil {
			return tts.Request{}, err
		}
		format, profileFrameMs, err := appconfig.ResolveProfile(profiles, profileName)
		if err != nil {
			return tts.Request{}, err
		}
		opts = append(opts, tts.WithOutputFormat(format))
		if frameMs == 0 {
			frameMs = profileFrameMs
		}
	}
	if frameMs > 0 {
		opts = append(opts, tts.WithFrameDuration(frameMs))
	}

	return tts.NewRequest(text, voiceID, opts...)
}

func (a *app) saveArtifact(request tts.Request, data []byte, durationMs int64, conversationID string) error {
	store, err := storage.NewStore(a.cfg.OutputDir)
	if err != nil {
		return err
	}
	artifact, err := store.Save(request.VoiceID, request.Output, data, durationMs, conversationID)
	if err != nil {
		return err
	}
	a.logger.Info("audio saved",
		zap.String("uid", artifact.UID),
		zap.String("path", store.AudioPath(artifact)),
		zap.Int("size_bytes", artifact.SizeBytes),
	)
	return nil
}

func runSynthesize(args []string) error {
	fs := flag.NewFlagSet("synthesize", flag.ExitOnError)
	cf := registerCommon(fs)
	text := fs.String("text", "", "text to synthesize")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(cf.configPath)
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	request, err := a.buildRequest(*text, cf)
	if err != nil {
		return err
	}

	client := tts.NewClient(a.cfg.ClientConfig(), a.logger)
	response, err := client.Synthesize(context.Background(), request)
	if err != nil {
		return err
	}
	a.logger.Info("synthesis complete",
		zap.Int("audio_bytes", len(response.Audio)),
		zap.Int64("duration_ms", response.DurationMs),
		zap.Float64("credits_used", response.CreditsUsed),
	)

	if cf.save {
		return a.saveArtifact(request, response.Audio, response.DurationMs, response.ConversationID)
	}
	_, err = os.Stdout.Write(response.Audio)
	return err
}

func runStream(args []string) error {
	fs := flag.NewFlagSet("stream", flag.ExitOnError)
	cf := registerCommon(fs)
	text := fs.String("text", "", "text to synthesize")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(cf.configPath)
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	request, err := a.buildRequest(*text, cf)
	if err != nil {
		return err
	}

	var collected []byte
	var metadata tts.StreamMetadata
	client := tts.NewClient(a.cfg.ClientConfig(), a.logger)
	err = client.Stream(context.Background(), request, tts.StreamCallbacks{
		OnChunk: func(chunk []byte) {
			if cf.save {
				collected = append(collected, chunk...)
				return
			}
			_, _ = os.Stdout.Write(chunk)
		},
		OnComplete: func(m tts.StreamMetadata) {
			metadata = m
			a.logger.Info("stream complete", zap.String("metadata", m.String()))
		},
		OnError: func(err error) {
			a.logger.Warn("stream error", zap.Error(err))
		},
	})
	if err != nil {
		return err
	}
	if cf.save {
		return a.saveArtifact(request, collected, metadata.DurationMs, metadata.ConversationID)
	}
	return nil
}

func runSpeak(args []string) error {
	fs := flag.NewFlagSet("speak", flag.ExitOnError)
	cf := registerCommon(fs)
	text := fs.String("text", "", "text to synthesize")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(cf.configPath)
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	request, err := a.buildRequest(*text, cf)
	if err != nil {
		return err
	}

	var collected []byte
	var metadata tts.StreamMetadata
	done := make(chan error, 1)
	client := tts.NewClient(a.cfg.ClientConfig(), a.logger)
	ws, err := client.SynthesizeWebSocket(context.Background(), request, tts.WSCallbacks{
		OnChunk: func(chunk []byte) {
			if cf.save {
				collected = append(collected, chunk...)
				return
			}
			_, _ = os.Stdout.Write(chunk)
		},
		OnComplete: func(m tts.StreamMetadata) {
			metadata = m
			select {
			case done <- nil:
			default:
			}
		},
		OnError: func(err error) {
			select {
			case done <- err:
			default:
			}
		},
	})
	if err != nil {
		return err
	}
	defer ws.Close()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-time.After(5 * time.Minute):
		return fmt.Errorf("websocket synthesis timed out")
	}

	a.logger.Info("websocket synthesis complete", zap.String("metadata", metadata.String()))
	if cf.save {
		return a.saveArtifact(request, collected, metadata.DurationMs, metadata.ConversationID)
	}
	return nil
}

func runAgent(args []string) error {
	fs := flag.NewFlagSet("agent", flag.ExitOnError)
	configPath := fs.String("config", "", "path to voicectl.yaml")
	save := fs.Bool("save", false, "save received audio under output_dir")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	agentCfg := a.cfg.AgentClientConfig()
	profiles, err := appconfig.LoadProfiles(a.cfg.ProfilesPath)
	if err != nil {
		return err
	}
	if name := a.cfg.Agent.InputProfile; name != "" {
		format, _, err := appconfig.ResolveProfile(profiles, name)
		if err != nil {
			return err
		}
		agentCfg.InputFormat = format
	}
	if name := a.cfg.Agent.OutputProfile; name != "" {
		format, frameMs, err := appconfig.ResolveProfile(profiles, name)
		if err != nil {
			return err
		}
		agentCfg.OutputFormat = format
		if agentCfg.FrameDurationMs == 0 {
			agentCfg.FrameDurationMs = frameMs
		}
	}

	var collected []byte
	var negotiated audio.Format
	client := agent.NewClient(agentCfg, a.logger)
	client.OnFormatNegotiated(func(format audio.Format) {
		negotiated = format
		a.logger.Info("session format", zap.String("output_format", format.String()))
	})
	client.OnAudio(func(data []byte) {
		if *save {
			collected = append(collected, data...)
			return
		}
		_, _ = os.Stdout.Write(data)
	})
	client.OnMessage(func(message agent.Message) {
		a.logger.Info("agent message", zap.String("t", message.T), zap.ByteString("payload", message.Raw))
	})
	client.OnError(func(err error) {
		a.logger.Warn("agent error", zap.Error(err))
	})
	client.OnDisconnected(func() {
		a.logger.Info("agent disconnected")
	})

	if err := client.Connect(context.Background()); err != nil {
		return err
	}
	defer client.Close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	if *save && len(collected) > 0 {
		store, err := storage.NewStore(a.cfg.OutputDir)
		if err != nil {
			return err
		}
		artifact, err := store.Save(a.cfg.Agent.AgentID, negotiated, collected, 0, "")
		if err != nil {
			return err
		}
		a.logger.Info("session audio saved", zap.String("uid", artifact.UID))
	}
	return nil
}

func runArtifacts(args []string) error {
	fs := flag.NewFlagSet("artifacts", flag.ExitOnError)
	configPath := fs.String("config", "", "path to voicectl.yaml")
	remove := fs.String("delete", "", "artifact uid to delete")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	store, err := storage.NewStore(a.cfg.OutputDir)
	if err != nil {
		return err
	}

	if *remove != "" {
		if !store.Delete(*remove) {
			return fmt.Errorf("artifact %q not found", *remove)
		}
		fmt.Println("deleted", *remove)
		return nil
	}

	for _, artifact := range store.List() {
		fmt.Printf("%s  %s  %s  %d bytes\n",
			artifact.UID, artifact.VoiceID, artifact.Format.String(), artifact.SizeBytes)
	}
	return nil
}
