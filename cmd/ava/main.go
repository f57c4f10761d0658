package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	gapi "google.golang.org/api/option"

	"github.com/rajeev0521/project-AVA/internal/assistant"
	"github.com/rajeev0521/project-AVA/internal/audio"
	"github.com/rajeev0521/project-AVA/internal/auth"
	"github.com/rajeev0521/project-AVA/internal/calendar"
	"github.com/rajeev0521/project-AVA/internal/config"
	"github.com/rajeev0521/project-AVA/internal/ipc"
	"github.com/rajeev0521/project-AVA/internal/nlu"
	"github.com/rajeev0521/project-AVA/internal/proxy"
	"github.com/rajeev0521/project-AVA/internal/tts"
	"github.com/rajeev0521/project-AVA/internal/wakeword"
	"github.com/rajeev0521/project-AVA/pkg/audioconv"
	"github.com/rajeev0521/project-AVA/pkg/stt"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	log.Info("Booting up")

	godotenv.Load(*envFile)
	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("Bad configuration", "err", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("Missing configuration", "err", err)
		os.Exit(1)
	}

	log.Debug("Loaded config")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	aiOpts := []option.RequestOption{option.WithAPIKey(cfg.OpenAIKey)}
	if cfg.SocksProxy != "" {
		httpClient, err := proxy.NewSocksClient(cfg.SocksProxy)
		if err != nil {
			log.Error("Failed to dial socks proxy", "proxy", cfg.SocksProxy, "err", err)
			os.Exit(1)
		}
		aiOpts = append(aiOpts, option.WithHTTPClient(httpClient))
		log.Debug("Loaded proxy")
	}
	client := openai.NewClient(aiOpts...)

	detector, err := wakeword.NewDetector(cfg.PorcupineKey, cfg.KeywordPath, cfg.Sensitivity)
	if err != nil {
		log.Error("Failed to init wake word", "err", err)
		os.Exit(1)
	}
	defer detector.Close()

	log.Debug("Loaded wake word")

	capture := audio.NewCapture(audio.CaptureConfig{})
	if err := capture.Init(); err != nil {
		log.Error("Failed to init audio", "err", err)
		os.Exit(1)
	}
	defer capture.Close()

	if devices, err := capture.InputDevices(); err == nil {
		log.Debug("Input devices", "devices", devices)
	}

	log.Debug("Loaded microphone")

	whisper, err := stt.NewTranscriber(cfg.WhisperModelPath)
	if err != nil {
		log.Error("Failed to init whisper", "err", err)
		os.Exit(1)
	}
	defer whisper.Close()

	log.Debug("Loaded whisper")

	mgr, err := auth.NewManager(auth.Options{
		ClientID:        cfg.GoogleClientID,
		ClientSecret:    cfg.GoogleClientSecret,
		CredentialsFile: cfg.CredentialsFile,
		TokenFile:       cfg.TokenFile,
	})
	if err != nil {
		log.Error("Failed to load Google credentials", "err", err)
		os.Exit(1)
	}
	calClient, err := mgr.HTTPClient(ctx)
	if err != nil {
		log.Error("Failed to authorize calendar access", "err", err)
		os.Exit(1)
	}
	operator, err := calendar.NewOperator(ctx, cfg.CalendarID, cfg.Location, gapi.WithHTTPClient(calClient))
	if err != nil {
		log.Error("Failed to init calendar", "err", err)
		os.Exit(1)
	}

	log.Debug("Loaded calendar")

	player := audio.NewPlayer()
	var voice tts.Synthesizer
	if cfg.VoiceModelPath != "" {
		voice = tts.NewLocal("", cfg.VoiceModelPath, player)
	} else {
		voice = tts.NewHosted(client, cfg.TTSVoice, player)
	}

	log.Debug("Loaded voice", "engine", voice.Name())

	var ducker *audio.Ducker
	if cfg.DuckAudio {
		ducker = audio.NewDucker([]string{"ava"}, 20)
	}

	trigger := make(chan struct{}, 1)
	asst := assistant.New(assistant.Options{
		Listener: &assistant.MicListener{
			Capture:  capture,
			Detector: detector,
			Trigger:  trigger,
		},
		Transcriber: &assistant.WhisperTranscriber{
			Model: whisper,
			Opts:  stt.Options{Language: "en"},
		},
		Extractor: nlu.NewExtractor(client, cfg.Location),
		Operator:  operator,
		Speaker:   voice,
		Composer:  nlu.NewComposer(client, cfg.NaturalReplies),
		Ducker:    ducker,
		Player:    player,
		AckCue:    loadAckCue(cfg.AckCuePath),
		DumpDir:   cfg.UtteranceDumpDir,
	})

	srv, err := ipc.StartServer(cfg.ControlSocket, func(msg ipc.ControlMessage) *ipc.StatusReply {
		switch msg.Cmd {
		case "trigger":
			select {
			case trigger <- struct{}{}:
			default:
			}
			return nil
		case "status":
			return &ipc.StatusReply{
				State:  asst.State(),
				Uptime: asst.Uptime().Round(time.Second).String(),
			}
		default:
			log.Warn("Unknown command", "cmd", msg.Cmd)
			return nil
		}
	})
	if err != nil {
		log.Error("Failed ipc server", "err", err)
		os.Exit(1)
	}
	defer srv.Close()

	log.Debug("Loaded control socket")
	log.Info("Boot up - successful")

	if err := asst.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Assistant died", "err", err)
		os.Exit(1)
	}

	log.Info("Shutting down")
}

// loadAckCue decodes the configured chime, falling back to a short beep.
func loadAckCue(path string) audioconv.Clip {
	if path == "" {
		return audio.Tone(880, 120*time.Millisecond, audio.SampleRate)
	}
	clip, err := audioconv.DecodeFile(path, audioconv.Options{})
	if err != nil {
		log.Warn("Failed to load ack cue, using beep", "path", path, "err", err)
		return audio.Tone(880, 120*time.Millisecond, audio.SampleRate)
	}
	return clip
}
