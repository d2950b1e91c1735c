// Command astro runs the voice-driven control loop for the Astro robot
// companion: wake word, utterance capture, dialogue, and dispatch of
// speech, sound effects, and robot commands — plus the patrol scheduler,
// the remote command channel, and the status server.
package main

import (
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-astro/internal/config"
	"github.com/teslashibe/go-astro/internal/log"
	"github.com/teslashibe/go-astro/pkg/audio"
	"github.com/teslashibe/go-astro/pkg/dialogue"
	"github.com/teslashibe/go-astro/pkg/indicator"
	"github.com/teslashibe/go-astro/pkg/orchestrator"
	"github.com/teslashibe/go-astro/pkg/patrol"
	"github.com/teslashibe/go-astro/pkg/remote"
	"github.com/teslashibe/go-astro/pkg/soundfx"
	"github.com/teslashibe/go-astro/pkg/stt"
	"github.com/teslashibe/go-astro/pkg/tts"
	"github.com/teslashibe/go-astro/pkg/wakeword"
	"github.com/teslashibe/go-astro/pkg/web"
)

// tickInterval is the host cadence for Orchestrator.Tick.
const tickInterval = 100 * time.Millisecond

func main() {
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := config.String("ASTRO_LOG_LEVEL", "info")
	if *debug {
		level = "debug"
	}
	log.Init(level)
	logger := log.Component("main")

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		logger.Error("OPENAI_API_KEY is required")
		os.Exit(1)
	}

	host, err := audio.NewHost()
	if err != nil {
		logger.Error("audio subsystem init failed", "error", err)
		os.Exit(1)
	}
	defer host.Close()

	capCfg := audio.DefaultConfig()
	capCfg.Device = config.Int("ASTRO_AUDIO_DEVICE", audio.AutoDevice)
	capture := audio.NewCapture(host, capCfg)

	wake := wakeword.NewEnergy(wakeword.Config{
		Threshold: config.Float("ASTRO_WAKE_THRESHOLD", 1500),
		Frames:    config.Int("ASTRO_WAKE_FRAMES", 3),
	})

	transcriber := stt.NewClient(stt.Config{
		Endpoint: config.String("ASTRO_STT_URL", "https://api.openai.com/v1/audio/transcriptions"),
		APIKey:   apiKey,
	})

	sounds := soundfx.NewLibrary(config.String("ASTRO_SOUNDS_DIR", "./sounds"))

	patrolSched := patrol.NewScheduler(patrol.DefaultConfig())
	registry := dialogue.NewRegistry()
	registry.Register(dialogue.Tool{
		Name:        "start_patrol",
		Description: "Begin patrolling the house for a while",
		Run: func(args map[string]any) (string, error) {
			patrolSched.Start()
			return "patrol started", nil
		},
	})
	registry.Register(dialogue.Tool{
		Name:        "stop_patrol",
		Description: "Stop the current patrol",
		Run: func(args map[string]any) (string, error) {
			patrolSched.Stop()
			return "patrol stopped", nil
		},
	})

	engine := dialogue.NewClient(dialogue.Config{
		BaseURL: config.String("ASTRO_LLM_URL", "https://api.openai.com/v1"),
		APIKey:  apiKey,
		Model:   config.String("ASTRO_LLM_MODEL", "gpt-4o-mini"),
		Sounds:  sounds.Available(),
	}, registry)

	provider, err := tts.NewOpenAI(apiKey,
		tts.WithVoice(config.String("ASTRO_TTS_VOICE", "onyx")))
	if err != nil {
		logger.Error("tts init failed", "error", err)
		os.Exit(1)
	}
	defer provider.Close()
	speaker := tts.NewLocal(provider, tts.NewExecPlayer())

	var ind indicator.Indicator = indicator.Noop{}
	if headURL := config.String("ASTRO_HEAD_URL", ""); headURL != "" {
		ind = indicator.NewHTTP(headURL)
	}

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.SilenceThreshold = config.Float("ASTRO_SILENCE_THRESHOLD", orchCfg.SilenceThreshold)
	orchCfg.SilenceFrames = config.Int("ASTRO_SILENCE_FRAMES", orchCfg.SilenceFrames)
	orchCfg.Cooldown = config.Duration("ASTRO_COOLDOWN", orchCfg.Cooldown)
	orchCfg.Greeting = config.String("ASTRO_GREETING", "Howdy partner! Astro here, ready to ride.")

	orch, err := orchestrator.New(orchCfg, orchestrator.Deps{
		Capture:     capture,
		Wake:        wake,
		Transcriber: transcriber,
		Engine:      engine,
		Speaker:     speaker,
		Sounds:      sounds,
		Indicator:   ind,
		Patrol:      patrolSched,
	})
	if err != nil {
		logger.Error("orchestrator init failed", "error", err)
		os.Exit(1)
	}

	server := web.NewServer(web.Config{
		Addr:   config.String("ASTRO_STATUS_ADDR", ":8090"),
		Status: orch.Status,
		Inject: orch.Inject,
	})
	orch.OnTransition(func(orchestrator.State) { server.BroadcastStatus() })
	server.StartAsync()

	channel := remote.NewChannel(remote.Config{
		PollURL: config.String("ASTRO_REMOTE_POLL_URL", ""),
		APIKey:  config.String("ASTRO_REMOTE_API_KEY", ""),
	})
	if err := channel.Start(func(text string) {
		orch.Inject("remote", text)
	}); err != nil && !errors.Is(err, remote.ErrDisabled) {
		logger.Error("remote channel failed to start", "error", err)
	}

	if err := orch.Start(); err != nil {
		logger.Error("orchestrator start failed", "error", err)
		os.Exit(1)
	}
	logger.Info("astro is listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			orch.Tick()
		case sig := <-sigCh:
			logger.Info("shutting down", "signal", sig.String())
			channel.Stop()
			orch.Stop()
			server.Shutdown()
			return
		}
	}
}
