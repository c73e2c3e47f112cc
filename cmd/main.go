package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/satriahrh/jumpgpt/adapters/llm"
	"github.com/satriahrh/jumpgpt/adapters/memory"
	"github.com/satriahrh/jumpgpt/adapters/mongo"
	"github.com/satriahrh/jumpgpt/adapters/sqlite"
	"github.com/satriahrh/jumpgpt/adapters/stt"
	"github.com/satriahrh/jumpgpt/adapters/tts"
	"github.com/satriahrh/jumpgpt/domain/repositories"
	"github.com/satriahrh/jumpgpt/internal/api"
	"github.com/satriahrh/jumpgpt/internal/audio"
	"github.com/satriahrh/jumpgpt/internal/auth"
	"github.com/satriahrh/jumpgpt/internal/config"
	"github.com/satriahrh/jumpgpt/internal/observe"
	"github.com/satriahrh/jumpgpt/internal/timefmt"
	"github.com/satriahrh/jumpgpt/internal/voice"
	"github.com/satriahrh/jumpgpt/internal/websocket"
	"github.com/satriahrh/jumpgpt/usecase"
)

var version = "dev"

func main() {
	envFile := flag.String("env", ".env", "dotenv file loaded before reading the environment")
	issueToken := flag.String("issue-token", "", "print a client token for this subject and exit")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration:\n%v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	issuer, err := auth.NewIssuer(cfg.JWTSecret, 0, nil)
	if err != nil {
		logger.Fatal("Failed to create token issuer", zap.Error(err))
	}
	if *issueToken != "" {
		token, err := issuer.GenerateClientToken(*issueToken)
		if err != nil {
			logger.Fatal("Failed to issue token", zap.Error(err))
		}
		fmt.Println(token)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, issuer, logger); err != nil {
		logger.Fatal("Server stopped with error", zap.Error(err))
	}
	logger.Info("Server exited")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}
	if lvl == zapcore.DebugLevel {
		return zap.NewDevelopment()
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

func run(ctx context.Context, cfg *config.Config, issuer *auth.Issuer, logger *zap.Logger) error {
	clk := clock.New()

	location, err := cfg.Location()
	if err != nil {
		return err
	}

	provider, err := observe.InitProvider(observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return fmt.Errorf("failed to init metrics: %w", err)
	}
	defer provider.Shutdown(context.Background())

	metrics, err := observe.NewMetrics(provider.MeterProvider)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	// Initialize adapters
	repo, closeRepo, err := newConversationRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	model, err := newLanguageModel(ctx, cfg, logger)
	if err != nil {
		return err
	}
	speechToText, closeSTT, err := newSpeechToText(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSTT()
	textToSpeech, err := newTextToSpeech(cfg, logger)
	if err != nil {
		return err
	}

	recorder, err := audio.NewPortAudioRecorder(cfg.Audio.SampleRate, logger)
	if err != nil {
		return err
	}
	defer recorder.Terminate()

	capture := audio.NewCapture(audio.NewMicrophone(), recorder, "voice", logger)
	player := audio.NewPlayer(audio.NewSpeakerBackend(cfg.Audio.PlaybackSampleRate, logger), logger)
	defer player.Stop()

	// Initialize usecase services
	conversations := usecase.NewConversationService(repo, clk, logger)
	if err := conversations.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to load conversations: %w", err)
	}

	chat := usecase.NewChatService(usecase.ChatConfig{Model: chatModel(cfg)}, conversations, model, metrics, logger)
	defer chat.WaitTitles()

	speech, err := usecase.NewSpeechService(usecase.SpeechConfig{CacheDir: cfg.CacheDir}, textToSpeech, clk, logger)
	if err != nil {
		return err
	}
	playback := usecase.NewPlaybackService(conversations, speech, player, logger)
	transcription := usecase.NewTranscriptionService(speechToText, logger)

	coordinator := voice.NewCoordinator(cfg.Voice, voice.Dependencies{
		Capture:     capture,
		Player:      player,
		Transcriber: transcription,
		Chat:        chat,
		Speech:      speech,
		Clock:       clk,
		Metrics:     metrics,
		Logger:      logger.Named("voice"),
	})
	defer coordinator.Shutdown()

	cleanup := usecase.NewCacheCleanupService(speech, clk, time.Hour, logger)
	cleanup.Start()
	defer cleanup.Stop()

	hub := websocket.NewHub(coordinator, chat, clk, logger)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	api.InitRoutes(e, api.Dependencies{
		Conversations: conversations,
		Chat:          chat,
		Playback:      playback,
		Voice:         coordinator,
		Hub:           hub,
		Issuer:        issuer,
		Formatter:     timefmt.NewFormatter(location, clk),
		Metrics:       provider.Handler(),
		Logger:        logger,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		websocket.Forward(hub, websocket.MessageTypeVoiceState, coordinator.Watch(gctx))
		return nil
	})
	g.Go(func() error {
		websocket.Forward(hub, websocket.MessageTypeConversations, conversations.Watch(gctx))
		return nil
	})
	g.Go(func() error {
		websocket.Forward(hub, websocket.MessageTypePlaybackState, playback.Watch(gctx))
		return nil
	})

	g.Go(func() error {
		logger.Info("Server started", zap.String("port", cfg.Port), zap.String("store", cfg.Store))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Server is shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func chatModel(cfg *config.Config) string {
	switch cfg.LLMProvider {
	case "openai":
		return cfg.OpenAI.ChatModel
	case "gemini":
		return cfg.Gemini.Model
	}
	return ""
}

func newConversationRepository(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.ConversationRepository, func(), error) {
	switch cfg.Store {
	case "sqlite":
		repo, err := sqlite.Open(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { repo.Close() }, nil

	case "mongo":
		client, err := mongo.NewClient(ctx, mongo.Config{URI: cfg.MongoURI, Database: cfg.MongoDB}, logger)
		if err != nil {
			return nil, nil, err
		}
		closeClient := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			client.Close(ctx)
		}
		repo, err := mongo.NewConversationRepository(ctx, client.Database)
		if err != nil {
			closeClient()
			return nil, nil, err
		}
		return repo, closeClient, nil
	}

	logger.Warn("Using in-memory store; conversations are lost on exit")
	return memory.NewConversationRepository(), func() {}, nil
}

func newLanguageModel(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.LargeLanguageModel, error) {
	switch cfg.LLMProvider {
	case "openai":
		return llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.ChatModel,
		}, logger)
	case "gemini":
		return llm.NewGemini(ctx, llm.GeminiConfig{
			APIKey: cfg.Gemini.APIKey,
			Model:  cfg.Gemini.Model,
		}, logger)
	}
	return llm.NewEcho(), nil
}

func newSpeechToText(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.SpeechToText, func(), error) {
	switch cfg.STTProvider {
	case "openai":
		s, err := stt.NewOpenAISpeechToText(stt.OpenAIConfig{
			APIKey:   cfg.OpenAI.APIKey,
			BaseURL:  cfg.OpenAI.BaseURL,
			Language: languageCode(cfg.Audio.Language),
		}, logger)
		return s, func() {}, err
	case "google":
		s, err := stt.NewGoogleSpeechToText(ctx, repositories.AudioConfig{
			SampleRate: cfg.Audio.SampleRate,
			Encoding:   "LINEAR16",
			Language:   cfg.Audio.Language,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	}
	return stt.NewFixedSpeechToText("", logger), func() {}, nil
}

func newTextToSpeech(cfg *config.Config, logger *zap.Logger) (repositories.TextToSpeech, error) {
	switch cfg.TTSProvider {
	case "openai":
		return tts.NewOpenAITTS(tts.OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
		}, logger)
	case "elevenlabs":
		return tts.NewElevenLabsTTS(tts.ElevenLabsConfig{
			APIKey:  cfg.ElevenLabs.APIKey,
			VoiceID: cfg.ElevenLabs.VoiceID,
			ModelID: cfg.ElevenLabs.ModelID,
		}, logger)
	}
	return tts.NewSilentTTS(logger), nil
}

// languageCode reduces a BCP-47 tag such as "en-US" to "en"
func languageCode(tag string) string {
	for i, r := range tag {
		if r == '-' || r == '_' {
			return tag[:i]
		}
	}
	return tag
}
