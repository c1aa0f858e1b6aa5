package main

import (
	"context"
	"embed"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	microphone "github.com/deepgram/deepgram-go-sdk/v3/pkg/audio/microphone"
	"github.com/joho/godotenv"

	"github.com/sjawhar/ghost-interviewer/internal/api"
	"github.com/sjawhar/ghost-interviewer/internal/call"
	"github.com/sjawhar/ghost-interviewer/internal/config"
	"github.com/sjawhar/ghost-interviewer/internal/server"
	"github.com/sjawhar/ghost-interviewer/internal/voice"
)

//go:embed static/*
var staticFiles embed.FS

// questionList collects repeated -question flags.
type questionList []string

func (q *questionList) String() string { return strings.Join(*q, "; ") }

func (q *questionList) Set(v string) error {
	if v = strings.TrimSpace(v); v != "" {
		*q = append(*q, v)
	}
	return nil
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: load .env: %v", err)
	}

	var questions questionList
	configPath := flag.String("config", envOrDefault(config.EnvPrefix+"CONFIG", "config.yaml"), "path to config file")
	userName := flag.String("user-name", "", "name shown on the user card")
	userID := flag.String("user-id", "", "signed-in user id")
	interviewID := flag.String("interview-id", "", "existing interview id (fixed mode)")
	feedbackID := flag.String("feedback-id", "", "feedback record to overwrite")
	mode := flag.String("mode", string(call.ModeGenerate), "generate or fixed")
	flag.Var(&questions, "question", "interview question (repeatable, fixed mode)")
	flag.Parse()

	log.Println("ghost-interviewer: starting")

	cfg, warnings, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	for _, w := range warnings {
		log.Printf("warning: %s", w)
	}

	callMode := call.Mode(*mode)
	if callMode != call.ModeGenerate && callMode != call.ModeFixed {
		log.Fatalf("invalid -mode %q: expected generate or fixed", *mode)
	}

	persist := api.NewClient(cfg.APIURL, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if callMode == call.ModeFixed && len(questions) == 0 && *interviewID != "" {
		iv, err := persist.GetInterview(ctx, *interviewID)
		if err != nil {
			log.Printf("warning: load interview %s: %v", *interviewID, err)
		} else {
			questions = iv.Questions
			log.Printf("loaded %d questions for interview %s", len(questions), *interviewID)
		}
	}

	microphone.Initialize()
	defer microphone.Teardown()
	voice.Init()

	mic := voice.NewMicrophone(cfg.SampleRateCandidates())

	var session call.SessionClient
	switch cfg.Backend() {
	case config.BackendAgent:
		session = voice.NewAgentClient(cfg.AgentURL, cfg.AgentToken, mic)
		log.Printf("session backend: agent at %s", cfg.AgentURL)
	default:
		session = voice.NewDeepgramSession(voice.DeepgramOptions{
			APIKey:   cfg.DeepgramAPIKey,
			Model:    cfg.DeepgramModel,
			Language: cfg.DeepgramLanguage,
		}, mic)
		log.Printf("session backend: deepgram %s", cfg.DeepgramModel)
	}

	hub := server.NewHub()
	ctrl := call.NewController(call.Props{
		UserName:    *userName,
		UserID:      *userID,
		InterviewID: *interviewID,
		FeedbackID:  *feedbackID,
		Mode:        callMode,
		Questions:   questions,
	}, call.Deps{
		Session:   session,
		Store:     persist,
		Navigator: hub,
		Alerter:   hub,
		Mic:       mic,
		Agent:     cfg.Agent(),
	})
	defer ctrl.Close()

	ctrl.OnChange(func(s call.Snapshot) { hub.BroadcastView(call.Render(s)) })
	hub.BroadcastView(call.Render(ctrl.Snapshot()))

	assets, err := fs.Sub(staticFiles, "static")
	if err != nil {
		log.Fatalf("static assets init failed: %v", err)
	}

	backend, err := url.Parse(cfg.APIURL)
	if err != nil {
		log.Fatalf("invalid api_url %q: %v", cfg.APIURL, err)
	}

	handler, err := server.Handler(server.Options{
		StaticFS: assets,
		Hub:      hub,
		Call:     ctrl,
		Backend:  backend,
	})
	if err != nil {
		log.Fatalf("build http handler failed: %v", err)
	}

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: handler}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
		}
	}()

	log.Printf("ghost-interviewer: call UI on %s", displayURL(cfg.ListenAddr))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("ghost-interviewer: shutting down")

	// Ending an active call still saves feedback, which can take a while.
	endCtx, endCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer endCancel()
	if err := ctrl.End(endCtx); err != nil {
		log.Printf("warning: end call failed: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("warning: http shutdown failed: %v", err)
	}
}

func displayURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return fmt.Sprintf("http://127.0.0.1%s", addr)
	}
	return "http://" + addr
}

func envOrDefault(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
