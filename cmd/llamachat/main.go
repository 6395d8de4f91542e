package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"LlamaChat/internal/chatbot"
	"LlamaChat/internal/config"
)

func main() {
	var envFile, logDir, dbPath, systemPrompt string
	var verbose, debug bool

	flag.StringVar(&envFile, "env", ".env", "Optional dotenv file with HF_API_LLAMA2_BASE and HF_API_KEY")
	flag.BoolVar(&verbose, "verbose", false, "Echo every reply as LLAMA2: <reply>")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.StringVar(&logDir, "log-dir", "logs", "Directory for logs, traces and metrics")
	flag.StringVar(&dbPath, "db", "", "SQLite transcript archive (disabled when empty)")
	flag.StringVar(&systemPrompt, "system", "", "System prompt of the default session")
	flag.Parse()

	src, err := config.NewEnvSource(envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read configuration: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.FromSource(src)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	cfg.Verbose = verbose
	cfg.Debug = debug
	cfg.LogDir = logDir
	cfg.DBPath = dbPath
	cfg.EnvFile = envFile

	bot, err := chatbot.NewChatBot(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize chatbot: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	// restore default handling so a second interrupt kills a blocked read
	go func() {
		<-ctx.Done()
		stop()
	}()
	runErr := bot.Run(ctx, systemPrompt)
	stop()

	if err := bot.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		os.Exit(1)
	}
}
