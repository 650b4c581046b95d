package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/voice-interview/client/internal/config"
	"github.com/zhouzirui/voice-interview/client/internal/service/auth"
	"github.com/zhouzirui/voice-interview/client/internal/service/interview"
	"github.com/zhouzirui/voice-interview/client/internal/service/lifecycle"
	"github.com/zhouzirui/voice-interview/client/internal/service/speech"
	"github.com/zhouzirui/voice-interview/client/internal/ui"
)

const usage = `usage: interview [command] [flags]

commands:
  run      take the interview (default)
  login    sign in: interview login -email E -password P
  logout   sign out and forget stored credentials`

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := auth.OpenFileStore(cfg.Client.CredentialsFile)
	if err != nil {
		log.Fatalf("打开凭据文件失败: %v", err)
	}
	client := auth.NewClient(cfg.Client.APIBaseURL, store, cfg.Client.RequestTimeout)

	command, args := "run", os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		command, args = args[0], args[1:]
	}

	switch command {
	case "login":
		err = runLogin(ctx, client, args)
	case "logout":
		err = client.Logout(ctx)
		if err == nil {
			fmt.Println("Signed out.")
		}
	case "run":
		err = runInterview(ctx, stop, cfg, store, client, args)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", command, err)
	}
}

func runLogin(ctx context.Context, client *auth.Client, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "candidate email")
	password := fs.String("password", "", "candidate password")
	fs.Parse(args)
	if *email == "" || *password == "" {
		fs.Usage()
		return errors.New("email and password are required")
	}

	user, err := client.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	name, _ := user["name"].(string)
	if name == "" {
		name = *email
	}
	fmt.Printf("Signed in as %s.\n", name)
	return nil
}

func runInterview(ctx context.Context, quit context.CancelFunc, cfg *config.Config, store auth.Store, client *auth.Client, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	engine := fs.String("engine", cfg.Speech.Engine, "speech engine: console or volcengine")
	fs.Parse(args)

	mic, err := lifecycle.MicrophoneFor(cfg.Audio)
	if err != nil {
		return err
	}

	console := ui.NewConsole(os.Stdout)
	console.Quit = quit

	var engines lifecycle.EngineFactory
	switch *engine {
	case "console":
		rec := speech.NewConsoleRecognizer()
		console.Recognizer = rec
		console.EchoPrompts = false
		engines = func(speech.FrameSource) (speech.Synthesizer, speech.Recognizer, error) {
			return speech.NewConsoleSynthesizer(os.Stdout), rec, nil
		}
	case "volcengine":
		player, err := lifecycle.PlayerFor(cfg.Audio)
		if err != nil {
			return err
		}
		engines = func(source speech.FrameSource) (speech.Synthesizer, speech.Recognizer, error) {
			if err := speech.CheckCredentials(cfg.Speech); err != nil {
				return nil, nil, err
			}
			return speech.NewVolcengineSynthesizer(cfg.Speech, player), speech.NewVolcengineRecognizer(cfg.Speech, source), nil
		}
	default:
		return fmt.Errorf("unknown speech engine %q", *engine)
	}

	manager := lifecycle.NewManager(cfg, lifecycle.Deps{
		Microphone: mic,
		Engines:    engines,
		Store:      store,
		Notifier:   client,
		Phone:      client,
		UI:         console,
	})
	console.Level = manager.Level

	go console.Serve(ctx, os.Stdin)

	if err := manager.Start(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	fmt.Println("Type /help for commands.")

	reason, err := manager.Run(ctx)
	if errors.Is(err, lifecycle.ErrNotLoggedIn) {
		fmt.Fprintln(os.Stderr, "You are not signed in. Run `interview login -email E -password P` first.")
		return nil
	}
	if err != nil {
		return err
	}
	if reason == interview.EndAuthFailed {
		os.Exit(1)
	}
	return nil
}
