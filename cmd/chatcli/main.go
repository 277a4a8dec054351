package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"docchat/internal/apiclient"
	"docchat/internal/tui"
)

func main() {
	_ = godotenv.Load()

	var (
		baseURL  string
		username string
		password string
		timeout  time.Duration
	)
	flag.StringVar(&baseURL, "server", envOr("DOCCHAT_SERVER", "http://127.0.0.1:8000"), "server base URL")
	flag.StringVar(&username, "user", os.Getenv("DOCCHAT_USER"), "username")
	flag.StringVar(&password, "password", os.Getenv("DOCCHAT_PASSWORD"), "password")
	flag.DurationVar(&timeout, "timeout", 120*time.Second, "per request timeout")
	flag.Parse()

	if username == "" || password == "" {
		fmt.Println("Usage: chatcli --user=NAME --password=SECRET [--server=URL]")
		os.Exit(1)
	}

	client := apiclient.New(apiclient.Config{
		BaseURL:       baseURL,
		Username:      username,
		Password:      password,
		GatewaySecret: os.Getenv("API_GATEWAY_HEADER_SECRET"),
		Timeout:       timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err := client.CheckAuth(ctx)
	cancel()
	if err != nil {
		if errors.Is(err, apiclient.ErrUnauthorized) {
			fmt.Println("Login failed: incorrect username or password.")
		} else {
			fmt.Printf("Cannot reach server: %v\n", err)
		}
		os.Exit(1)
	}

	p := tea.NewProgram(tui.New(client, timeout), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("chat client failed: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
