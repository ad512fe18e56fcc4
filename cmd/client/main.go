package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aeolun/chatrelay/pkg/client"
	"github.com/aeolun/chatrelay/pkg/client/ui"
)

var (
	// Version is set at build time via ldflags
	Version = "dev"
)

func main() {
	server := flag.String("server", "localhost:8080", "Relay address (host:port)")
	username := flag.String("username", "", "Display name")
	version := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *version {
		fmt.Printf("ChatRelay Client %s\n", Version)
		os.Exit(0)
	}

	if *username == "" {
		fmt.Print("Display name: ")
		if _, err := fmt.Scanln(username); err != nil || *username == "" {
			log.Fatal("A display name is required")
		}
	}

	conn, err := client.Dial(*server)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	if err := conn.SetUsername(*username); err != nil {
		log.Fatalf("Failed to register username: %v", err)
	}

	p := tea.NewProgram(ui.New(conn, *username), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("Error running client: %v", err)
	}
}
