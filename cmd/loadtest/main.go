// ABOUTME: Load generator for the chat relay
// ABOUTME: Opens N concurrent clients and measures broadcast fanout throughput
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aeolun/chatrelay/pkg/client"
	"github.com/aeolun/chatrelay/pkg/protocol"
)

const loremIpsum = "Lorem ipsum dolor sit amet consectetur adipiscing elit sed do eiusmod tempor incididunt ut labore et dolore magna aliqua"

var loremWords = strings.Fields(loremIpsum)

var (
	messagesSent     atomic.Int64
	messagesReceived atomic.Int64
	typingReceived   atomic.Int64
	sendErrors       atomic.Int64
)

func main() {
	server := flag.String("server", "localhost:8080", "Relay address (host:port)")
	clients := flag.Int("clients", 50, "Number of concurrent clients")
	interval := flag.Duration("interval", time.Second, "Delay between messages per client")
	duration := flag.Duration("duration", 30*time.Second, "Total test duration")
	flag.Parse()

	log.Printf("Starting %d clients against %s for %v", *clients, *server, *duration)

	stop := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < *clients; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			runClient(*server, n, *interval, stop)
		}(i)

		// Stagger connects so the relay isn't hit with one burst
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(*duration)
	close(stop)
	wg.Wait()

	sent := messagesSent.Load()
	received := messagesReceived.Load()
	fmt.Printf("\nClients:           %d\n", *clients)
	fmt.Printf("Messages sent:     %d\n", sent)
	fmt.Printf("Messages received: %d\n", received)
	fmt.Printf("Typing received:   %d\n", typingReceived.Load())
	fmt.Printf("Send errors:       %d\n", sendErrors.Load())
	if sent > 0 {
		// Every message fans out to every client, sender included
		expected := sent * int64(*clients)
		fmt.Printf("Delivery ratio:    %.1f%%\n", 100*float64(received)/float64(expected))
	}
}

// runClient drives one connection: register a name, send random
// messages at the configured interval, and count everything received.
func runClient(server string, n int, interval time.Duration, stop <-chan struct{}) {
	conn, err := client.Dial(server)
	if err != nil {
		log.Printf("Client %d: connect failed: %v", n, err)
		return
	}
	defer conn.Close()

	username := fmt.Sprintf("loadtest-%d", n)
	if err := conn.SetUsername(username); err != nil {
		log.Printf("Client %d: username failed: %v", n, err)
		return
	}

	// Drain events
	go func() {
		for ev := range conn.Events() {
			switch ev.Type {
			case protocol.EventMessage:
				messagesReceived.Add(1)
			case protocol.EventTyping:
				typingReceived.Add(1)
			}
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.SendChat(username, randomMessage()); err != nil {
				sendErrors.Add(1)
				return
			}
			messagesSent.Add(1)
		}
	}
}

// randomMessage builds a short message from lorem ipsum words.
func randomMessage() string {
	count := 3 + rand.Intn(10)
	words := make([]string, count)
	for i := range words {
		words[i] = loremWords[rand.Intn(len(loremWords))]
	}
	return strings.Join(words, " ")
}
