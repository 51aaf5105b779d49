package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/farsight-games/gamewire/internal/client"
)

func main() {
	serverAddr := flag.String("server", "localhost:8880", "Server address (e.g., localhost:8880)")
	useWebSocket := flag.Bool("websocket", false, "Connect over WebSocket instead of a raw framed channel")
	name := flag.String("name", "", "Name to join the room with")
	flag.Parse()

	if *name == "" {
		logrus.Fatal("A name is required. Use -name")
	}

	log := logrus.New()

	sess := client.New(*serverAddr, *name, client.Opts{
		WebSocket: *useWebSocket,
		Log:       log,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sess.Connect(ctx); err != nil {
		log.Fatalf("Failed to connect to server: %v", err)
	}
	defer sess.Disconnect()
	log.Infof("Connected to %s as %s", *serverAddr, *name)

	// Render the room's traffic until the session ends.
	go func() {
		for {
			select {
			case line := <-sess.Lines():
				if line.Name == "room" {
					fmt.Printf("*** %s ***\n", line.Text)
				} else {
					fmt.Printf("[%s]: %s\n", line.Name, line.Text)
				}
			case <-sess.Done():
				return
			}
		}
	}()

	fmt.Println("Type your messages (or 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "quit" || text == "exit" {
			break
		}
		if err := sess.Say(text); err != nil {
			log.Errorf("Failed to send message: %v", err)
			if !sess.IsConnected() {
				break
			}
		}
	}
	if err := scanner.Err(); err != nil {
		log.Errorf("Error reading input: %v", err)
	}

	if sess.IsConnected() {
		if err := sess.Leave(); err != nil {
			log.Errorf("Failed to send leave message: %v", err)
		}
	}
	log.Info("Disconnected from server")
}
