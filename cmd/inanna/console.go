package main

import (
	"bufio"
	"io"
	"log"
	"strings"

	"github.com/jordanhubbard/inanna/pkg/messages"
)

type consoleCore interface {
	SubmitText(text, sessionID, origin string) error
	RequestListening(sessionID, origin string) error
}

var (
	quitWords   = map[string]bool{"salir": true, "exit": true, "quit": true}
	listenWords = map[string]bool{"escuchar": true, "listen": true}
)

// readConsole submits each stdin line to the core until EOF or a quit word
func readConsole(r io.Reader, core consoleCore, quit func()) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		word := strings.ToLower(line)

		var err error
		switch {
		case quitWords[word]:
			quit()
			return
		case listenWords[word]:
			err = core.RequestListening(messages.ConsoleSession, messages.ConsoleOrigin)
		default:
			err = core.SubmitText(line, messages.ConsoleSession, messages.ConsoleOrigin)
		}
		if err != nil {
			log.Printf("[Console] Warning: input dropped: %v", err)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Printf("[Console] Error reading input: %v", err)
	}
}
