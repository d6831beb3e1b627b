package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	"github.com/korylprince/agent-neo/chatbot"
)

var (
	boldGreen = color.New(color.FgGreen, color.Bold).SprintFunc()
	boldCyan  = color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow    = color.New(color.FgYellow).SprintFunc()
	red       = color.New(color.FgRed).SprintFunc()
	faint     = color.New(color.Faint).SprintFunc()
)

// printer renders server events, printing only the newly typed part of a message
type printer struct {
	printed map[int64]int
}

// render prints msg and returns true once the reply being waited for is complete
func (p *printer) render(msg chatbot.ServerMessage) bool {
	switch msg.Type {
	case chatbot.MessageTypeAppend, chatbot.MessageTypeUpdate:
		m := msg.Message
		if m == nil || m.Sender != chatbot.SenderBot {
			return false
		}
		n, ok := p.printed[m.ID]
		if !ok {
			fmt.Print(boldCyan("Agent-Neo: "))
		}
		if len(m.Text) > n {
			fmt.Print(m.Text[n:])
			p.printed[m.ID] = len(m.Text)
		}
		if !m.IsTyping {
			fmt.Println()
			return true
		}
	case chatbot.MessageTypeStatus:
		if !msg.IsSubmitting && !msg.IsResponseOK {
			fmt.Println(yellow("(the chat service could not be reached)"))
		}
	case chatbot.MessageTypeReset:
		p.printed = make(map[int64]int)
		fmt.Println(faint("(conversation cleared)"))
	case chatbot.MessageTypeRated:
		fmt.Println(faint("(rating sent)"))
	case chatbot.MessageTypeError:
		fmt.Println(red("Error: " + msg.Error))
	}
	return false
}

// wait renders events until done returns true
func (p *printer) wait(events <-chan chatbot.ServerMessage, done func(chatbot.ServerMessage) bool) bool {
	for msg := range events {
		finished := p.render(msg)
		if done(msg) || finished {
			return true
		}
	}
	return false
}

// parseRate parses "/rate good|bad [comment]"
func parseRate(input string) (*chatbot.ClientMessage, error) {
	fields := strings.Fields(strings.TrimPrefix(input, "/rate"))
	if len(fields) == 0 {
		return nil, fmt.Errorf("usage: /rate good|bad [comment]")
	}

	var value string
	switch strings.ToLower(fields[0]) {
	case "good":
		value = "Good"
	case "bad":
		value = "Bad"
	default:
		return nil, fmt.Errorf("rating must be good or bad, not %q", fields[0])
	}

	return &chatbot.ClientMessage{
		Type:    chatbot.ClientMessageRate,
		Value:   value,
		Message: strings.Join(fields[1:], " "),
	}, nil
}

func main() {
	server := flag.String("server", "http://localhost:8080", "Server URL (http/https)")
	prefix := flag.String("prefix", "", "URL prefix the server is mounted at")
	flag.Parse()

	// Convert HTTP URL to WebSocket URL
	wsURL := strings.Replace(*server, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)
	wsURL += *prefix + "/chat"

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		if resp != nil {
			fmt.Printf("WebSocket connection failed (status %d): %v\n", resp.StatusCode, err)
		} else {
			fmt.Printf("WebSocket connection failed: %v\n", err)
		}
		os.Exit(1)
	}
	defer conn.Close()

	events := make(chan chatbot.ServerMessage)
	go func() {
		defer close(events)
		for {
			var msg chatbot.ServerMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					fmt.Printf("\nError reading response: %v\n", err)
				}
				return
			}
			events <- msg
		}
	}()

	session, ok := <-events
	if !ok || session.Type != chatbot.MessageTypeSession {
		fmt.Println("Did not receive a session from the server")
		os.Exit(1)
	}

	fmt.Println(boldGreen("Agent-Neo"))
	fmt.Println(faint(fmt.Sprintf("Session: %s, Conversation: %s", session.SessionID, session.ConversationID)))
	fmt.Println("Type a message and press Enter. Commands: /reset, /rate good|bad [comment], exit")

	p := &printer{printed: make(map[int64]int)}
	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Print("\n" + boldGreen("You: "))
		input, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if strings.ToLower(input) == "exit" || strings.ToLower(input) == "quit" {
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			fmt.Println("Goodbye!")
			return
		}

		var msg *chatbot.ClientMessage
		var done func(chatbot.ServerMessage) bool

		switch {
		case input == "/reset":
			msg = &chatbot.ClientMessage{Type: chatbot.ClientMessageReset}
			done = func(m chatbot.ServerMessage) bool { return m.Type == chatbot.MessageTypeReset }
		case strings.HasPrefix(input, "/rate"):
			if msg, err = parseRate(input); err != nil {
				fmt.Println(red(err.Error()))
				continue
			}
			done = func(m chatbot.ServerMessage) bool {
				return m.Type == chatbot.MessageTypeRated || m.Type == chatbot.MessageTypeError
			}
		default:
			msg = &chatbot.ClientMessage{Type: chatbot.ClientMessageSubmit, Message: input}
			done = func(m chatbot.ServerMessage) bool { return m.Type == chatbot.MessageTypeError }
		}

		if err := conn.WriteJSON(msg); err != nil {
			fmt.Printf("Failed to send message: %v\n", err)
			os.Exit(1)
		}

		if !p.wait(events, done) {
			fmt.Println("Connection closed")
			return
		}
	}
}
