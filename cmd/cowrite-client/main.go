package main

import (
	"bufio"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"

	"github.com/cowrite/cowrite/commons"
	"github.com/cowrite/cowrite/crdt"
)

// replica is the client's local copy of the document, edited locally and
// reconciled with the deltas the server fans out.
type replica struct {
	mu  sync.Mutex
	doc *crdt.Document
}

func main() {
	// Parse flags.
	server := flag.String("server", "localhost:8080", "Server network address")
	document := flag.String("doc", "scratch", "Document to join")
	token := flag.String("token", "", "Connection token")
	secure := flag.Bool("secure", false, "Use a secure WebSocket connection (wss://)")
	flag.Parse()

	scheme := "ws"
	if *secure {
		scheme = "wss"
	}
	u := url.URL{
		Scheme:   scheme,
		Host:     *server,
		Path:     "/ws/" + *document,
		RawQuery: url.Values{"token": {*token}}.Encode(),
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		color.Red("Connection error, exiting: %s", err)
		os.Exit(1)
	}
	defer conn.Close()

	// The first message is the init snapshot.
	var init commons.Message
	if err := conn.ReadJSON(&init); err != nil {
		color.Red("Connection refused: %s", err)
		os.Exit(1)
	}
	if init.Type != commons.InitMessage || init.State == nil {
		color.Red("Unexpected first message: %s", init.Type)
		os.Exit(1)
	}

	r := &replica{doc: crdt.FromSnapshot(*init.State, init.UserID)}

	color.Green("Joined %q as %s (%d collaborators online)", *document, init.Username, len(init.Presence))
	color.Yellow("Type to append a line. Commands: :i N TEXT, :d N, :c N, !sync, !q.")
	fmt.Println(r.text())

	go readMessages(conn, r)
	writeMessages(conn, r, init.UserID)
}

func (r *replica) text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc.Text()
}

// readMessages handles everything the server fans out.
func readMessages(conn *websocket.Conn, r *replica) {
	for {
		var msg commons.Message
		if err := conn.ReadJSON(&msg); err != nil {
			color.Red("Server closed the connection. Exiting...")
			os.Exit(0)
		}

		switch msg.Type {
		case commons.UpdateMessage:
			r.mu.Lock()
			for _, ch := range msg.Characters {
				r.doc.ApplyRemote(ch)
			}
			text := r.doc.Text()
			r.mu.Unlock()
			color.Magenta("%s edited:\n%s", msg.UserID, text)

		case commons.SyncResponseMessage:
			if msg.State == nil {
				continue
			}
			r.mu.Lock()
			r.doc = crdt.FromSnapshot(*msg.State, r.doc.Site())
			text := r.doc.Text()
			r.mu.Unlock()
			color.Green("Resynced at version %d:\n%s", msg.Version, text)

		case commons.PresenceJoinMessage:
			color.Green("%s has joined the session.", msg.Username)

		case commons.PresenceLeaveMessage:
			color.Yellow("%s has left the session.", msg.Username)

		case commons.CursorMessage:
			if msg.Position != nil {
				color.Cyan("%s moved the cursor to %d", msg.Username, *msg.Position)
			}
		}
	}
}

// command parses an index operation. :i N TEXT inserts TEXT at visible
// index N, :d N deletes the character at N, :c N reports the cursor at N.
// Edits are applied to the local replica and shipped as update deltas.
func command(r *replica, line string) (commons.Message, bool) {
	fields := strings.SplitN(line, " ", 3)

	switch fields[0] {
	case ":c":
		if len(fields) < 2 {
			return commons.Message{}, false
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return commons.Message{}, false
		}
		return commons.Message{Type: commons.CursorMessage, Position: &n}, true

	case ":i":
		if len(fields) < 3 {
			return commons.Message{}, false
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return commons.Message{}, false
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		var deltas []crdt.Character
		for _, ru := range fields[2] {
			ch, err := r.doc.Insert(n, string(ru))
			if err != nil {
				break
			}
			deltas = append(deltas, ch)
			n++
		}
		if len(deltas) == 0 {
			return commons.Message{}, true
		}
		return commons.Message{Type: commons.UpdateMessage, Characters: deltas}, true

	case ":d":
		if len(fields) < 2 {
			return commons.Message{}, false
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return commons.Message{}, false
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		ch := r.doc.Delete(n)
		if ch == nil {
			return commons.Message{}, true
		}
		return commons.Message{Type: commons.UpdateMessage, Characters: []crdt.Character{*ch}}, true
	}

	return commons.Message{}, false
}

// writeMessages scans stdin and ships each line as a batch of character
// deltas appended to the document.
func writeMessages(conn *websocket.Conn, r *replica, userID string) {
	s := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !s.Scan() {
			return
		}
		line := s.Text()

		switch {
		case line == "!q":
			fmt.Println("Goodbye!")
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return

		case line == "!sync":
			if err := conn.WriteJSON(commons.Message{Type: commons.SyncRequestMessage}); err != nil {
				color.Red("Error sending message, exiting: %s", err)
				return
			}

		case line == "":
			continue

		case strings.HasPrefix(line, ":"):
			msg, ok := command(r, line)
			if !ok {
				color.Red("Unknown command: %s", line)
				continue
			}
			if msg.Type == "" {
				continue // command changed nothing
			}
			if err := conn.WriteJSON(msg); err != nil {
				color.Red("Error sending message, exiting: %s", err)
				return
			}
			fmt.Println(r.text())

		default:
			r.mu.Lock()
			var deltas []crdt.Character
			for _, ru := range line + "\n" {
				ch, err := r.doc.Insert(r.doc.VisibleLength(), string(ru))
				if err != nil {
					break
				}
				deltas = append(deltas, ch)
			}
			r.mu.Unlock()

			if err := conn.WriteJSON(commons.Message{
				Type:       commons.UpdateMessage,
				Characters: deltas,
			}); err != nil {
				color.Red("Error sending message, exiting: %s", err)
				return
			}
			color.Cyan("%s: %s", userID, strings.TrimSpace(line))
		}
	}
}
