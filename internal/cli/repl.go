package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"majlis-chat/internal/domain"

	"github.com/mattn/go-shellwords"
)

const historySize = 20

var errUnknownCommand = errors.New("unknown command")

type chatSession interface {
	ListRooms(ctx context.Context, filter domain.RoomFilter) ([]domain.Room, error)
	JoinRoom(ctx context.Context, roomID int64) (domain.Room, error)
	SelectRoom(roomID int64) error
	GetMessages(ctx context.Context, roomID int64, page domain.MessagePage) ([]domain.Message, error)
	SendMessage(ctx context.Context, roomID int64, req domain.SendMessageRequest) (domain.Message, error)
	SendTyping(ctx context.Context, roomID int64, isTyping bool) error
	GetOnlineUsers(ctx context.Context) ([]domain.User, error)
	Reconnect()
	State() domain.ChatState
}

// repl reads prompt lines and renders messages of the current room as the
// state changes.
type repl struct {
	sess chatSession

	mu      sync.Mutex
	out     io.Writer
	printed map[int64]bool
	room    int64
	typing  string
}

func newREPL(sess chatSession, w io.Writer) *repl {
	return &repl{sess: sess, out: w, printed: make(map[int64]bool)}
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	r.notice("type a message, or /help")
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		quit, err := r.handle(ctx, scanner.Text())
		if err != nil {
			r.notice("error: " + err.Error())
		}
		if quit {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	return scanner.Err()
}

// handle runs one line. Lines that do not start with a slash are sent to
// the current room.
func (r *repl) handle(ctx context.Context, line string) (quit bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		_, err := r.sess.SendMessage(ctx, 0, domain.SendMessageRequest{Content: line})
		return false, err
	}

	args, err := shellwords.Parse(line)
	if err != nil {
		return false, err
	}
	switch args[0] {
	case "/quit", "/exit":
		return true, nil

	case "/help":
		r.notice("/join <id>  /rooms [search]  /history [n]  /typing [on|off]  /online  /reconnect  /quit")

	case "/join":
		if len(args) != 2 {
			return false, errors.New("usage: /join <room-id>")
		}
		roomID, err := parseID(args[1])
		if err != nil {
			return false, err
		}
		room, err := r.sess.JoinRoom(ctx, roomID)
		if err != nil {
			return false, err
		}
		if err := r.sess.SelectRoom(room.ID); err != nil {
			return false, err
		}
		r.mu.Lock()
		r.room = room.ID
		r.mu.Unlock()
		r.notice(fmt.Sprintf("now in %s (%d)", room.Name, room.ID))
		r.render(r.sess.State())

	case "/rooms":
		filter := domain.RoomFilter{}
		if len(args) > 1 {
			filter.Search = strings.Join(args[1:], " ")
		}
		rooms, err := r.sess.ListRooms(ctx, filter)
		if err != nil {
			return false, err
		}
		r.mu.Lock()
		printRooms(r.out, rooms)
		r.mu.Unlock()

	case "/history":
		size := historySize
		if len(args) > 1 {
			if size, err = strconv.Atoi(args[1]); err != nil || size <= 0 {
				return false, fmt.Errorf("invalid count %q", args[1])
			}
		}
		if _, err := r.sess.GetMessages(ctx, 0, domain.MessagePage{Size: size}); err != nil {
			return false, err
		}
		r.render(r.sess.State())

	case "/typing":
		on := true
		if len(args) > 1 {
			switch args[1] {
			case "on":
			case "off":
				on = false
			default:
				return false, errors.New("usage: /typing [on|off]")
			}
		}
		return false, r.sess.SendTyping(ctx, 0, on)

	case "/online":
		users, err := r.sess.GetOnlineUsers(ctx)
		if err != nil {
			return false, err
		}
		r.mu.Lock()
		printUsers(r.out, users)
		r.mu.Unlock()

	case "/reconnect":
		r.sess.Reconnect()

	default:
		return false, fmt.Errorf("%w %s", errUnknownCommand, args[0])
	}
	return false, nil
}

// render prints confirmed messages of the selected room that were not
// shown yet, plus who is typing there.
func (r *repl) render(state domain.ChatState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.room == 0 {
		return
	}
	for _, m := range state.Messages[r.room] {
		if m.IsPending() || r.printed[m.ID] {
			continue
		}
		r.printed[m.ID] = true
		fmt.Fprintln(r.out, formatMessage(m))
	}

	names := make([]string, 0, len(state.TypingUsers[r.room]))
	for _, u := range state.TypingUsers[r.room] {
		u := u
		names = append(names, displayName(&u))
	}
	typing := strings.Join(names, ", ")
	if typing != r.typing {
		r.typing = typing
		if typing != "" {
			fmt.Fprintln(r.out, "* "+typing+" typing...")
		}
	}
}

func (r *repl) notice(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, "* "+text)
}
