package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"majlis-chat/internal/domain"
)

func displayName(u *domain.User) string {
	switch {
	case u == nil:
		return "unknown"
	case u.DisplayName != "":
		return u.DisplayName
	case u.Username != "":
		return u.Username
	}
	return fmt.Sprintf("user-%d", u.ID)
}

func formatMessage(m domain.Message) string {
	stamp := "--:--"
	if !m.CreatedAt.IsZero() {
		stamp = m.CreatedAt.Local().Format("15:04")
	}
	body := m.Content
	switch {
	case m.IsDeleted:
		body = "(deleted)"
	case m.FileURL != "":
		body = fmt.Sprintf("%s [%s %s]", body, m.MessageType, m.FileURL)
	}
	line := fmt.Sprintf("[%s] %s: %s", stamp, displayName(m.Sender), body)
	if m.IsPending() {
		line += " (sending)"
	}
	return line
}

func printRooms(w io.Writer, rooms []domain.Room) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tMEMBERS")
	for _, r := range rooms {
		members := fmt.Sprintf("%d", r.CurrentMembers)
		if r.MaxMembers > 0 {
			members = fmt.Sprintf("%d/%d", r.CurrentMembers, r.MaxMembers)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.ID, r.Name, r.Type, members)
	}
	_ = tw.Flush()
}

func printUsers(w io.Writer, users []domain.User) {
	for _, u := range users {
		u := u
		line := fmt.Sprintf("%d\t%s", u.ID, displayName(&u))
		if u.CurrentGame != "" {
			line += "\tplaying " + u.CurrentGame
		}
		fmt.Fprintln(w, line)
	}
}
