package service

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/prompting-realities/backend/internal/model"
	"github.com/prompting-realities/backend/internal/store"
	"github.com/prompting-realities/backend/pkg/logger"
)

// ExportService assembles a user's full history: every assistant they ever
// created, including soft-deleted ones, with all sessions, threads and
// messages.
type ExportService struct {
	store  *store.Store
	logger *logger.Logger
}

// NewExportService creates a new export service.
func NewExportService(st *store.Store, log *logger.Logger) *ExportService {
	return &ExportService{store: st, logger: log}
}

// AssistantExport is one assistant with its nested sessions.
type AssistantExport struct {
	Assistant model.Assistant `json:"assistant"`
	Deleted   bool            `json:"deleted"`
	Sessions  []SessionExport `json:"sessions"`
}

// SessionExport is one session with its threads and messages.
type SessionExport struct {
	Session  model.Session        `json:"session"`
	Threads  []model.ViewerThread `json:"threads"`
	Messages []model.ChatMessage  `json:"messages"`
}

// Export is the full dump for one user.
type Export struct {
	UserID      string            `json:"user_id"`
	GeneratedAt time.Time         `json:"generated_at"`
	Assistants  []AssistantExport `json:"assistants"`
}

// Build collects the user's complete history.
func (s *ExportService) Build(ctx context.Context, userID string) (*Export, error) {
	assistants, err := s.store.ListAssistantsForExport(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing assistants: %w", err)
	}

	out := &Export{
		UserID:      userID,
		GeneratedAt: time.Now().UTC(),
		Assistants:  make([]AssistantExport, 0, len(assistants)),
	}

	for i := range assistants {
		a := assistants[i]
		ae := AssistantExport{Assistant: a, Deleted: a.DeletedAt.Valid}

		sessions, err := s.store.ListSessions(ctx, a.ID)
		if err != nil {
			return nil, fmt.Errorf("listing sessions for %s: %w", a.ID, err)
		}
		for j := range sessions {
			sess := sessions[j]
			threads, err := s.store.ListViewerThreads(ctx, sess.ID)
			if err != nil {
				return nil, fmt.Errorf("listing threads for %s: %w", sess.ID, err)
			}
			messages, err := s.store.ListSessionMessages(ctx, sess.ID)
			if err != nil {
				return nil, fmt.Errorf("listing messages for %s: %w", sess.ID, err)
			}
			ae.Sessions = append(ae.Sessions, SessionExport{
				Session:  sess,
				Threads:  threads,
				Messages: messages,
			})
		}
		out.Assistants = append(out.Assistants, ae)
	}
	return out, nil
}

// WriteZip renders the export as a zip of per-assistant CSV transcripts
// plus a sessions index.
func (s *ExportService) WriteZip(w io.Writer, export *Export) error {
	zw := zip.NewWriter(w)

	for _, ae := range export.Assistants {
		name := fmt.Sprintf("assistants/%s/messages.csv", ae.Assistant.ID)
		f, err := zw.Create(name)
		if err != nil {
			return err
		}
		if err := writeMessagesCSV(f, ae); err != nil {
			return err
		}
	}

	idx, err := zw.Create("sessions.csv")
	if err != nil {
		return err
	}
	if err := writeSessionsCSV(idx, export); err != nil {
		return err
	}

	return zw.Close()
}

func writeMessagesCSV(w io.Writer, ae AssistantExport) error {
	cw := csv.NewWriter(w)
	header := []string{"session_id", "thread_id", "message_id", "kind", "user_text", "response_text", "mqtt_attempted", "mqtt_delivered", "reaction", "created_at"}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, se := range ae.Sessions {
		for _, m := range se.Messages {
			row := []string{
				m.SessionID,
				m.ThreadID,
				m.ID,
				string(m.Kind),
				deref(m.UserText),
				deref(m.ResponseText),
				strconv.FormatBool(m.MQTTAttempted),
				strconv.FormatBool(len(m.MQTTPayload) > 0),
				reactionString(m.Reaction),
				m.CreatedAt.UTC().Format(time.RFC3339),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeSessionsCSV(w io.Writer, export *Export) error {
	cw := csv.NewWriter(w)
	header := []string{"assistant_id", "assistant_name", "assistant_deleted", "session_id", "status", "active", "created_at"}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, ae := range export.Assistants {
		for _, se := range ae.Sessions {
			row := []string{
				ae.Assistant.ID,
				ae.Assistant.Name,
				strconv.FormatBool(ae.Deleted),
				se.Session.ID,
				string(se.Session.Status),
				strconv.FormatBool(se.Session.Active),
				se.Session.CreatedAt.UTC().Format(time.RFC3339),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func reactionString(r *model.Reaction) string {
	if r == nil {
		return ""
	}
	return string(*r)
}
