package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Xzayogn-ECS/trueport-backend/internal/live"
	"github.com/Xzayogn-ECS/trueport-backend/internal/model"
	appErr "github.com/Xzayogn-ECS/trueport-backend/internal/pkg/errors"
	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/timeutil"
)

type ChatParties struct {
	BGVerificationID   string
	RequesterID        string
	RequesterEmail     string
	SharedContactID    string
	SharedContactEmail string
	StudentID          string
	StudentEmail       string
}

type ChatParticipant struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Institute string `json:"institute"`
}

type ChatSummary struct {
	ID               string               `json:"id"`
	BGVerificationID string               `json:"bg_verification_id"`
	Title            string               `json:"title"`
	Participant      ChatParticipant      `json:"participant"`
	LastMessage      *model.BGChatMessage `json:"last_message"`
	LastMessageAt    int64                `json:"last_message_at"`
	IsActive         bool                 `json:"is_active"`
}

type ChatDetail struct {
	Chat          *model.BGChat          `json:"chat"`
	Requester     ChatParticipant        `json:"requester"`
	SharedContact ChatParticipant        `json:"shared_contact"`
	Messages      []*model.BGChatMessage `json:"messages"`
}

// ChatService owns the 1:1 threads between a requesting verifier and a referee.
// The student is context on the thread, never a participant.
type ChatService struct {
	chats ChatStore
	users UserStore
	live  LivePublisher
}

func NewChatService(chats ChatStore, users UserStore, publisher LivePublisher) *ChatService {
	return &ChatService{chats: chats, users: users, live: publisher}
}

// FindOrCreate returns the thread for the (request, requester, shared contact)
// triple. Both sides get a bg_chat_created event either way.
func (s *ChatService) FindOrCreate(ctx context.Context, parties ChatParties) (*model.BGChat, bool, error) {
	if parties.BGVerificationID == "" || parties.RequesterID == "" || parties.SharedContactID == "" {
		return nil, false, fmt.Errorf("%w: chat needs a request and two participants", appErr.ErrInvalid)
	}
	if parties.RequesterID == parties.SharedContactID {
		return nil, false, fmt.Errorf("%w: cannot open a chat with yourself", appErr.ErrInvalid)
	}
	now := timeutil.NowUnix()
	chat, created, err := s.chats.FindOrCreate(ctx, &model.BGChat{
		ID:                 newID(),
		BGVerificationID:   parties.BGVerificationID,
		RequesterID:        parties.RequesterID,
		RequesterEmail:     normalizeEmail(parties.RequesterEmail),
		SharedContactID:    parties.SharedContactID,
		SharedContactEmail: normalizeEmail(parties.SharedContactEmail),
		StudentID:          parties.StudentID,
		StudentEmail:       normalizeEmail(parties.StudentEmail),
		IsActive:           1,
		Ctime:              now,
		Mtime:              now,
	})
	if err != nil {
		return nil, false, err
	}
	event := live.Event{Type: live.EventChatCreated, ChatID: chat.ID, RequestID: chat.BGVerificationID, At: now}
	s.live.PublishUser(ctx, chat.RequesterID, event)
	s.live.PublishUser(ctx, chat.SharedContactID, event)
	return chat, created, nil
}

func (s *ChatService) AddMessage(ctx context.Context, chatID, senderID, text string) (*model.BGChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: message must be a non-empty string", appErr.ErrInvalid)
	}
	if utf8.RuneCountInString(text) > model.MaxChatMessageLength {
		return nil, fmt.Errorf("%w: message longer than %d characters", appErr.ErrInvalid, model.MaxChatMessageLength)
	}
	chat, err := s.participantChat(ctx, chatID, senderID)
	if err != nil {
		return nil, err
	}
	if chat.IsActive == 0 {
		return nil, fmt.Errorf("%w: chat is closed", appErr.ErrGone)
	}
	sender, err := s.users.GetByID(ctx, senderID)
	if err != nil {
		return nil, err
	}
	msg := &model.BGChatMessage{
		ID:          newID(),
		ChatID:      chat.ID,
		SenderID:    sender.ID,
		SenderEmail: sender.Email,
		SenderName:  displayName(sender.Name, sender.Email),
		SenderRole:  string(sender.Role),
		Content:     text,
		Ctime:       timeutil.NowUnix(),
	}
	if err := s.chats.AddMessage(ctx, msg); err != nil {
		return nil, err
	}
	event := live.Event{Type: live.EventMessage, ChatID: chat.ID, RequestID: chat.BGVerificationID, Data: msg, At: msg.Ctime}
	s.live.PublishChat(ctx, chat.ID, event)
	otherID, _ := chat.OtherParticipant(senderID)
	s.live.PublishUser(ctx, otherID, event)
	return msg, nil
}

func (s *ChatService) List(ctx context.Context, userID string) ([]*ChatSummary, error) {
	chats, err := s.chats.ListByParticipant(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(chats) == 0 {
		return []*ChatSummary{}, nil
	}
	chatIDs := make([]string, 0, len(chats))
	emails := make([]string, 0, len(chats))
	for _, chat := range chats {
		chatIDs = append(chatIDs, chat.ID)
		_, email := chat.OtherParticipant(userID)
		emails = append(emails, email)
	}
	last, err := s.chats.LastMessages(ctx, chatIDs)
	if err != nil {
		return nil, err
	}
	people, err := s.participantsByEmail(ctx, emails)
	if err != nil {
		return nil, err
	}
	summaries := make([]*ChatSummary, 0, len(chats))
	for _, chat := range chats {
		otherID, otherEmail := chat.OtherParticipant(userID)
		participant, ok := people[otherEmail]
		if !ok {
			participant = ChatParticipant{ID: otherID, Email: otherEmail}
		}
		lastAt := chat.LastMessageAt
		if lastAt == 0 {
			lastAt = chat.Ctime
		}
		summaries = append(summaries, &ChatSummary{
			ID:               chat.ID,
			BGVerificationID: chat.BGVerificationID,
			Title:            displayName(participant.Name, participant.Email),
			Participant:      participant,
			LastMessage:      last[chat.ID],
			LastMessageAt:    lastAt,
			IsActive:         chat.IsActive == 1,
		})
	}
	return summaries, nil
}

func (s *ChatService) Get(ctx context.Context, chatID, userID string) (*ChatDetail, error) {
	chat, err := s.participantChat(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	messages, err := s.chats.ListMessages(ctx, chat.ID)
	if err != nil {
		return nil, err
	}
	people, err := s.participantsByEmail(ctx, []string{chat.RequesterEmail, chat.SharedContactEmail})
	if err != nil {
		return nil, err
	}
	detail := &ChatDetail{
		Chat:          chat,
		Requester:     ChatParticipant{ID: chat.RequesterID, Email: chat.RequesterEmail},
		SharedContact: ChatParticipant{ID: chat.SharedContactID, Email: chat.SharedContactEmail},
		Messages:      messages,
	}
	if p, ok := people[chat.RequesterEmail]; ok {
		detail.Requester = p
	}
	if p, ok := people[chat.SharedContactEmail]; ok {
		detail.SharedContact = p
	}
	return detail, nil
}

// ChatIDForReferee finds the thread a referee already has on a request, if any.
func (s *ChatService) ChatIDForReferee(ctx context.Context, bgVerificationID, requesterID, refereeID string) (string, error) {
	chat, err := s.chats.GetByTriple(ctx, bgVerificationID, requesterID, refereeID)
	if err != nil {
		if appErr.IsNotFound(err) {
			return "", nil
		}
		return "", err
	}
	return chat.ID, nil
}

func (s *ChatService) participantChat(ctx context.Context, chatID, userID string) (*model.BGChat, error) {
	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.IsParticipant(userID) {
		return nil, fmt.Errorf("%w: not a participant of this chat", appErr.ErrForbidden)
	}
	return chat, nil
}

func (s *ChatService) participantsByEmail(ctx context.Context, emails []string) (map[string]ChatParticipant, error) {
	users, err := s.users.ListByEmails(ctx, emails)
	if err != nil {
		return nil, err
	}
	out := make(map[string]ChatParticipant, len(users))
	for _, u := range users {
		out[normalizeEmail(u.Email)] = ChatParticipant{ID: u.ID, Name: u.Name, Email: u.Email, Institute: u.Institute}
	}
	return out, nil
}
