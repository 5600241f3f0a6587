package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"

	"github.com/Xzayogn-ECS/trueport-backend/internal/model"
	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/dbutil"
	appErr "github.com/Xzayogn-ECS/trueport-backend/internal/pkg/errors"
)

var chatColumns = []string{
	"id", "bg_verification_id", "requester_id", "requester_email", "shared_contact_id", "shared_contact_email",
	"student_id", "student_email", "is_active", "last_message_at", "ctime", "mtime",
}

var messageColumns = []string{"id", "chat_id", "sender_id", "sender_email", "sender_name", "sender_role", "content", "ctime"}

type BGChatRepo struct {
	db *sql.DB
}

func NewBGChatRepo(db *sql.DB) *BGChatRepo {
	return &BGChatRepo{db: db}
}

// FindOrCreate inserts the chat unless one already exists for its
// (bg_verification_id, requester_id, shared_contact_id) triple, then returns the
// stored row. created is false when another caller won the insert.
func (r *BGChatRepo) FindOrCreate(ctx context.Context, chat *model.BGChat) (*model.BGChat, bool, error) {
	sqlStr, args := dbutil.Finalize(`INSERT INTO bg_chats (id, bg_verification_id, requester_id, requester_email,
		shared_contact_id, shared_contact_email, student_id, student_email, is_active, last_message_at, ctime, mtime)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (bg_verification_id, requester_id, shared_contact_id) DO NOTHING`,
		[]interface{}{chat.ID, chat.BGVerificationID, chat.RequesterID, chat.RequesterEmail, chat.SharedContactID,
			chat.SharedContactEmail, chat.StudentID, chat.StudentEmail, chat.IsActive, chat.LastMessageAt, chat.Ctime, chat.Mtime})
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	stored, err := r.GetByTriple(ctx, chat.BGVerificationID, chat.RequesterID, chat.SharedContactID)
	if err != nil {
		return nil, false, err
	}
	return stored, affected > 0, nil
}

func (r *BGChatRepo) GetByTriple(ctx context.Context, bgVerificationID, requesterID, sharedContactID string) (*model.BGChat, error) {
	return r.getOne(ctx, map[string]interface{}{
		"bg_verification_id": bgVerificationID,
		"requester_id":       requesterID,
		"shared_contact_id":  sharedContactID,
	})
}

func (r *BGChatRepo) GetByID(ctx context.Context, id string) (*model.BGChat, error) {
	return r.getOne(ctx, map[string]interface{}{"id": id})
}

func (r *BGChatRepo) ListByParticipant(ctx context.Context, userID string) ([]*model.BGChat, error) {
	sqlStr, args := dbutil.Finalize(`SELECT id, bg_verification_id, requester_id, requester_email, shared_contact_id,
		shared_contact_email, student_id, student_email, is_active, last_message_at, ctime, mtime
		FROM bg_chats WHERE is_active = 1 AND (requester_id = ? OR shared_contact_id = ?)
		ORDER BY GREATEST(last_message_at, ctime) DESC`, []interface{}{userID, userID})
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanChats(rows)
}

func (r *BGChatRepo) ListByBGVerification(ctx context.Context, bgVerificationID string) ([]*model.BGChat, error) {
	where := map[string]interface{}{"bg_verification_id": bgVerificationID, "_orderby": "ctime asc"}
	sqlStr, args, err := builder.BuildSelect("bg_chats", where, chatColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanChats(rows)
}

// AddMessage stores the message and bumps last_message_at atomically.
func (r *BGChatRepo) AddMessage(ctx context.Context, msg *model.BGChatMessage) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	data := map[string]interface{}{
		"id":           msg.ID,
		"chat_id":      msg.ChatID,
		"sender_id":    msg.SenderID,
		"sender_email": msg.SenderEmail,
		"sender_name":  msg.SenderName,
		"sender_role":  msg.SenderRole,
		"content":      msg.Content,
		"ctime":        msg.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("bg_chat_messages", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return err
	}
	updateSQL, updateArgs := dbutil.Finalize(`UPDATE bg_chats SET last_message_at = ?, mtime = ? WHERE id = ?`,
		[]interface{}{msg.Ctime, msg.Ctime, msg.ChatID})
	result, err := tx.ExecContext(ctx, updateSQL, updateArgs...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return tx.Commit()
}

func (r *BGChatRepo) ListMessages(ctx context.Context, chatID string) ([]*model.BGChatMessage, error) {
	where := map[string]interface{}{"chat_id": chatID, "_orderby": "ctime asc"}
	sqlStr, args, err := builder.BuildSelect("bg_chat_messages", where, messageColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanMessages(rows)
}

// LastMessages returns the newest message of each chat, keyed by chat id.
func (r *BGChatRepo) LastMessages(ctx context.Context, chatIDs []string) (map[string]*model.BGChatMessage, error) {
	out := make(map[string]*model.BGChatMessage)
	if len(chatIDs) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(`SELECT DISTINCT ON (chat_id) id, chat_id, sender_id, sender_email, sender_name,
		sender_role, content, ctime FROM bg_chat_messages WHERE chat_id IN (?) ORDER BY chat_id, ctime DESC`, chatIDs)
	if err != nil {
		return nil, err
	}
	query, args = dbutil.Finalize(query, args)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	for _, msg := range msgs {
		out[msg.ChatID] = msg
	}
	return out, nil
}

func (r *BGChatRepo) getOne(ctx context.Context, where map[string]interface{}) (*model.BGChat, error) {
	where["_limit"] = []uint{0, 1}
	sqlStr, args, err := builder.BuildSelect("bg_chats", where, chatColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	chats, err := scanChats(rows)
	if err != nil {
		return nil, err
	}
	if len(chats) == 0 {
		return nil, appErr.ErrNotFound
	}
	return chats[0], nil
}

func scanChats(rows *sql.Rows) ([]*model.BGChat, error) {
	var chats []*model.BGChat
	for rows.Next() {
		var chat model.BGChat
		if err := rows.Scan(&chat.ID, &chat.BGVerificationID, &chat.RequesterID, &chat.RequesterEmail,
			&chat.SharedContactID, &chat.SharedContactEmail, &chat.StudentID, &chat.StudentEmail, &chat.IsActive,
			&chat.LastMessageAt, &chat.Ctime, &chat.Mtime); err != nil {
			return nil, err
		}
		chats = append(chats, &chat)
	}
	return chats, rows.Err()
}

func scanMessages(rows *sql.Rows) ([]*model.BGChatMessage, error) {
	var msgs []*model.BGChatMessage
	for rows.Next() {
		var msg model.BGChatMessage
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.SenderID, &msg.SenderEmail, &msg.SenderName,
			&msg.SenderRole, &msg.Content, &msg.Ctime); err != nil {
			return nil, err
		}
		msgs = append(msgs, &msg)
	}
	return msgs, rows.Err()
}
