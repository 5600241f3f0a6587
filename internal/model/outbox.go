package model

type OutboxStatus string

const (
	OutboxPending OutboxStatus = "PENDING"
	OutboxLeased  OutboxStatus = "LEASED"
	OutboxDone    OutboxStatus = "DONE"
	OutboxDead    OutboxStatus = "DEAD"
)

type OutboxEvent struct {
	ID             string       `json:"id"`
	Kind           string       `json:"kind"`
	PayloadJSON    string       `json:"payload_json"`
	DedupeKey      string       `json:"dedupe_key"`
	Status         OutboxStatus `json:"status"`
	AttemptCount   int          `json:"attempt_count"`
	NextAttemptAt  int64        `json:"next_attempt_at"`
	LeaseOwner     string       `json:"lease_owner"`
	LeaseExpiresAt int64        `json:"lease_expires_at"`
	LastError      string       `json:"last_error"`
	Ctime          int64        `json:"ctime"`
	Mtime          int64        `json:"mtime"`
}
