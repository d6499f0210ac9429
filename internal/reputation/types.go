// Package reputation is the reputation registry program.
//
// It keeps two independent records per agent: a running average score fed
// by one employer rating per validated job, and an append-only ledger of
// raw feedback signals from any client other than the agent's owner.
package reputation

import (
	"github.com/holiman/uint256"

	"github.com/agentoven/agentmarket/internal/ledger"
)

// MaxValueDecimals is the largest decimal scale of a feedback value.
const MaxValueDecimals = 18

// Feedback is one raw feedback signal.
type Feedback struct {
	Value         int64  `json:"value" cbor:"1,keyasint"`
	ValueDecimals uint8  `json:"value_decimals" cbor:"2,keyasint"`
	Tag1          string `json:"tag1" cbor:"3,keyasint"`
	Tag2          string `json:"tag2" cbor:"4,keyasint"`
	Revoked       bool   `json:"is_revoked" cbor:"5,keyasint"`
}

// FeedbackParams are the inputs of GiveFeedback. Endpoint, FeedbackURI
// and FeedbackHash are carried by the event only.
type FeedbackParams struct {
	AgentID       uint64 `json:"agent_id"`
	Value         int64  `json:"value"`
	ValueDecimals uint8  `json:"value_decimals"`
	Tag1          string `json:"tag1"`
	Tag2          string `json:"tag2"`
	Endpoint      string `json:"endpoint"`
	FeedbackURI   string `json:"feedback_uri"`
	FeedbackHash  []byte `json:"feedback_hash"`
}

// Score is the simple-mode reputation of an agent.
type Score struct {
	AgentID   uint64       `json:"agent_id"`
	Score     *uint256.Int `json:"score"`
	TotalJobs uint64       `json:"total_jobs"`
}

// Event payloads.

type ReputationUpdatedEvent struct {
	AgentID   uint64         `json:"agent_id"`
	JobID     string         `json:"job_id"`
	Employer  ledger.Address `json:"employer"`
	Score     *uint256.Int   `json:"score"`
	TotalJobs uint64         `json:"total_jobs"`
}

type NewFeedbackEvent struct {
	AgentID       uint64         `json:"agent_id"`
	Client        ledger.Address `json:"client"`
	FeedbackIndex uint64         `json:"feedback_index"`
	Value         int64          `json:"value"`
	ValueDecimals uint8          `json:"value_decimals"`
	Tag1          string         `json:"tag1"`
	Tag2          string         `json:"tag2"`
	Endpoint      string         `json:"endpoint"`
	FeedbackURI   string         `json:"feedback_uri"`
	FeedbackHash  []byte         `json:"feedback_hash"`
}

type FeedbackRevokedEvent struct {
	AgentID       uint64         `json:"agent_id"`
	Client        ledger.Address `json:"client"`
	FeedbackIndex uint64         `json:"feedback_index"`
}

type ResponseAppendedEvent struct {
	JobID       string         `json:"job_id"`
	Responder   ledger.Address `json:"responder"`
	ResponseURI string         `json:"response_uri"`
}
