// Package validation is the job and validation registry program.
//
// A job moves New -> Pending -> ValidationRequested -> Verified. Writes
// only ever advance the status. Jobs older than the retention window may be
// deleted by anyone.
package validation

import (
	"fmt"
	"time"

	"github.com/agentoven/agentmarket/internal/ledger"
)

// RetentionWindow is the age after which a job may be cleaned up.
const RetentionWindow = 3 * 24 * time.Hour

// MaxResponse is the highest score a validator may report.
const MaxResponse = 100

// Status is the position of a job in the validation workflow.
type Status uint8

const (
	StatusNew Status = iota
	StatusPending
	StatusValidationRequested
	StatusVerified
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "New"
	case StatusPending:
		return "Pending"
	case StatusValidationRequested:
		return "ValidationRequested"
	case StatusVerified:
		return "Verified"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	for st := StatusNew; st <= StatusVerified; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown job status %q", b)
}

// advance returns the later of s and target.
func (s Status) advance(target Status) Status {
	return max(s, target)
}

// Job is one hired unit of work.
type Job struct {
	JobID     string         `json:"job_id" cbor:"1,keyasint"`
	Status    Status         `json:"status" cbor:"2,keyasint"`
	Proof     []byte         `json:"proof" cbor:"3,keyasint"`
	Employer  ledger.Address `json:"employer" cbor:"4,keyasint"`
	AgentID   uint64         `json:"agent_id" cbor:"5,keyasint"`
	CreatedAt int64          `json:"creation_timestamp" cbor:"6,keyasint"` // unix millis
}

// Created returns the creation time of the job.
func (j Job) Created() time.Time { return time.UnixMilli(j.CreatedAt).UTC() }

// Expired reports whether the job is past the retention window at now.
func (j Job) Expired(now time.Time) bool {
	return now.UnixMilli() > j.CreatedAt+RetentionWindow.Milliseconds()
}

// Request is a validation request addressed to one validator.
type Request struct {
	RequestHash  string         `json:"request_hash" cbor:"1,keyasint"`
	Validator    ledger.Address `json:"validator_address" cbor:"2,keyasint"`
	AgentID      uint64         `json:"agent_id" cbor:"3,keyasint"`
	JobID        string         `json:"job_id" cbor:"4,keyasint"`
	Response     uint8          `json:"response" cbor:"5,keyasint"`
	ResponseHash []byte         `json:"response_hash" cbor:"6,keyasint"`
	Tag          string         `json:"tag" cbor:"7,keyasint"`
	LastUpdate   int64          `json:"last_update" cbor:"8,keyasint"`        // unix seconds
	CreatedAt    int64          `json:"creation_timestamp" cbor:"9,keyasint"` // unix millis
}

// Targets reports whether job is the job this request was made for. A job
// id freed by clean_old_jobs and initialized again is a different job.
func (r Request) Targets(job Job) bool {
	return job.JobID == r.JobID && job.AgentID == r.AgentID && job.CreatedAt <= r.CreatedAt
}

// Answered reports whether the validator has responded with a score.
func (r Request) Answered() bool { return r.Response != 0 }

// InitJobParams are the inputs of InitJob.
type InitJobParams struct {
	JobID     string  `json:"job_id"`
	AgentID   uint64  `json:"agent_id"`
	ServiceID *uint32 `json:"service_id,omitempty"`
}

// RequestParams are the inputs of ValidationRequest.
type RequestParams struct {
	JobID       string         `json:"job_id"`
	Validator   ledger.Address `json:"validator_address"`
	RequestURI  string         `json:"request_uri"`
	RequestHash string         `json:"request_hash"`
}

// ResponseParams are the inputs of ValidationResponse.
type ResponseParams struct {
	RequestHash  string `json:"request_hash"`
	Response     uint8  `json:"response"`
	ResponseURI  string `json:"response_uri"`
	ResponseHash []byte `json:"response_hash"`
	Tag          string `json:"tag"`
}

// Event payloads.

type JobInitializedEvent struct {
	JobID     string         `json:"job_id"`
	AgentID   uint64         `json:"agent_id"`
	Employer  ledger.Address `json:"employer"`
	ServiceID *uint32        `json:"service_id,omitempty"`
	Paid      string         `json:"paid,omitempty"`
}

type ProofSubmittedEvent struct {
	JobID  string         `json:"job_id"`
	Caller ledger.Address `json:"caller"`
}

type RequestEvent struct {
	Validator   ledger.Address `json:"validator_address"`
	AgentID     uint64         `json:"agent_id"`
	JobID       string         `json:"job_id"`
	RequestURI  string         `json:"request_uri"`
	RequestHash string         `json:"request_hash"`
}

type ResponseEvent struct {
	Validator    ledger.Address `json:"validator_address"`
	AgentID      uint64         `json:"agent_id"`
	JobID        string         `json:"job_id"`
	RequestHash  string         `json:"request_hash"`
	Response     uint8          `json:"response"`
	ResponseURI  string         `json:"response_uri"`
	ResponseHash []byte         `json:"response_hash"`
	Tag          string         `json:"tag"`
}

type JobsCleanedEvent struct {
	JobIDs []string `json:"job_ids"`
}
