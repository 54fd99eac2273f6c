package core

import (
	"encoding/json"
	"time"

	"github.com/dkeye/Relay/internal/domain"
)

// Kind is the "type" discriminator of every envelope.
type Kind string

const (
	KindAuth        Kind = "auth"
	KindAuthSuccess Kind = "auth_success"
	KindAuthError   Kind = "auth_error"

	KindMessage        Kind = "message"
	KindPrivateMessage Kind = "private_message"
	KindListUsers      Kind = "list_users"
	KindUserList       Kind = "user_list"
	KindEnablePrivate  Kind = "enable_private"
	KindPrivateEnabled Kind = "private_enabled"
	KindEnableGroup    Kind = "enable_group"
	KindGroupEnabled   Kind = "group_enabled"
	KindUserJoined     Kind = "user_joined"
	KindUserLeft       Kind = "user_left"

	KindCallRequest  Kind = "call_request"
	KindCallAccepted Kind = "call_accepted"
	KindCallRejected Kind = "call_rejected"
	KindCallEnded    Kind = "call_ended"
	KindCallTimeout  Kind = "call_timeout"
	KindCallFailed   Kind = "call_failed"

	KindWebRTCOffer     Kind = "webrtc_offer"
	KindWebRTCAnswer    Kind = "webrtc_answer"
	KindWebRTCCandidate Kind = "webrtc_ice_candidate"

	KindFile           Kind = "file"
	KindFileChunkStart Kind = "file_chunk_start"
	KindFileChunk      Kind = "file_chunk"
	KindFileChunkEnd   Kind = "file_chunk_end"
	KindFileCancel     Kind = "file_transfer_cancel"

	KindAdminGetUsers       Kind = "admin_get_users"
	KindAdminUserList       Kind = "admin_user_list"
	KindAdminDelete         Kind = "admin_delete"
	KindAdminDeleteInactive Kind = "admin_delete_inactive"

	KindPing Kind = "ping"
	KindPong Kind = "pong"
)

type AuthSuccess struct {
	Type     Kind          `json:"type"`
	Username string        `json:"username"`
	IsAdmin  bool          `json:"isAdmin"`
	Country  domain.Region `json:"country,omitempty"`
}

type AuthError struct {
	Type    Kind   `json:"type"`
	Message string `json:"message"`
}

type Presence struct {
	Type     Kind   `json:"type"`
	Username string `json:"username"`
}

type Chat struct {
	Type      Kind      `json:"type"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Call covers every call_* envelope.
type Call struct {
	Type     Kind            `json:"type"`
	From     string          `json:"from,omitempty"`
	To       string          `json:"to,omitempty"`
	CallType domain.CallKind `json:"callType,omitempty"`
	Reason   string          `json:"reason,omitempty"`
}

// Negotiation carries one opaque WebRTC payload; exactly one of the three
// payload fields is set.
type Negotiation struct {
	Type      Kind            `json:"type"`
	From      string          `json:"from"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// File covers the legacy single-frame file and the chunked transfer kinds.
type File struct {
	Type        Kind   `json:"type"`
	Sender      string `json:"sender"`
	Receiver    string `json:"receiver,omitempty"`
	FileID      string `json:"fileId,omitempty"`
	FileName    string `json:"fileName,omitempty"`
	FileSize    int64  `json:"fileSize,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
	FileData    string `json:"fileData,omitempty"`
	ChunkIndex  *int   `json:"chunkIndex,omitempty"`
	TotalChunks int    `json:"totalChunks,omitempty"`
	Data        string `json:"data,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// UserDTO is a roster row (no transport fields).
type UserDTO struct {
	Username    string           `json:"username"`
	DisplayName string           `json:"displayName,omitempty"`
	CallState   domain.CallState `json:"callState"`
	CallType    domain.CallKind  `json:"callType,omitempty"`
}

type UserList struct {
	Type  Kind      `json:"type"`
	Users []UserDTO `json:"users"`
}

// AdminUserDTO is a persisted record joined with live presence.
type AdminUserDTO struct {
	Username    string           `json:"username"`
	DisplayName string           `json:"displayName"`
	Country     domain.Region    `json:"country,omitempty"`
	Latitude    float64          `json:"lat,omitempty"`
	Longitude   float64          `json:"lon,omitempty"`
	Online      bool             `json:"online"`
	CallState   domain.CallState `json:"callState"`
	LastSeen    time.Time        `json:"lastSeen"`
	CreatedAt   time.Time        `json:"createdAt"`
}

type AdminUserList struct {
	Type    Kind           `json:"type"`
	Users   []AdminUserDTO `json:"users"`
	Deleted int            `json:"deleted,omitempty"`
}

type Receiver struct {
	Type     Kind   `json:"type"`
	Receiver string `json:"receiver,omitempty"`
}

type Control struct {
	Type Kind `json:"type"`
}
