package signal

import (
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/observability"
	"github.com/rs/zerolog/log"
)

type filePayload struct {
	Receiver    string `json:"receiver" validate:"required"`
	FileID      string `json:"fileId"`
	FileName    string `json:"fileName"`
	FileSize    int64  `json:"fileSize" validate:"gte=0"`
	MimeType    string `json:"mimeType"`
	FileData    string `json:"fileData"`
	ChunkIndex  *int   `json:"chunkIndex" validate:"omitempty,gte=0"`
	TotalChunks int    `json:"totalChunks" validate:"gte=0"`
	Data        string `json:"data"`
	Reason      string `json:"reason"`
}

// complete reports whether p carries the fields its kind needs.
func (p *filePayload) complete(kind core.Kind) bool {
	switch kind {
	case core.KindFile:
		return p.FileName != "" && p.FileData != ""
	case core.KindFileChunkStart:
		return p.FileID != "" && p.FileName != ""
	case core.KindFileChunk:
		return p.FileID != "" && p.ChunkIndex != nil && p.Data != ""
	case core.KindFileChunkEnd, core.KindFileCancel:
		return p.FileID != ""
	}
	return false
}

// handleFile relays file transfer frames untouched except for the sender.
// The GROUP receiver fans out to everyone but the sender.
func (ctl *SignalWSController) handleFile(c *WsSignalConn, kind core.Kind, data []byte) {
	var p filePayload
	if !ctl.decode(c, kind, data, &p) {
		return
	}
	if !p.complete(kind) {
		log.Warn().Str("module", "signal").Str("username", string(c.identity)).Str("type", string(kind)).Msg("incomplete file frame")
		observability.RecordEvent(string(kind), "malformed")
		return
	}

	out := core.File{
		Type:        kind,
		Sender:      string(c.identity),
		Receiver:    p.Receiver,
		FileID:      p.FileID,
		FileName:    p.FileName,
		FileSize:    p.FileSize,
		MimeType:    p.MimeType,
		FileData:    p.FileData,
		ChunkIndex:  p.ChunkIndex,
		TotalChunks: p.TotalChunks,
		Data:        p.Data,
		Reason:      p.Reason,
	}

	if kind == core.KindFile || kind == core.KindFileChunkStart {
		log.Info().Str("module", "signal").Str("sender", string(c.identity)).Str("receiver", p.Receiver).Str("file", p.FileName).Int64("size", p.FileSize).Msg("file transfer")
	}

	receiver := domain.Identity(p.Receiver)
	if receiver == domain.GroupIdentity {
		ctl.Orch.Router.Broadcast(out, c.identity)
		observability.RecordEvent(string(kind), "ok")
		return
	}
	if !ctl.Orch.Router.DirectSend(receiver, out) {
		observability.RecordEvent(string(kind), "dropped")
		return
	}
	observability.RecordEvent(string(kind), "ok")
}
