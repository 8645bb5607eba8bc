package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"casefile-backend/logger"
	"casefile-backend/progress"
	"casefile-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait     = 10 * time.Second
	wsFirstFrameTTL = 30 * time.Second
)

// AutoProcessFrame is the first frame a client sends on /ws/auto-process
type AutoProcessFrame struct {
	CaseID                string   `json:"case_id"`
	EvidenceIDs           []string `json:"evidence_ids"`
	AutoClassification    *bool    `json:"auto_classification"`
	AutoFeatureExtraction *bool    `json:"auto_feature_extraction"`
}

// ProgressSocket streams intake progress over a WebSocket
type ProgressSocket struct {
	intake   IntakeProcessor
	logger   *logger.Logger
	upgrader websocket.Upgrader
}

// NewProgressSocket creates the WebSocket adapter
func NewProgressSocket(intake IntakeProcessor, log *logger.Logger) *ProgressSocket {
	if log == nil {
		log = logger.Nop()
	}
	return &ProgressSocket{
		intake: intake,
		logger: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// AutoProcess handles WS /ws/auto-process. Every progress event becomes one
// JSON text frame; the socket closes with 1000 after success and 1011 after
// a failure.
func (h *ProgressSocket) AutoProcess(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already answered the request
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sink := &frameSink{conn: conn}

	req, err := h.readFirstFrame(conn)
	if err != nil {
		sink.closeWithError(err)
		return
	}
	log := h.logger.With("case_id", req.CaseID)

	// The connection is the only consumer, so a vanished client must
	// not cancel committed stages
	ctx := context.WithoutCancel(c.Request.Context())
	req.OnProgress = sink.send

	result, err := h.intake.Intake(ctx, req)
	if err != nil {
		log.Warn("websocket auto-process failed", "error", err)
		sink.closeWithError(err)
		return
	}
	log.Info("websocket auto-process completed", "evidences", len(result.Evidences), "cards", len(result.Cards))
	sink.close(websocket.CloseNormalClosure, "completed")
}

func (h *ProgressSocket) readFirstFrame(conn *websocket.Conn) (service.IntakeRequest, error) {
	_ = conn.SetReadDeadline(time.Now().Add(wsFirstFrameTTL))
	defer conn.SetReadDeadline(time.Time{})

	var frame AutoProcessFrame
	if err := conn.ReadJSON(&frame); err != nil {
		return service.IntakeRequest{}, invalidFrame("first frame must be a JSON object: " + err.Error())
	}
	caseID, err := uuid.Parse(frame.CaseID)
	if err != nil {
		return service.IntakeRequest{}, invalidFrame("invalid case_id format")
	}
	ids, err := parseUUIDs(frame.EvidenceIDs)
	if err != nil {
		return service.IntakeRequest{}, invalidFrame("invalid evidence_ids format")
	}
	req := service.IntakeRequest{
		CaseID:      caseID,
		EvidenceIDs: ids,
		Classify:    true,
		Extract:     true,
	}
	if frame.AutoClassification != nil {
		req.Classify = *frame.AutoClassification
	}
	if frame.AutoFeatureExtraction != nil {
		req.Extract = *frame.AutoFeatureExtraction
	}
	return req, nil
}

type frameError string

func (e frameError) Error() string { return string(e) }
func (e frameError) Unwrap() error { return service.ErrInvalidInput }

func invalidFrame(msg string) error { return frameError(msg) }

// frameSink serialises writes to one connection and remembers whether an
// error event has already gone out
type frameSink struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	sentError bool
}

func (s *frameSink) send(_ context.Context, e progress.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.Status == progress.StatusError {
		s.sentError = true
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *frameSink) closeWithError(err error) {
	s.mu.Lock()
	sent := s.sentError
	s.mu.Unlock()
	if !sent {
		zero := 0
		_ = s.send(context.Background(), progress.Event{Status: progress.StatusError, Message: err.Error(), Progress: &zero})
	}
	s.close(websocket.CloseInternalServerErr, truncateReason(err.Error()))
}

func (s *frameSink) close(code int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}

// truncateReason keeps a close reason within the 123 bytes a control frame
// allows without splitting a UTF-8 sequence
func truncateReason(reason string) string {
	const limit = 123
	if len(reason) <= limit {
		return reason
	}
	cut := limit
	for cut > 0 && (reason[cut]&0xC0) == 0x80 {
		cut--
	}
	return reason[:cut]
}
