package regenerate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"webtoon-regen-server/modules/common/progress"
)

const wsWriteTimeout = 10 * time.Second

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// 인증은 이 서버 범위 밖 - 모든 origin 허용
		return true
	},
}

// Handler - 배치 재생성 HTTP 엔드포인트
type Handler struct {
	service *Service
	tracker *progress.Tracker
	logger  *zap.Logger
}

// NewHandler - tracker 가 nil 이면 진행 상황 조회/구독은 503
func NewHandler(service *Service, tracker *progress.Tracker, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, tracker: tracker, logger: logger.Named("handler")}
}

// RegisterRoutes - 라우터에 Regenerate 엔드포인트 등록
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/regenerate/batch", h.HandleBatch).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/regenerate/batch/{batchId}", h.HandleProgress).Methods("GET", "OPTIONS")
	r.HandleFunc("/ws/regenerate/{batchId}", h.HandleProgressStream)
	h.logger.Info("✅ Regenerate routes registered",
		zap.Strings("routes", []string{"/api/regenerate/batch", "/api/regenerate/batch/{batchId}", "/ws/regenerate/{batchId}"}))
}

// HandleBatch - POST /api/regenerate/batch
func (h *Handler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	// OPTIONS 요청 처리 (CORS preflight)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("⚠️  Invalid request body", zap.Error(err))
		writeError(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	result, err := h.service.Regenerate(r.Context(), &req)
	if err != nil {
		var batchErr *BatchError
		switch {
		case errors.Is(err, ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &batchErr):
			writeError(w, batchErr.Status, batchErrorMessage(batchErr))
		default:
			h.logger.Error("❌ Batch failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Batch regeneration failed")
		}
		return
	}

	images := result.Images
	sort.SliceStable(images, func(i, j int) bool { return images[i].Index < images[j].Index })

	writeJSON(w, http.StatusOK, BatchResponse{BatchID: result.BatchID, Images: images})
}

// HandleProgress - GET /api/regenerate/batch/{batchId}
func (h *Handler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if h.tracker == nil {
		writeError(w, http.StatusServiceUnavailable, "Progress tracking is disabled")
		return
	}

	batchID := mux.Vars(r)["batchId"]
	snap, err := h.tracker.Snapshot(r.Context(), batchID)
	switch {
	case errors.Is(err, progress.ErrNotFound):
		writeError(w, http.StatusNotFound, "Batch not found")
	case err != nil:
		h.logger.Error("❌ Failed to read progress", zap.String("batchId", batchID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to read progress")
	default:
		writeJSON(w, http.StatusOK, snap)
	}
}

// HandleProgressStream - GET /ws/regenerate/{batchId}
// 현재 스냅샷을 먼저 보내고 이후 이벤트를 배치 종료까지 전달
func (h *Handler) HandleProgressStream(w http.ResponseWriter, r *http.Request) {
	if h.tracker == nil {
		writeError(w, http.StatusServiceUnavailable, "Progress tracking is disabled")
		return
	}
	batchID := mux.Vars(r)["batchId"]
	logger := h.logger.With(zap.String("batchId", batchID))

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	// 업그레이드 전에 구독해야 스냅샷과 이벤트 사이 누락이 없음
	events, closeSub, err := h.tracker.Subscribe(ctx, batchID)
	if err != nil {
		logger.Error("❌ Failed to subscribe to progress", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to subscribe to progress")
		return
	}
	defer closeSub()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("⚠️  WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	logger.Info("🔌 Progress stream connected")

	// 클라이언트 종료 감지
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Warn("⚠️  WebSocket read error", zap.Error(err))
				}
				return
			}
		}
	}()

	if snap, err := h.tracker.Snapshot(ctx, batchID); err == nil {
		if err := writeWS(conn, map[string]interface{}{"type": "snapshot", "snapshot": snap}); err != nil {
			return
		}
		if terminal(snap.Status) {
			closeWS(conn)
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("🔌 Progress stream disconnected")
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := writeWS(conn, event); err != nil {
				logger.Warn("⚠️  WebSocket write error", zap.Error(err))
				return
			}
			if event.Type == "status" && terminal(event.Status) {
				closeWS(conn)
				logger.Info("🏁 Progress stream finished", zap.String("status", string(event.Status)))
				return
			}
		}
	}
}

func terminal(status progress.Status) bool {
	return status == progress.StatusCompleted || status == progress.StatusFailed
}

func writeWS(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(v)
}

func closeWS(conn *websocket.Conn) {
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "batch finished"),
		time.Now().Add(wsWriteTimeout))
}

func batchErrorMessage(err *BatchError) string {
	switch err.Kind {
	case KindSourceUnavailable:
		if err.Status == http.StatusNotFound {
			return "Source file not found"
		}
		return "Source image could not be loaded"
	case KindReferencesUnavailable:
		return "None of the reference images could be loaded"
	case KindCharacterReferencesUnavailable:
		return "None of the character sheet images could be loaded"
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
