package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"vibemate.dev/vibemate/internal/core"
	"vibemate.dev/vibemate/internal/logging"
	"vibemate.dev/vibemate/internal/store"
)

const maxUploadBytes = 10 << 20

type APIHandler struct {
	chatService *core.ChatService
	logger      *zap.Logger
}

func NewAPIHandler(cs *core.ChatService, logger *zap.Logger) *APIHandler {
	return &APIHandler{chatService: cs, logger: logging.OrNop(logger).Named("api")}
}

// Response is the envelope of every JSON answer.
type Response struct {
	Message string `json:"message"`
	Data    any    `json:"data"`
	Status  string `json:"status"`
}

type ChatRequest struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

func (h *APIHandler) respond(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(Response{Message: message, Data: data, Status: http.StatusText(status)}); err != nil {
		h.logger.Warn("failed to write response", zap.Error(err))
	}
}

// fail maps service errors to a status and a message meant for the user.
func (h *APIHandler) fail(w http.ResponseWriter, err error, fallback string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, core.ErrMissingUserID):
		h.respond(w, http.StatusBadRequest, "User Id is missing", nil)
	case errors.Is(err, core.ErrUserNotFound):
		h.respond(w, http.StatusNotFound, "User not found", nil)
	case errors.Is(err, core.ErrBotNotFound):
		h.respond(w, http.StatusNotFound, "Companion not found", nil)
	case errors.Is(err, core.ErrEmptyMessage):
		h.respond(w, http.StatusBadRequest, "Message cannot be empty", nil)
	case errors.Is(err, core.ErrUnsupportedImage):
		h.respond(w, http.StatusBadRequest, "Only JPEG, PNG and GIF images are supported.", nil)
	case errors.Is(err, core.ErrUnsupportedDocument):
		h.respond(w, http.StatusUnsupportedMediaType, "Only text documents are supported.", nil)
	case errors.Is(err, errBadUpload):
		h.respond(w, http.StatusBadRequest, "Please attach a file as multipart form data.", nil)
	case errors.As(err, &tooLarge):
		h.respond(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Files up to %d MB are supported.", maxUploadBytes>>20), nil)
	default:
		h.logger.Error(fallback, zap.Error(err))
		h.respond(w, http.StatusInternalServerError, fallback, nil)
	}
}

func (h *APIHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.respond(w, http.StatusBadRequest, "Invalid request body: "+err.Error(), nil)
		return false
	}
	return true
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK, "ok", map[string]string{"status": "ok"})
}

func (h *APIHandler) SaveUserInfoHandler(w http.ResponseWriter, r *http.Request) {
	var req store.User
	if !h.decode(w, r, &req) {
		return
	}
	user, created, err := h.chatService.SaveUser(r.Context(), req)
	if err != nil {
		h.fail(w, err, "Failed to save user info")
		return
	}
	if created {
		h.respond(w, http.StatusCreated, "Successfully Added Profile", user)
		return
	}
	h.respond(w, http.StatusOK, "Successfully Updated Profile", user)
}

func (h *APIHandler) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	user, err := h.chatService.GetUser(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.fail(w, err, "Failed to get user info")
		return
	}
	h.respond(w, http.StatusOK, "Successfully Fetched Profile", user)
}

func (h *APIHandler) SaveBotHandler(w http.ResponseWriter, r *http.Request) {
	var req store.Bot
	if !h.decode(w, r, &req) {
		return
	}
	bot, err := h.chatService.SaveBot(r.Context(), req)
	if err != nil {
		h.fail(w, err, "Failed to save companion")
		return
	}
	h.respond(w, http.StatusOK, "Successfully Saved Companion", bot)
}

func (h *APIHandler) GetBotHandler(w http.ResponseWriter, r *http.Request) {
	bot, err := h.chatService.GetBot(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.fail(w, err, "Failed to get companion")
		return
	}
	h.respond(w, http.StatusOK, "Successfully Fetched Companion", bot)
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.stream(w, func(emit func(string) error) error {
		return h.chatService.Chat(r.Context(), req.UserID, req.Message, emit)
	})
}

func (h *APIHandler) VisionHandler(w http.ResponseWriter, r *http.Request) {
	req, header, data, err := h.readUpload(w, r)
	if err != nil {
		h.fail(w, err, "Failed to read upload")
		return
	}
	h.stream(w, func(emit func(string) error) error {
		return h.chatService.ChatWithImage(r.Context(), req.UserID, req.Message, header.Filename, data, emit)
	})
}

func (h *APIHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	req, header, data, err := h.readUpload(w, r)
	if err != nil {
		h.fail(w, err, "Failed to read upload")
		return
	}
	doc := core.Document{Name: header.Filename, ContentType: header.Header.Get("Content-Type"), Data: data}
	h.stream(w, func(emit func(string) error) error {
		return h.chatService.ChatWithDocument(r.Context(), req.UserID, req.Message, doc, emit)
	})
}

func (h *APIHandler) MemoryHandler(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !h.decode(w, r, &req) {
		return
	}
	memory, err := h.chatService.Memory(r.Context(), req.UserID)
	if err != nil {
		h.fail(w, err, "Failed to load memory")
		return
	}
	h.respond(w, http.StatusOK, "Successfully Fetched Memory", memory)
}

func (h *APIHandler) ClearMemoryHandler(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.chatService.ClearMemory(r.Context(), req.UserID); err != nil {
		h.fail(w, err, "Failed to clear memory")
		return
	}
	h.respond(w, http.StatusOK, "Memory cleared", nil)
}

var errBadUpload = errors.New("invalid upload")

// readUpload parses a multipart chat request with a "file" part and the
// userId and message fields.
func (h *APIHandler) readUpload(w http.ResponseWriter, r *http.Request) (ChatRequest, *multipart.FileHeader, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return ChatRequest{}, nil, nil, err
		}
		return ChatRequest{}, nil, nil, fmt.Errorf("%w: %v", errBadUpload, err)
	}
	req := ChatRequest{UserID: r.FormValue("userId"), Message: r.FormValue("message")}
	if strings.TrimSpace(req.UserID) == "" {
		return req, nil, nil, core.ErrMissingUserID
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return req, nil, nil, fmt.Errorf("%w: file is missing", errBadUpload)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		return req, nil, nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) > maxUploadBytes {
		return req, nil, nil, &http.MaxBytesError{Limit: maxUploadBytes}
	}
	return req, header, data, nil
}

// stream writes the reply as it is generated. Errors before the first chunk
// get a JSON error answer; a failure after that aborts the connection so the
// client sees a broken stream instead of a short reply.
func (h *APIHandler) stream(w http.ResponseWriter, run func(emit func(string) error) error) {
	flusher, _ := w.(http.Flusher)
	started := false
	start := func() {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(http.StatusOK)
		started = true
	}

	err := run(func(chunk string) error {
		if !started {
			start()
		}
		if _, err := io.WriteString(w, chunk); err != nil {
			return fmt.Errorf("failed to write reply: %w", err)
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})

	switch {
	case err == nil && !started:
		start()
	case err == nil:
	case !started:
		h.fail(w, err, "Failed to generate reply")
	default:
		h.logger.Warn("reply stream aborted", zap.Error(err))
		panic(http.ErrAbortHandler)
	}
}
