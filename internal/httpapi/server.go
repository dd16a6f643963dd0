package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/notify"
	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/service"
	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/types"
	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/wire"
)

type Dependencies struct {
	Logger            *zap.Logger
	Addr              string
	HeartbeatService  *service.HeartbeatService
	AttendanceService *service.AttendanceService
	TokenService      *service.TokenService
	Hub               *notify.Hub

	// AllowedOrigins applies to CORS and websocket upgrades. Empty allows
	// any origin.
	AllowedOrigins []string
}

type Server struct {
	httpServer        *http.Server
	logger            *zap.Logger
	router            chi.Router
	heartbeatService  *service.HeartbeatService
	attendanceService *service.AttendanceService
	tokenService      *service.TokenService
	hub               *notify.Hub
	upgrader          websocket.Upgrader
}

func NewServer(d Dependencies) *Server {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	s := &Server{
		logger:            logger,
		router:            r,
		heartbeatService:  d.HeartbeatService,
		attendanceService: d.AttendanceService,
		tokenService:      d.TokenService,
		hub:               d.Hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(origins),
		},
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/heartbeat", s.handleHeartbeat)
		r.Post("/attendance", s.handleAttendance)
		r.Post("/tokens", s.handleIssueToken)
		r.Get("/tokens/{token}/qr.png", s.handleTokenQR)
		r.Get("/classes/{classID}/live", s.handleLive)
	})

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req types.HeartbeatRequest
	if isProtobuf(r) {
		var msg structpb.Struct
		if err := readProto(r, &msg); err != nil {
			writeError(w, http.StatusBadRequest, "bad_proto", "invalid protobuf body")
			return
		}
		var err error
		if req, err = wire.HeartbeatRequestFromStruct(&msg); err != nil {
			writeError(w, http.StatusBadRequest, "bad_proto", err.Error())
			return
		}
	} else if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}
	if req.IP == "" {
		req.IP = remoteIP(r)
	}

	resp, err := s.heartbeatService.Record(r.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidStationID) {
			writeError(w, http.StatusBadRequest, "invalid_station_id", err.Error())
			return
		}
		s.logger.Error("heartbeat error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}

	if isProtobuf(r) {
		writeProto(w, http.StatusOK, wire.HeartbeatResponseToStruct(resp))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAttendance(w http.ResponseWriter, r *http.Request) {
	var req types.AttendanceRequest
	if isProtobuf(r) {
		var msg structpb.Struct
		if err := readProto(r, &msg); err != nil {
			writeError(w, http.StatusBadRequest, "bad_proto", "invalid protobuf body")
			return
		}
		var err error
		if req, err = wire.AttendanceRequestFromStruct(&msg); err != nil {
			writeError(w, http.StatusBadRequest, "bad_proto", err.Error())
			return
		}
	} else if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	status := http.StatusOK
	resp, err := s.attendanceService.Submit(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidStationID):
			writeError(w, http.StatusBadRequest, "invalid_station_id", err.Error())
			return
		case errors.Is(err, service.ErrInvalidStudentID):
			writeError(w, http.StatusBadRequest, "invalid_student_id", err.Error())
			return
		case errors.Is(err, service.ErrInvalidToken):
			writeError(w, http.StatusBadRequest, "invalid_token", err.Error())
			return
		case errors.Is(err, service.ErrUnknownStation):
			// Unknown stations are blocked from recording.
			status = http.StatusForbidden
		default:
			s.logger.Error("attendance error", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
			return
		}
	}

	if isProtobuf(r) {
		writeProto(w, status, wire.AttendanceResponseToStruct(resp))
		return
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req types.TokenRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	resp, err := s.tokenService.Issue(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidClassID):
			writeError(w, http.StatusBadRequest, "invalid_class_id", err.Error())
		case errors.Is(err, service.ErrUnknownClass):
			writeError(w, http.StatusBadRequest, "unknown_class", err.Error())
		case errors.Is(err, service.ErrInvalidDuration):
			writeError(w, http.StatusBadRequest, "invalid_duration", err.Error())
		default:
			s.logger.Error("token issue error", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleTokenQR(w http.ResponseWriter, r *http.Request) {
	size := 0
	if v := r.URL.Query().Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 64 || n > 2048 {
			writeError(w, http.StatusBadRequest, "invalid_size", "size must be between 64 and 2048")
			return
		}
		size = n
	}

	png, err := s.tokenService.QRCode(chi.URLParam(r, "token"), size)
	if err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			writeError(w, http.StatusBadRequest, "invalid_token", err.Error())
			return
		}
		s.logger.Error("qr render error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
