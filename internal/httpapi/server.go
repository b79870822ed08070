// Package httpapi exposes the runtime over JSON/HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"github.com/roach88/procflow/internal/compiler"
	"github.com/roach88/procflow/internal/ir"
	"github.com/roach88/procflow/internal/runtime"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Server routes HTTP requests to a Runtime.
type Server struct {
	rt     *runtime.Runtime
	logger *slog.Logger
	router *httprouter.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a Server for rt.
//
//	POST /definitions                             deploy a YAML definition
//	GET  /definitions                             list deployed versions
//	GET  /definitions/:key                        latest version of key
//	POST /process-instances                       start an instance
//	GET  /process-instances/:id/executions        active executions
//	GET  /process-instances/:id/variables         current variables
//	PUT  /process-instances/:id/variables         set variables
//	GET  /tasks                                   open tasks
//	POST /tasks/:id/complete                      complete a task
//	GET  /history/process-instances/:id           historic instance
//	GET  /history/process-instances/:id/events    audit trail
//	GET  /history/variables                       historic variables
func New(rt *runtime.Runtime, opts ...Option) *Server {
	s := &Server{rt: rt, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	r := httprouter.New()
	r.POST("/definitions", s.deployDefinition)
	r.GET("/definitions", s.listDefinitions)
	r.GET("/definitions/:key", s.getDefinition)
	r.POST("/process-instances", s.startInstance)
	r.GET("/process-instances/:id/executions", s.listExecutions)
	r.GET("/process-instances/:id/variables", s.getVariables)
	r.PUT("/process-instances/:id/variables", s.setVariables)
	r.GET("/tasks", s.listTasks)
	r.POST("/tasks/:id/complete", s.completeTask)
	r.GET("/history/process-instances/:id", s.getHistoricInstance)
	r.GET("/history/process-instances/:id/events", s.listEvents)
	r.GET("/history/variables", s.listHistoricVariables)
	r.PanicHandler = s.panicked
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// StartRequest is the body of POST /process-instances.
type StartRequest struct {
	Key         string    `json:"key"`
	BusinessKey string    `json:"businessKey,omitempty"`
	Variables   ir.Object `json:"variables,omitempty"`
}

// VariablesRequest is the body of task completion and variable updates.
type VariablesRequest struct {
	Variables ir.Object `json:"variables"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// badRequest marks client input errors that are not ir errors.
type badRequest struct{ err error }

func (e badRequest) Error() string { return e.err.Error() }
func (e badRequest) Unwrap() error { return e.err }

func (s *Server) deployDefinition(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.fail(w, r, badRequest{err})
		return
	}
	draft, err := compiler.ParseYAML(body)
	if err != nil {
		s.fail(w, r, badRequest{err})
		return
	}
	def, err := s.rt.Deploy(r.Context(), *draft)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusCreated, def)
}

func (s *Server) listDefinitions(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	defs, err := s.rt.Definitions(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, defs)
}

func (s *Server) getDefinition(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	def, err := s.rt.Definition(r.Context(), p.ByName("key"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, def)
}

func (s *Server) startInstance(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req StartRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Key == "" {
		s.fail(w, r, badRequest{errors.New("key is required")})
		return
	}
	inst, err := s.rt.StartProcessInstanceByKeyAndBusinessKey(r.Context(), req.Key, req.BusinessKey, req.Variables)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusCreated, inst)
}

func (s *Server) listExecutions(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	q := s.rt.CreateExecutionQuery().ProcessInstanceID(p.ByName("id"))
	if activity := r.URL.Query().Get("activityId"); activity != "" {
		q.ActivityID(activity)
	}
	execs, err := q.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, execs)
}

func (s *Server) getVariables(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	vars, err := s.rt.Variables(r.Context(), p.ByName("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, vars)
}

func (s *Server) setVariables(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	var req VariablesRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.rt.SetVariables(r.Context(), p.ByName("id"), req.Variables); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	v := r.URL.Query()
	tasks, err := s.rt.CreateTaskQuery().
		ProcessInstanceID(v.Get("processInstanceId")).
		TaskName(v.Get("name")).
		TaskAssignee(v.Get("assignee")).
		List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, tasks)
}

func (s *Server) completeTask(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	var req VariablesRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.rt.CompleteTask(r.Context(), p.ByName("id"), req.Variables); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getHistoricInstance(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	q := s.rt.CreateHistoricProcessInstanceQuery().ProcessInstanceID(p.ByName("id"))
	if raw := r.URL.Query().Get("finished"); raw != "" {
		finished, err := strconv.ParseBool(raw)
		if err != nil {
			s.fail(w, r, badRequest{fmt.Errorf("finished: %w", err)})
			return
		}
		if finished {
			q.Finished()
		} else {
			q.Unfinished()
		}
	}
	h, err := q.SingleResult(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, h)
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	events, err := s.rt.History().Events(r.Context(), p.ByName("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, events)
}

func (s *Server) listHistoricVariables(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	v := r.URL.Query()
	vars, err := s.rt.CreateHistoricVariableInstanceQuery().
		ProcessInstanceID(v.Get("processInstanceId")).
		VariableName(v.Get("name")).
		List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, vars)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return badRequest{fmt.Errorf("decode request: %w", err)}
	}
	return nil
}

func (s *Server) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		s.logger.DebugContext(r.Context(), "request rejected", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	s.respond(w, status, body)
}

func (s *Server) panicked(w http.ResponseWriter, r *http.Request, v any) {
	s.fail(w, r, fmt.Errorf("panic: %v", v))
}

// StatusCode maps an error to its HTTP status.
func StatusCode(err error) int {
	status, _ := errorResponse(err)
	return status
}

func errorResponse(err error) (int, ErrorResponse) {
	var bad badRequest
	if errors.As(err, &bad) {
		return http.StatusBadRequest, ErrorResponse{Code: "BAD_REQUEST", Message: err.Error()}
	}

	var e *ir.Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError, ErrorResponse{Code: "INTERNAL", Message: err.Error()}
	}

	body := ErrorResponse{Code: string(e.Code), Message: e.Error(), Details: e.Details}
	switch e.Code {
	case ir.ErrCodeNotFound:
		return http.StatusNotFound, body
	case ir.ErrCodeInvalidDefinition:
		return http.StatusUnprocessableEntity, body
	case ir.ErrCodeAmbiguousResult, ir.ErrCodeAlreadyCompleted:
		return http.StatusConflict, body
	default:
		return http.StatusInternalServerError, body
	}
}
