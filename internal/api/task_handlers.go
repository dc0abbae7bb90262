package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"wildfire-analytics/internal/domain"
)

type createTaskResponse struct {
	TaskID  string           `json:"task_id"`
	JobType domain.JobType   `json:"job_type"`
	Queue   domain.QueueName `json:"queue"`
	Status  string           `json:"status"`
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateTaskRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.validator.Struct(req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobType, err := domain.ParseJobType(req.JobType)
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.deps.Queue.Enqueue(r.Context(), jobType, req.Arguments)
	if err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) || errors.Is(err, domain.ErrUnknownJobType) {
			s.respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("Failed to enqueue task", zap.String("job_type", req.JobType), zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Failed to enqueue task")
		return
	}

	s.respondWithJSON(w, http.StatusCreated, createTaskResponse{
		TaskID:  id,
		JobType: jobType,
		Queue:   jobType.Queue(),
		Status:  string(domain.TaskStatusPending),
	})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["id"]

	task, err := s.deps.Tasks.GetTask(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			s.respondWithError(w, http.StatusNotFound, "Task not found")
			return
		}
		s.logger.Error("Failed to get task", zap.String("task_id", taskID), zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Failed to fetch task")
		return
	}

	s.respondWithJSON(w, http.StatusOK, task)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l, err := queryInt(r, "limit", limit); err == nil && l > 0 && l <= 100 {
		limit = l
	}

	tasks, err := s.deps.Tasks.ListTasks(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list tasks", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Failed to fetch tasks")
		return
	}

	s.respondWithJSON(w, http.StatusOK, map[string]any{
		"tasks": tasks,
		"count": len(tasks),
		"limit": limit,
	})
}
