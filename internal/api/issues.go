package api

import (
	"net/http"

	"github.com/joescharf/issueboard/internal/lifecycle"
	"github.com/joescharf/issueboard/internal/models"
	"github.com/joescharf/issueboard/internal/similarity"
	"github.com/joescharf/issueboard/internal/store"
)

type matchesResponse struct {
	Matches []similarity.Match `json:"matches"`
	Total   int                `json:"total"`
}

type createIssueRequest struct {
	models.Candidate
	Confirm bool `json:"confirm"`
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *Server) matches(all []similarity.Match) matchesResponse {
	top := similarity.Top(all, s.maxShown)
	if top == nil {
		top = []similarity.Match{}
	}
	return matchesResponse{Matches: top, Total: len(all)}
}

func (s *Server) listIssues(w http.ResponseWriter, r *http.Request, user *models.User) {
	var filter store.IssueListFilter
	if v := r.URL.Query().Get("status"); v != "" {
		status, err := models.ParseIssueStatus(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = status
	}
	if v := r.URL.Query().Get("priority"); v != "" {
		priority, err := models.ParseIssuePriority(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Priority = priority
	}

	issues, err := s.svc.List(r.Context(), user, filter)
	if err != nil {
		s.writeLifecycleError(w, r, err)
		return
	}
	if issues == nil {
		issues = []*models.Issue{}
	}
	writeJSON(w, http.StatusOK, issues)
}

func (s *Server) getIssue(w http.ResponseWriter, r *http.Request, user *models.User) {
	issue, err := s.svc.Get(r.Context(), user, r.PathValue("id"))
	if err != nil {
		s.writeLifecycleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) checkDuplicates(w http.ResponseWriter, r *http.Request, user *models.User) {
	var c models.Candidate
	if err := decodeJSON(r, &c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	all, err := s.svc.CheckDuplicates(r.Context(), user, c)
	if err != nil {
		s.writeLifecycleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.matches(all))
}

// createIssue runs the check-then-create workflow. Without confirm, any
// match stops the create with a 409 carrying the matches. Any status in the
// body is ignored; new issues always start open.
func (s *Server) createIssue(w http.ResponseWriter, r *http.Request, user *models.User) {
	var req createIssueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Priority == "" {
		req.Priority = models.IssuePriorityMedium
	} else {
		p, err := models.ParseIssuePriority(string(req.Priority))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Priority = p
	}

	draft := lifecycle.NewDraft(s.svc)
	draft.SetForm(req.Candidate)

	res, err := draft.Submit(r.Context(), user)
	if err != nil {
		s.writeLifecycleError(w, r, err)
		return
	}
	if !res.Created() {
		if !req.Confirm {
			writeJSON(w, http.StatusConflict, s.matches(res.Matches))
			return
		}
		res, err = draft.Submit(r.Context(), user)
		if err != nil {
			s.writeLifecycleError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, res.Issue)
}

func (s *Server) updateStatus(w http.ResponseWriter, r *http.Request, user *models.User) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	to, err := models.ParseIssueStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	issue, err := s.svc.Get(r.Context(), user, r.PathValue("id"))
	if err != nil {
		s.writeLifecycleError(w, r, err)
		return
	}
	if err := s.svc.ChangeStatus(r.Context(), user, issue, to); err != nil {
		s.writeLifecycleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) deleteIssue(w http.ResponseWriter, r *http.Request, user *models.User) {
	if err := s.svc.Delete(r.Context(), user, r.PathValue("id")); err != nil {
		s.writeLifecycleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
