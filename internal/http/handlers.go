package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Imaginaryverse/spending-habits/internal/aggregate"
	"github.com/Imaginaryverse/spending-habits/internal/core"
	applog "github.com/Imaginaryverse/spending-habits/internal/log"
)

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      core.User `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := s.deps.Accounts.Register(r.Context(), req.Email, sanitizeInput(req.Name), req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.logger.InfoContext(r.Context(), "User registered", applog.FieldUserID, user.ID)
	s.writeToken(w, r, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := s.deps.Accounts.Authenticate(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)), req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writeToken(w, r, http.StatusOK, user)
}

func (s *Server) writeToken(w http.ResponseWriter, r *http.Request, status int, user core.User) {
	token, expiresAt, err := s.deps.Tokens.Generate(user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Status(status).Data(tokenResponse{Token: token, ExpiresAt: expiresAt, User: user}).Write(w)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.deps.Spending.Categories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Data(cats).Write(w)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	p, err := s.deps.Profiles.GetProfile(r.Context(), uid)
	if errors.Is(err, core.ErrNotFound) {
		p, err = core.UserProfile{UserID: uid}, nil
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Data(p).Write(w)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	uid := userID(r)
	p := core.UserProfile{UserID: uid, Name: sanitizeInput(req.Name), MonthlySpendingLimit: req.MonthlySpendingLimit}
	if err := p.Validate(); err != nil {
		writeError(w, r, err)
		return
	}

	saved, err := s.deps.Profiles.SaveProfile(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.deps.Overview.Invalidate(uid)
	s.logger.InfoContext(r.Context(), "Profile updated",
		applog.FieldUserID, uid,
		applog.FieldLimit, saved.MonthlySpendingLimit,
	)
	NewResponse().Data(saved).Write(w)
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	filter, err := parseItemFilter(r.URL.Query(), userID(r), s.deps.Location)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := s.deps.Spending.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []core.SpendingItem{}
	}
	NewResponse().Data(items).Write(w)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.deps.Spending.Get(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Data(item).Write(w)
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	item, err := req.toItem(userID(r), s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}

	created, err := s.deps.Spending.Create(r.Context(), item)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Status(http.StatusCreated).Header("Location", "/api/items/"+created.ID).Data(created).Write(w)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	item, err := req.toItem(userID(r), s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	item.ID = r.PathValue("id")

	updated, err := s.deps.Spending.Update(r.Context(), item)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Data(updated).Write(w)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Spending.Delete(r.Context(), userID(r), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	ref, err := parseRef(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	ov, err := s.deps.Overview.Overview(r.Context(), userID(r), ref)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Data(ov).Write(w)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resolution := q.Get("resolution")
	if resolution == "" {
		resolution = string(aggregate.ResolutionMonth)
	}
	res, err := aggregate.ParseResolution(resolution)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	ref, err := parseRef(q, s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}

	h, err := s.deps.Overview.History(r.Context(), userID(r), res, ref)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Data(h).Write(w)
}

func (s *Server) handleBudget(w http.ResponseWriter, r *http.Request) {
	ref, err := parseRef(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := s.deps.Overview.Budget(r.Context(), userID(r), ref)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Data(b).Write(w)
}

// handleDemoOverview serves generated data to anonymous visitors.
func (s *Server) handleDemoOverview(w http.ResponseWriter, r *http.Request) {
	ref, err := parseRef(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Data(s.deps.Overview.DemoOverview(ref)).Write(w)
}
