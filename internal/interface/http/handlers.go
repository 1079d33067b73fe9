package http

import (
	"net/http"

	"github.com/codearena/arena-server/internal/application/command"
	"github.com/codearena/arena-server/internal/application/query"
	"github.com/codearena/arena-server/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PUZZLE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type recordAttemptRequest struct {
	LevelID     string `json:"level_id"`
	LessonID    string `json:"lesson_id,omitempty"`
	AttemptID   string `json:"attempt_id,omitempty"`
	Success     bool   `json:"success"`
	AttemptTime int    `json:"attempt_time"`
	Code        string `json:"code,omitempty"`
}

func (s *Server) handleRecordAttempt(w http.ResponseWriter, r *http.Request) {
	var req recordAttemptRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := s.deps.RecordAttempt.Handle(r.Context(), command.RecordAttemptCommand{
		UserID:      identityFrom(r.Context()).UserID.String(),
		LevelID:     req.LevelID,
		LessonID:    req.LessonID,
		AttemptID:   req.AttemptID,
		Success:     req.Success,
		AttemptTime: req.AttemptTime,
		Code:        req.Code,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Progress.Get(r.Context(), query.GetProgressQuery{
		UserID:  identityFrom(r.Context()).UserID.String(),
		LevelID: r.PathValue("levelId"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (s *Server) handleGetPreferredDifficulty(w http.ResponseWriter, r *http.Request) {
	lessonID := shared.LessonID(r.PathValue("lessonId"))
	if !lessonID.IsValid() {
		writeError(w, shared.NewDomainError("http", "GetPreferredDifficulty", shared.ErrInvalidID, "invalid lesson id"))
		return
	}

	difficulty, err := s.deps.Progress.PreferredDifficulty(r.Context(), identityFrom(r.Context()).UserID, lessonID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"preferred_difficulty": difficulty})
}

type purchaseHintRequest struct {
	LevelID string `json:"level_id"`
}

func (s *Server) handlePurchaseHint(w http.ResponseWriter, r *http.Request) {
	var req purchaseHintRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := s.deps.PurchaseHint.Handle(r.Context(), command.PurchaseHintCommand{
		UserID:  identityFrom(r.Context()).UserID.String(),
		LevelID: req.LevelID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

// ══════════════════════════════════════════════════════════════════════════════
// BATTLE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type createBattleRequest struct {
	Language   string `json:"language"`
	Difficulty string `json:"difficulty,omitempty"`
}

func (s *Server) handleCreateBattle(w http.ResponseWriter, r *http.Request) {
	var req createBattleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := s.deps.CreateBattle.Handle(r.Context(), command.CreateBattleCommand{
		UserID:     identityFrom(r.Context()).UserID.String(),
		Language:   req.Language,
		Difficulty: req.Difficulty,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, res)
}

type joinQueueRequest struct {
	Language  string `json:"language"`
	MatchSize int    `json:"match_size,omitempty"`
}

func (s *Server) handleJoinQueue(w http.ResponseWriter, r *http.Request) {
	var req joinQueueRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := s.deps.JoinQueue.Handle(r.Context(), command.JoinQueueCommand{
		UserID:    identityFrom(r.Context()).UserID.String(),
		Language:  req.Language,
		MatchSize: req.MatchSize,
		Source:    command.QueueSourceHTTP,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (s *Server) handleGetBattle(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Battles.Get(r.Context(), identityFrom(r.Context()).UserID.String(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (s *Server) handleActiveBattles(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Battles.ActiveForUser(r.Context(), identityFrom(r.Context()).UserID.String())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

type submitRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := s.deps.Submit.Handle(r.Context(), command.SubmitSolutionCommand{
		UserID:  identityFrom(r.Context()).UserID.String(),
		MatchID: r.PathValue("id"),
		Code:    req.Code,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (s *Server) handleExitBattle(w http.ResponseWriter, r *http.Request) {
	err := s.deps.ExitBattle.Handle(r.Context(), command.ExitBattleCommand{
		UserID:  identityFrom(r.Context()).UserID.String(),
		MatchID: r.PathValue("id"),
		Reason:  command.ExitReasonForfeit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"exited": true})
}

func (s *Server) handleReadyBattle(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.ReadyBattle.Handle(r.Context(), command.ReadyBattleCommand{
		UserID:  identityFrom(r.Context()).UserID.String(),
		MatchID: r.PathValue("id"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (s *Server) handleKickUnready(w http.ResponseWriter, r *http.Request) {
	matchID := shared.MatchID(r.PathValue("id"))
	if !matchID.IsValid() {
		writeError(w, shared.NewDomainError("http", "KickUnready", shared.ErrInvalidID, "invalid match id"))
		return
	}

	if err := s.deps.KickUnready.Kick(r.Context(), matchID); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"kicked": true})
}

type createChallengeRequest struct {
	OpponentID string `json:"opponent_id"`
	Language   string `json:"language"`
	Wager      int    `json:"wager"`
}

func (s *Server) handleCreateChallenge(w http.ResponseWriter, r *http.Request) {
	var req createChallengeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := s.deps.Challenges.Create(r.Context(), command.CreateChallengeCommand{
		ChallengerID: identityFrom(r.Context()).UserID.String(),
		OpponentID:   req.OpponentID,
		Language:     req.Language,
		Wager:        req.Wager,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, res)
}

func (s *Server) handlePendingChallenges(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Battles.PendingChallenges(r.Context(), identityFrom(r.Context()).UserID.String())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

type respondChallengeRequest struct {
	Accept bool `json:"accept"`
}

func (s *Server) handleRespondChallenge(w http.ResponseWriter, r *http.Request) {
	var req respondChallengeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := s.deps.Challenges.Respond(r.Context(), command.RespondChallengeCommand{
		UserID:      identityFrom(r.Context()).UserID.String(),
		ChallengeID: r.PathValue("id"),
		Accept:      req.Accept,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION & SESSION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Leaderboard.Get(r.Context(), query.LeaderboardQuery{
		Board:  getQueryParam(r, "type", "overall"),
		Limit:  getQueryParamInt(r, "limit", 0),
		UserID: identityFrom(r.Context()).UserID.String(),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Achievements.Get(r.Context(), identityFrom(r.Context()).UserID.String())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (s *Server) handleMyStats(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Stats.Get(r.Context(), identityFrom(r.Context()).UserID.String())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	err := s.deps.TrackSession.Heartbeat(r.Context(), command.HeartbeatCommand{
		UserID: identityFrom(r.Context()).UserID.String(),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"alive": true})
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	err := s.deps.TrackSession.Close(r.Context(), command.CloseSessionCommand{
		UserID: identityFrom(r.Context()).UserID.String(),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"closed": true})
}
