package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"submind/internal/types"
)

// =============================================================================
// RESEARCH CAMPAIGNS
// =============================================================================

const researchColumns = "id, agent_id, name, description, completed, response, respond_to_id, created_at, updated_at"

func scanResearch(row rowScanner) (*types.Research, error) {
	var r types.Research
	var completed int
	var respondTo sql.NullInt64
	if err := row.Scan(&r.ID, &r.AgentID, &r.Name, &r.Description, &completed, &r.Response,
		&respondTo, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Completed = completed != 0
	r.RespondToID = respondTo.Int64
	return &r, nil
}

// CreateResearch inserts an open research campaign.
func (q *Queries) CreateResearch(ctx context.Context, r *types.Research) error {
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	res, err := q.q.ExecContext(ctx, `INSERT INTO research
		(agent_id, name, description, completed, response, respond_to_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.AgentID, r.Name, r.Description, boolInt(r.Completed), r.Response, nullID(r.RespondToID), now, now)
	if err != nil {
		return fmt.Errorf("insert research: %w", err)
	}
	r.ID, err = res.LastInsertId()
	return err
}

// GetResearch returns the campaign or types.ErrNotFound.
func (q *Queries) GetResearch(ctx context.Context, id int64) (*types.Research, error) {
	row := q.q.QueryRowContext(ctx, "SELECT "+researchColumns+" FROM research WHERE id = ?", id)
	r, err := scanResearch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("research %d: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get research %d: %w", id, err)
	}
	return r, nil
}

// IncompleteResearch returns the agent's open campaigns.
func (q *Queries) IncompleteResearch(ctx context.Context, agentID int64) ([]*types.Research, error) {
	return q.queryResearch(ctx, "SELECT "+researchColumns+` FROM research
		WHERE agent_id = ? AND completed = 0 ORDER BY id`, agentID)
}

// OpenResearch returns every open campaign across agents.
func (q *Queries) OpenResearch(ctx context.Context) ([]*types.Research, error) {
	return q.queryResearch(ctx, "SELECT "+researchColumns+" FROM research WHERE completed = 0 ORDER BY id")
}

func (q *Queries) queryResearch(ctx context.Context, query string, args ...interface{}) ([]*types.Research, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query research: %w", err)
	}
	defer rows.Close()

	var out []*types.Research
	for rows.Next() {
		r, err := scanResearch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan research: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkResearchCompleted closes a campaign once. It returns false when another
// invocation already completed it.
func (q *Queries) MarkResearchCompleted(ctx context.Context, id int64, response string) (bool, error) {
	res, err := q.q.ExecContext(ctx, `UPDATE research SET completed = 1, response = ?, updated_at = ?
		WHERE id = ? AND completed = 0`, response, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("complete research %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ResearchQA returns every question of a campaign with its answers.
func (q *Queries) ResearchQA(ctx context.Context, researchID int64) ([]types.QA, error) {
	questions, err := q.queryQuestions(ctx, "SELECT "+questionColumns+" FROM questions WHERE research_id = ? ORDER BY id", researchID)
	if err != nil {
		return nil, err
	}
	out := make([]types.QA, 0, len(questions))
	for _, qu := range questions {
		answers, err := q.AnswersForQuestion(ctx, qu.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, types.QA{Question: *qu, Answers: answers})
	}
	return out, nil
}

// =============================================================================
// QUESTIONS
// =============================================================================

const questionColumns = `id, content, for_human, for_internet, research_id, agent_id, owner_id,
	context_id, error, created_at, updated_at`

func scanQuestion(row rowScanner) (*types.Question, error) {
	var qu types.Question
	var human, internet int
	var researchID, agentID, contextID sql.NullInt64
	if err := row.Scan(&qu.ID, &qu.Content, &human, &internet, &researchID, &agentID, &qu.OwnerID,
		&contextID, &qu.Error, &qu.CreatedAt, &qu.UpdatedAt); err != nil {
		return nil, err
	}
	qu.ForHuman = human != 0
	qu.ForInternet = internet != 0
	qu.ResearchID = researchID.Int64
	qu.AgentID = agentID.Int64
	qu.ContextID = contextID.Int64
	return &qu, nil
}

// CreateQuestion inserts a question.
func (q *Queries) CreateQuestion(ctx context.Context, qu *types.Question) error {
	now := time.Now().UTC()
	qu.CreatedAt, qu.UpdatedAt = now, now
	res, err := q.q.ExecContext(ctx, `INSERT INTO questions
		(content, for_human, for_internet, research_id, agent_id, owner_id, context_id, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		qu.Content, boolInt(qu.ForHuman), boolInt(qu.ForInternet), nullID(qu.ResearchID), nullID(qu.AgentID),
		qu.OwnerID, nullID(qu.ContextID), qu.Error, now, now)
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	qu.ID, err = res.LastInsertId()
	return err
}

// GetQuestion returns the question or types.ErrNotFound.
func (q *Queries) GetQuestion(ctx context.Context, id int64) (*types.Question, error) {
	row := q.q.QueryRowContext(ctx, "SELECT "+questionColumns+" FROM questions WHERE id = ?", id)
	qu, err := scanQuestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("question %d: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get question %d: %w", id, err)
	}
	return qu, nil
}

// OpenHumanQuestions returns the agent's questions for the founder that have
// no filled answer yet.
func (q *Queries) OpenHumanQuestions(ctx context.Context, agentID int64) ([]*types.Question, error) {
	return q.queryQuestions(ctx, "SELECT "+questionColumns+` FROM questions qu
		WHERE agent_id = ? AND for_human = 1
		AND NOT EXISTS (SELECT 1 FROM answers a WHERE a.question_id = qu.id AND a.content != '')
		ORDER BY id`, agentID)
}

func (q *Queries) queryQuestions(ctx context.Context, query string, args ...interface{}) ([]*types.Question, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	var out []*types.Question
	for rows.Next() {
		qu, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, qu)
	}
	return out, rows.Err()
}

// =============================================================================
// ANSWERS
// =============================================================================

const answerColumns = "id, question_id, content, request_id, source, agent_id, created_at, updated_at"

func scanAnswer(row rowScanner) (*types.Answer, error) {
	var a types.Answer
	var agentID sql.NullInt64
	if err := row.Scan(&a.ID, &a.QuestionID, &a.Content, &a.RequestID, &a.Source, &agentID,
		&a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.AgentID = agentID.Int64
	return &a, nil
}

// CreateAnswer inserts an answer; a pending one has empty content and a RequestID.
func (q *Queries) CreateAnswer(ctx context.Context, a *types.Answer) error {
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	res, err := q.q.ExecContext(ctx, `INSERT INTO answers
		(question_id, content, request_id, source, agent_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.QuestionID, a.Content, a.RequestID, a.Source, nullID(a.AgentID), now, now)
	if err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}
	a.ID, err = res.LastInsertId()
	return err
}

// PendingAnswers returns the agent's unfilled answers with their question text.
func (q *Queries) PendingAnswers(ctx context.Context, agentID int64) ([]types.PendingAnswer, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT a.id, a.question_id, a.content, a.request_id, a.source,
		a.agent_id, a.created_at, a.updated_at, qu.content
		FROM answers a JOIN questions qu ON qu.id = a.question_id
		WHERE a.agent_id = ? AND a.content = '' ORDER BY a.id`, agentID)
	if err != nil {
		return nil, fmt.Errorf("query pending answers: %w", err)
	}
	defer rows.Close()

	var out []types.PendingAnswer
	for rows.Next() {
		var p types.PendingAnswer
		var aid sql.NullInt64
		if err := rows.Scan(&p.ID, &p.QuestionID, &p.Content, &p.RequestID, &p.Source, &aid,
			&p.CreatedAt, &p.UpdatedAt, &p.Question); err != nil {
			return nil, fmt.Errorf("scan pending answer: %w", err)
		}
		p.AgentID = aid.Int64
		out = append(out, p)
	}
	return out, rows.Err()
}

// FillAnswer sets the content of a pending answer. Answers are filled at most
// once: it returns false when the answer already has content.
func (q *Queries) FillAnswer(ctx context.Context, answerID int64, content string) (bool, error) {
	if content == "" {
		return false, fmt.Errorf("fill answer %d: empty content", answerID)
	}
	res, err := q.q.ExecContext(ctx, `UPDATE answers SET content = ?, updated_at = ?
		WHERE id = ? AND content = ''`, content, time.Now().UTC(), answerID)
	if err != nil {
		return false, fmt.Errorf("fill answer %d: %w", answerID, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetAnswerRequest records the job id of a pending answer whose submission
// failed earlier. It returns false when the answer already has a job or content.
func (q *Queries) SetAnswerRequest(ctx context.Context, answerID int64, requestID string) (bool, error) {
	if requestID == "" {
		return false, fmt.Errorf("set answer %d request: empty job id", answerID)
	}
	res, err := q.q.ExecContext(ctx, `UPDATE answers SET request_id = ?, updated_at = ?
		WHERE id = ? AND content = '' AND request_id = ''`, requestID, time.Now().UTC(), answerID)
	if err != nil {
		return false, fmt.Errorf("set answer %d request: %w", answerID, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkAnswerErrored writes the error sentinel to the answer and its question.
// It returns false when the answer was already filled.
func (q *Queries) MarkAnswerErrored(ctx context.Context, answerID, questionID int64) (bool, error) {
	filled, err := q.FillAnswer(ctx, answerID, types.ErrorSentinel)
	if err != nil || !filled {
		return filled, err
	}
	_, err = q.q.ExecContext(ctx, "UPDATE questions SET error = ?, updated_at = ? WHERE id = ?",
		types.ErrorSentinel, time.Now().UTC(), questionID)
	if err != nil {
		return true, fmt.Errorf("mark question %d errored: %w", questionID, err)
	}
	return true, nil
}

// AnswersForQuestion returns the question's answers, oldest first.
func (q *Queries) AnswersForQuestion(ctx context.Context, questionID int64) ([]types.Answer, error) {
	rows, err := q.q.QueryContext(ctx, "SELECT "+answerColumns+" FROM answers WHERE question_id = ? ORDER BY id", questionID)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()

	var out []types.Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}
