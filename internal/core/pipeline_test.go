package core

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqltalk/sqltalk/internal/sqldb"
)

const mysqlSchemaQueryText = `SELECT table_name, column_name, column_type
FROM information_schema.columns
WHERE table_schema = DATABASE()
ORDER BY table_name, ordinal_position`

// scriptedCompleter returns canned responses in call order and records
// every prompt it was given.
type scriptedCompleter struct {
	responses []scriptedResponse
	prompts   []string
}

type scriptedResponse struct {
	text string
	err  error
}

func (c *scriptedCompleter) Complete(_ context.Context, prompt string) (string, error) {
	c.prompts = append(c.prompts, prompt)
	if len(c.responses) == 0 {
		return "", fmt.Errorf("scriptedCompleter: no response for call %d", len(c.prompts))
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]
	return resp.text, resp.err
}

func newMockConn(t *testing.T) (*sqldb.Conn, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqldb.NewConn(db, sqldb.DriverMySQL), mock
}

func expectStudentsSchema(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(regexp.QuoteMeta(mysqlSchemaQueryText)).
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "column_type"}).
			AddRow("students", "id", "int").
			AddRow("students", "name", "varchar(100)"))
}

func TestAnswerCountQuestion(t *testing.T) {
	conn, mock := newMockConn(t)
	expectStudentsSchema(mock)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students")).
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(42))

	completer := &scriptedCompleter{responses: []scriptedResponse{
		{text: "SELECT COUNT(*) FROM students"},
		{text: "SELECT COUNT(*) FROM students"},
		{text: "There are 42 students enrolled."},
	}}
	pipeline := NewPipeline(completer)

	answer, attempt, err := pipeline.Answer(context.Background(), conn, "How many students are enrolled?", nil)
	require.NoError(t, err)
	assert.Contains(t, answer, "42")

	require.NotNil(t, attempt)
	assert.Equal(t, "How many students are enrolled?", attempt.Question)
	assert.Equal(t, "SELECT COUNT(*) FROM students", attempt.GeneratedQuery)
	assert.Equal(t, "SELECT COUNT(*) FROM students", attempt.ValidatedQuery)
	assert.Contains(t, attempt.Result, "42")

	// Three completion calls: generation, validation, synthesis. The
	// synthesis prompt carries the executed query and its results.
	require.Len(t, completer.prompts, 3)
	assert.Contains(t, completer.prompts[0], "How many students are enrolled?")
	assert.Contains(t, completer.prompts[0], "Table students:")
	assert.Contains(t, completer.prompts[2], "SELECT COUNT(*) FROM students")
	assert.Contains(t, completer.prompts[2], "42")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnswerStripsFencedQueryBeforeValidation(t *testing.T) {
	conn, mock := newMockConn(t)
	expectStudentsSchema(mock)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT name FROM students")).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Riya"))

	completer := &scriptedCompleter{responses: []scriptedResponse{
		{text: "```sql\nSELECT name FROM students\n```"},
		{text: "SELECT name FROM students"},
		{text: "Found 1 student: Riya."},
	}}
	pipeline := NewPipeline(completer)

	_, attempt, err := pipeline.Answer(context.Background(), conn, "List the students", nil)
	require.NoError(t, err)

	require.NotNil(t, attempt)
	assert.Equal(t, "SELECT name FROM students", attempt.GeneratedQuery)

	// The validation prompt must see the bare statement, never the fence.
	require.Len(t, completer.prompts, 3)
	assert.Contains(t, completer.prompts[1], "SELECT name FROM students")
	assert.NotContains(t, completer.prompts[1], "```")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnswerEmptyResultSet(t *testing.T) {
	conn, mock := newMockConn(t)
	expectStudentsSchema(mock)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT name FROM students WHERE name = 'Nobody'")).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	completer := &scriptedCompleter{responses: []scriptedResponse{
		{text: "SELECT name FROM students WHERE name = 'Nobody'"},
		{text: "SELECT name FROM students WHERE name = 'Nobody'"},
		{text: "No matching records found."},
	}}
	pipeline := NewPipeline(completer)

	answer, attempt, err := pipeline.Answer(context.Background(), conn, "Is there a student called Nobody?", nil)
	require.NoError(t, err)
	assert.Equal(t, "No matching records found.", answer)

	require.NotNil(t, attempt)
	assert.Equal(t, "(no rows)", attempt.Result)
	assert.Contains(t, completer.prompts[2], "(no rows)")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnswerGenerationFailureShortCircuits(t *testing.T) {
	conn, mock := newMockConn(t)
	expectStudentsSchema(mock)

	completer := &scriptedCompleter{responses: []scriptedResponse{
		{err: errors.New("rate limited")},
	}}
	pipeline := NewPipeline(completer)

	answer, attempt, err := pipeline.Answer(context.Background(), conn, "How many students are enrolled?", nil)
	assert.Empty(t, answer)
	assert.Nil(t, attempt)

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, "Sorry, I encountered an unexpected error. The technical details have been logged.", ClassifyError(err))

	// Neither the executor nor the synthesizer ran.
	require.Len(t, completer.prompts, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnswerExecutionFailureIsRecorded(t *testing.T) {
	conn, mock := newMockConn(t)
	expectStudentsSchema(mock)
	engineErr := errors.New("Unknown column 'studnt' in 'field list'")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT studnt FROM students")).WillReturnError(engineErr)

	completer := &scriptedCompleter{responses: []scriptedResponse{
		{text: "SELECT studnt FROM students"},
		{text: "SELECT studnt FROM students"},
	}}
	pipeline := NewPipeline(completer)

	answer, attempt, err := pipeline.Answer(context.Background(), conn, "Show the students", nil)
	assert.Empty(t, answer)

	var execErr *sqldb.ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "Database error: Unknown column 'studnt' in 'field list'. Please verify your query syntax.", ClassifyError(err))

	// The attempt is recorded with its failure result.
	require.NotNil(t, attempt)
	assert.Equal(t, "SELECT studnt FROM students", attempt.ValidatedQuery)
	assert.Contains(t, attempt.Err, "Unknown column")
	assert.Empty(t, attempt.Result)

	// No synthesis call after the executor rejected the query.
	require.Len(t, completer.prompts, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnswerValidationFailureDegradesToCandidate(t *testing.T) {
	conn, mock := newMockConn(t)
	expectStudentsSchema(mock)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT name FROM students")).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Aman"))

	completer := &scriptedCompleter{responses: []scriptedResponse{
		{text: "SELECT name FROM students"},
		{err: errors.New("validation call timed out")},
		{text: "Found 1 student: Aman."},
	}}
	pipeline := NewPipeline(completer)

	answer, attempt, err := pipeline.Answer(context.Background(), conn, "List the students", nil)
	require.NoError(t, err)
	assert.Equal(t, "Found 1 student: Aman.", answer)

	require.NotNil(t, attempt)
	assert.Equal(t, attempt.GeneratedQuery, attempt.ValidatedQuery)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnswerUsesFreshSchemaSnapshot(t *testing.T) {
	conn, mock := newMockConn(t)

	// First turn sees one schema, second turn a changed one.
	expectStudentsSchema(mock)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students")).
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta(mysqlSchemaQueryText)).
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "column_type"}).
			AddRow("professors", "id", "int"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM professors")).
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(2))

	completer := &scriptedCompleter{responses: []scriptedResponse{
		{text: "SELECT COUNT(*) FROM students"},
		{text: "SELECT COUNT(*) FROM students"},
		{text: "1 student."},
		{text: "SELECT COUNT(*) FROM professors"},
		{text: "SELECT COUNT(*) FROM professors"},
		{text: "2 professors."},
	}}
	pipeline := NewPipeline(completer)

	_, _, err := pipeline.Answer(context.Background(), conn, "How many students?", nil)
	require.NoError(t, err)
	_, _, err = pipeline.Answer(context.Background(), conn, "How many professors?", nil)
	require.NoError(t, err)

	// The second turn's prompts reference the new schema only.
	assert.Contains(t, completer.prompts[3], "Table professors:")
	assert.NotContains(t, completer.prompts[3], "Table students:")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnswerEmptyQuestion(t *testing.T) {
	conn, _ := newMockConn(t)
	pipeline := NewPipeline(&scriptedCompleter{})

	_, attempt, err := pipeline.Answer(context.Background(), conn, "", nil)
	assert.Nil(t, attempt)
	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
}

func TestAnswerThreadsHistoryIntoPrompts(t *testing.T) {
	conn, mock := newMockConn(t)
	expectStudentsSchema(mock)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students")).
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(42))

	completer := &scriptedCompleter{responses: []scriptedResponse{
		{text: "SELECT COUNT(*) FROM students"},
		{text: "SELECT COUNT(*) FROM students"},
		{text: "Still 42."},
	}}
	pipeline := NewPipeline(completer)

	history := []Turn{
		{Role: RoleUser, Content: "How many students are enrolled?"},
		{Role: RoleAssistant, Content: "There are 42 students enrolled."},
	}
	_, _, err := pipeline.Answer(context.Background(), conn, "And now?", history)
	require.NoError(t, err)

	assert.Contains(t, completer.prompts[0], "User: How many students are enrolled?")
	assert.Contains(t, completer.prompts[0], "Assistant: There are 42 students enrolled.")
	assert.Contains(t, completer.prompts[2], "Assistant: There are 42 students enrolled.")

	assert.NoError(t, mock.ExpectationsWereMet())
}
